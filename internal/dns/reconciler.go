// Package dns implements the DNS Reconciler's business logic (spec §4.6):
// zone discovery, record provisioning, and throttled A-record updates. It
// contains no HTTP code of its own — every provider call goes through
// internal/dnsclient, mirroring the teacher's split between
// internal/service (policy) and internal/netutil (transport).
package dns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beaconlb/beacon/internal/beaconerr"
	"github.com/beaconlb/beacon/internal/dnsclient"
	"github.com/beaconlb/beacon/internal/store"
)

// UpdateOutcome classifies what update_record did (spec §4.6).
type UpdateOutcome string

const (
	OutcomeUpdated   UpdateOutcome = "updated"
	OutcomeUnchanged UpdateOutcome = "unchanged"
	OutcomeThrottled UpdateOutcome = "throttled"
)

// Reconciler discovers zones, provisions records, and applies throttled
// updates against the provider fronted by a dnsclient.Client.
type Reconciler struct {
	client      *dnsclient.Client
	store       *store.Store
	minInterval time.Duration
	defaultTTL  int
}

func New(client *dnsclient.Client, st *store.Store, minInterval time.Duration, defaultTTL int) *Reconciler {
	return &Reconciler{client: client, store: st, minInterval: minInterval, defaultTTL: defaultTTL}
}

// FindZone chooses the zone whose name is the longest suffix of domain.
// Ties (equal-length suffix matches) are broken lexically by zone name;
// ambiguous reports whether more than one zone matched at that length, so
// the Orchestrator can log a WARN (spec §9 resolved Open Question: the
// source's "first in API response" tie-break is replaced with a
// documented, deterministic one).
func (r *Reconciler) FindZone(ctx context.Context, domain string) (zone dnsclient.Zone, found, ambiguous bool, err error) {
	zones, err := r.client.Zones(ctx)
	if err != nil {
		return dnsclient.Zone{}, false, false, beaconerr.Wrap(beaconerr.ExternalUnavailable, "list zones", err)
	}

	for _, z := range zones {
		if !isSuffixMatch(domain, z.Name) {
			continue
		}
		switch {
		case !found:
			zone, found = z, true
		case len(z.Name) > len(zone.Name):
			zone = z
			ambiguous = false
		case len(z.Name) == len(zone.Name) && z.Name != zone.Name:
			ambiguous = true
			if z.Name < zone.Name {
				zone = z
			}
		}
	}

	return zone, found, ambiguous, nil
}

func isSuffixMatch(domain, zone string) bool {
	domain = strings.TrimSuffix(domain, ".")
	zone = strings.TrimSuffix(zone, ".")
	return domain == zone || strings.HasSuffix(domain, "."+zone)
}

// EnsureRecord finds an existing A-record named name under zone, or
// creates one with a placeholder value if absent, returning its provider
// record ID.
func (r *Reconciler) EnsureRecord(ctx context.Context, zone dnsclient.Zone, name string) (string, error) {
	records, err := r.client.Records(ctx, zone.ID)
	if err != nil {
		return "", beaconerr.Wrap(beaconerr.ExternalUnavailable, "list records", err)
	}
	for _, rec := range records {
		if rec.Type == "A" && rec.Name == recordLeaf(name, zone.Name) {
			return rec.ID, nil
		}
	}

	created, err := r.client.CreateRecord(ctx, dnsclient.Record{
		ZoneID: zone.ID,
		Type:   "A",
		Name:   recordLeaf(name, zone.Name),
		Value:  "0.0.0.0",
		TTL:    r.defaultTTL,
	})
	if err != nil {
		return "", beaconerr.Wrap(beaconerr.ExternalUnavailable, "create placeholder record", err)
	}
	return created.ID, nil
}

// recordLeaf reduces a fully-qualified domain to the label Hetzner-style
// APIs expect relative to the zone ("@" for the apex).
func recordLeaf(fqdn, zoneName string) string {
	fqdn = strings.TrimSuffix(fqdn, ".")
	zoneName = strings.TrimSuffix(zoneName, ".")
	if fqdn == zoneName {
		return "@"
	}
	return strings.TrimSuffix(strings.TrimSuffix(fqdn, zoneName), ".")
}

// UpdateRecord applies the throttle and change-suppression rules of spec
// §4.6 before issuing a PUT, persisting last_ip/last_update and the
// current-IP cache on success.
func (r *Reconciler) UpdateRecord(ctx context.Context, fqdn, ip string, now time.Time) (UpdateOutcome, error) {
	domains, err := r.store.LoadDomains()
	if err != nil {
		return "", err
	}
	entry, ok := domains[fqdn]
	if !ok {
		return "", beaconerr.New(beaconerr.ConfigurationMissing, fmt.Sprintf("domain %q not registered", fqdn))
	}

	if entry.LastIP != nil && *entry.LastIP == ip {
		return OutcomeUnchanged, nil
	}
	if entry.LastUpdate != nil && now.Sub(*entry.LastUpdate) < r.minInterval {
		return OutcomeThrottled, nil
	}

	err = r.client.UpdateRecord(ctx, dnsclient.Record{
		ID:     entry.RecordID,
		ZoneID: entry.ZoneID,
		Type:   "A",
		Value:  ip,
		TTL:    r.defaultTTL,
	})
	if err != nil {
		return "", beaconerr.Wrap(beaconerr.ExternalUnavailable, "update record", err)
	}

	entry.LastIP = &ip
	entry.LastUpdate = &now
	if err := r.store.UpsertDomain(entry); err != nil {
		return "", err
	}
	if err := r.store.SetCurrentIP(ip); err != nil {
		return "", err
	}
	return OutcomeUpdated, nil
}

// SetDomain resolves and caches the zone and record IDs for fqdn,
// creating the record with a placeholder IP if absent (spec §4.9
// "set-domain"). Idempotent: calling it again for an already-registered
// domain is a no-op beyond re-verifying the zone/record still exist.
func (r *Reconciler) SetDomain(ctx context.Context, fqdn string) (store.DomainEntry, error) {
	zone, found, _, err := r.FindZone(ctx, fqdn)
	if err != nil {
		return store.DomainEntry{}, err
	}
	if !found {
		return store.DomainEntry{}, beaconerr.New(beaconerr.ConfigurationMissing, fmt.Sprintf("no zone matches domain %q", fqdn))
	}

	recordID, err := r.EnsureRecord(ctx, zone, fqdn)
	if err != nil {
		return store.DomainEntry{}, err
	}

	domains, err := r.store.LoadDomains()
	if err != nil {
		return store.DomainEntry{}, err
	}
	entry := domains[fqdn]
	if entry.RecordID != recordID {
		entry.LastIP = nil
	}
	entry.FQDN, entry.ZoneID, entry.RecordID = fqdn, zone.ID, recordID
	if err := r.store.UpsertDomain(entry); err != nil {
		return store.DomainEntry{}, err
	}
	return entry, nil
}
