package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/beaconlb/beacon/internal/store"
)

// AddConfig validates the outbound JSON, assigns a new unique ID, and
// persists a new CandidateConfig (spec §4.9 "add-config").
func (o *Orchestrator) AddConfig(label, ip string, configJSON []byte) (Result, error) {
	if !json.Valid(configJSON) {
		return fail("invalid outbound JSON")
	}
	if strings.TrimSpace(label) == "" || strings.TrimSpace(ip) == "" {
		return fail("label and ip are required")
	}

	c, err := o.Store.AddCandidate(label, ip, json.RawMessage(configJSON))
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("added candidate %s (%s, %s)", c.ID, c.Label, c.IP))
}

// RemoveConfig deletes a candidate and its health record (spec §4.9
// "remove-config").
func (o *Orchestrator) RemoveConfig(id string) (Result, error) {
	if err := o.Store.RemoveCandidate(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(fmt.Sprintf("no candidate %s", id))
		}
		return Result{}, err
	}
	return ok(fmt.Sprintf("removed candidate %s", id))
}

// EnableConfig / DisableConfig toggle a candidate independently of health
// (spec §4.9).
func (o *Orchestrator) EnableConfig(id string) (Result, error)  { return o.setEnabled(id, true) }
func (o *Orchestrator) DisableConfig(id string) (Result, error) { return o.setEnabled(id, false) }

func (o *Orchestrator) setEnabled(id string, enabled bool) (Result, error) {
	c, err := o.Store.SetCandidateEnabled(id, enabled)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(fmt.Sprintf("no candidate %s", id))
		}
		return Result{}, err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return ok(fmt.Sprintf("%s candidate %s (%s)", state, c.ID, c.Label))
}

// SetMode persists the process-wide selection policy (spec §4.9
// "set-mode").
func (o *Orchestrator) SetMode(mode string) (Result, error) {
	m := store.Mode(mode)
	if m != store.ModeBest && m != store.ModeRR {
		return fail(fmt.Sprintf("invalid mode %q, want best|rr", mode))
	}
	if err := o.Store.SetMode(m); err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("mode set to %s", m))
}

// SetDomain resolves and caches the zone and record IDs for fqdn (spec
// §4.9 "set-domain"), logging a WARN if the zone match was ambiguous.
func (o *Orchestrator) SetDomain(ctx context.Context, fqdn string) (Result, error) {
	_, _, ambiguous, err := o.Reconciler.FindZone(ctx, fqdn)
	if err != nil {
		return Result{}, err
	}
	if ambiguous {
		o.Log.Warn("multiple zones suffix-match %s at the same length; picked lexically smallest", fqdn)
	}

	entry, err := o.Reconciler.SetDomain(ctx, fqdn)
	if err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("domain %s -> zone %s, record %s", entry.FQDN, entry.ZoneID, entry.RecordID))
}

// List formats every candidate's ID, label, IP, enabled flag, and health
// snippet (spec §4.9 "list").
func (o *Orchestrator) List() (Result, error) {
	candidates, err := o.Store.ListCandidates()
	if err != nil {
		return Result{}, err
	}
	healthMap, err := o.Store.LoadHealth()
	if err != nil {
		return Result{}, err
	}

	if len(candidates) == 0 {
		return ok("no candidates registered")
	}

	var b strings.Builder
	for _, c := range candidates {
		h := healthMap[c.ID]
		fmt.Fprintf(&b, "%s\t%s\t%s\tenabled=%v\thealthy=%v\tok=%d\tfail=%d\n",
			c.ID, c.Label, c.IP, c.Enabled, h.Healthy, h.OKStreak, h.FailStreak)
	}
	return ok(strings.TrimRight(b.String(), "\n"))
}

// Status reports mode, the current-IP cache, per-domain last_ip/last_update,
// and the candidate list (spec §4.9 "status").
func (o *Orchestrator) Status() (Result, error) {
	mode, err := o.Store.GetMode()
	if err != nil {
		return Result{}, err
	}
	currentIP, err := o.Store.GetCurrentIP()
	if err != nil {
		return Result{}, err
	}
	domains, err := o.Store.LoadDomains()
	if err != nil {
		return Result{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", mode)
	fmt.Fprintf(&b, "current_ip: %s\n", currentIP)
	for fqdn, d := range domains {
		lastIP := "(none)"
		if d.LastIP != nil {
			lastIP = *d.LastIP
		}
		lastUpdate := "(never)"
		if d.LastUpdate != nil {
			lastUpdate = d.LastUpdate.Format("2006-01-02T15:04:05Z")
		}
		fmt.Fprintf(&b, "domain %s: last_ip=%s last_update=%s\n", fqdn, lastIP, lastUpdate)
	}

	listResult, err := o.List()
	if err != nil {
		return Result{}, err
	}
	fmt.Fprintf(&b, "candidates:\n%s", listResult.Message)

	return ok(strings.TrimRight(b.String(), "\n"))
}

// SelfCheck verifies the probe binary is on PATH and the state directory
// is readable (spec §4.9 "self-check"). It does not re-check environment
// variables itself; required ones are validated by config.LoadEnvConfig
// before any command runs. It does not touch the network — that is what
// monitor-once is for.
func (o *Orchestrator) SelfCheck(probeBinary string) (Result, error) {
	var problems []string

	if _, err := exec.LookPath(probeBinary); err != nil {
		problems = append(problems, fmt.Sprintf("probe binary %q not found on PATH", probeBinary))
	}
	if _, err := o.Store.GetMode(); err != nil {
		problems = append(problems, fmt.Sprintf("state directory not readable: %v", err))
	}

	if len(problems) > 0 {
		return fail(strings.Join(problems, "; "))
	}
	return ok("self-check passed")
}
