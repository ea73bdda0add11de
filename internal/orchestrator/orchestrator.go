// Package orchestrator ties every core component into the two tick entry
// points and the admin command set (spec §4.8, §4.9). It mirrors the
// teacher's ControlPlaneService in shape: a single struct exposing
// methods called from more than one presentation layer (here, the CLI's
// Command Surface and the Telegram bot), each returning a structured
// result rather than writing directly to stdout.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/beaconlb/beacon/internal/alert"
	"github.com/beaconlb/beacon/internal/beaconerr"
	"github.com/beaconlb/beacon/internal/dns"
	"github.com/beaconlb/beacon/internal/health"
	"github.com/beaconlb/beacon/internal/lock"
	"github.com/beaconlb/beacon/internal/logging"
	"github.com/beaconlb/beacon/internal/probe"
	"github.com/beaconlb/beacon/internal/selector"
	"github.com/beaconlb/beacon/internal/store"
)

// Orchestrator owns no state of its own beyond references to the
// components it coordinates; every fact it needs lives in the Store.
type Orchestrator struct {
	Store       *store.Store
	Log         *logging.Logger
	Runner      *probe.Runner
	Aggregator  health.Aggregator
	Reconciler  *dns.Reconciler
	Alerter     *alert.Alerter
	MonitorInt  time.Duration
	LBInt       time.Duration
	ProbeBudget time.Duration
}

// Result is the structured outcome every admin command and tick entry
// point returns, consumed by both the CLI's Command Surface and the
// Telegram bot (spec §4.9).
type Result struct {
	OK      bool
	Message string
}

func ok(msg string) (Result, error)   { return Result{OK: true, Message: msg}, nil }
func fail(msg string) (Result, error) { return Result{OK: false, Message: msg}, nil }

// sortedHealth gives the selectors a stable iteration order (sorted by
// candidate ID) over the persisted health map, since Go map iteration
// order is randomized — Best's insertion-order tie-break needs a
// deterministic ordering to be meaningful (spec §4.5).
func sortedHealth(health map[string]store.HealthRecord) []store.HealthRecord {
	ids := make([]string, 0, len(health))
	for id := range health {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]store.HealthRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, health[id])
	}
	return out
}

// MonitorOnce runs the full monitor tick algorithm (spec §4.8).
func (o *Orchestrator) MonitorOnce(ctx context.Context) (Result, error) {
	now := time.Now().UTC()
	last, err := o.Store.GetLastMonitorEpoch()
	if err != nil {
		return Result{}, err
	}
	if last != 0 && now.Sub(time.Unix(last, 0)) < o.MonitorInt {
		o.Log.Info("monitor tick skipped: interval guard")
		return ok("skipped: within monitor interval")
	}

	ran, err := lock.WithLock(o.Store.StateDir(), "monitor", func() error {
		return o.monitorTick(ctx, now)
	})
	if err != nil {
		var be *beaconerr.Error
		if errors.As(err, &be) && be.Kind == beaconerr.PolicyOutcome {
			return fail(be.Message)
		}
		return Result{}, err
	}
	if !ran {
		o.Log.Warn("monitor tick skipped: lock held")
		return ok("skipped: concurrent tick")
	}
	return ok("monitor tick complete")
}

func (o *Orchestrator) monitorTick(ctx context.Context, tickTime time.Time) error {
	candidates, err := o.Store.ListCandidates()
	if err != nil {
		return err
	}

	var enabled []store.CandidateConfig
	var results []probe.Result
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range candidates {
		if !c.Enabled {
			mu.Lock()
			results = append(results, probe.SkipResult(c.ID))
			mu.Unlock()
			continue
		}
		enabled = append(enabled, c)
	}

	if len(enabled) == 0 {
		o.Log.Info("monitor tick: no enabled candidates")
		return o.Store.SetLastMonitorEpoch(tickTime.Unix())
	}

	for _, c := range enabled {
		wg.Add(1)
		go func(c store.CandidateConfig) {
			defer wg.Done()
			res := o.Runner.Probe(ctx, c)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	existing, err := o.Store.LoadHealth()
	if err != nil {
		return err
	}
	updated := o.Aggregator.Apply(existing, results, tickTime)
	if err := o.Store.SaveHealth(updated); err != nil {
		return err
	}

	mode, err := o.Store.GetMode()
	if err != nil {
		return err
	}
	if mode != store.ModeBest {
		return o.Store.SetLastMonitorEpoch(tickTime.Unix())
	}

	ip, found := selector.Best(sortedHealth(updated))
	if !found {
		const msg = "best-IP unavailable: no healthy candidate"
		if err := o.Alerter.Alert(msg, tickTime); err != nil {
			return err
		}
		if err := o.Store.SetLastMonitorEpoch(tickTime.Unix()); err != nil {
			return err
		}
		return beaconerr.New(beaconerr.PolicyOutcome, msg)
	}

	if err := o.reconcileAllDomains(ctx, ip, tickTime); err != nil {
		return err
	}
	return o.Store.SetLastMonitorEpoch(tickTime.Unix())
}

// RotateOnce runs the full rotate tick algorithm (spec §4.8).
func (o *Orchestrator) RotateOnce(ctx context.Context) (Result, error) {
	now := time.Now().UTC()
	last, err := o.Store.GetLastRotateEpoch()
	if err != nil {
		return Result{}, err
	}
	if last != 0 && now.Sub(time.Unix(last, 0)) < o.LBInt {
		o.Log.Info("rotate tick skipped: interval guard")
		return ok("skipped: within lb interval")
	}

	ran, err := lock.WithLock(o.Store.StateDir(), "rotate", func() error {
		return o.rotateTick(ctx, now)
	})
	if err != nil {
		var be *beaconerr.Error
		if errors.As(err, &be) && be.Kind == beaconerr.PolicyOutcome {
			return fail(be.Message)
		}
		return Result{}, err
	}
	if !ran {
		o.Log.Warn("rotate tick skipped: lock held")
		return ok("skipped: concurrent tick")
	}
	return ok("rotate tick complete")
}

func (o *Orchestrator) rotateTick(ctx context.Context, tickTime time.Time) error {
	healthMap, err := o.Store.LoadHealth()
	if err != nil {
		return err
	}
	index, err := o.Store.GetRRIndex()
	if err != nil {
		return err
	}

	ip, next, found := selector.Rotate(sortedHealth(healthMap), index)
	if !found {
		const msg = "no healthy IPs available for rotation"
		if err := o.Alerter.Alert(msg, tickTime); err != nil {
			return err
		}
		if err := o.Store.SetLastRotateEpoch(tickTime.Unix()); err != nil {
			return err
		}
		return beaconerr.New(beaconerr.PolicyOutcome, msg)
	}

	if err := o.Store.SetRRIndex(next); err != nil {
		return err
	}
	if err := o.reconcileAllDomains(ctx, ip, tickTime); err != nil {
		return err
	}
	return o.Store.SetLastRotateEpoch(tickTime.Unix())
}

func (o *Orchestrator) reconcileAllDomains(ctx context.Context, ip string, tickTime time.Time) error {
	domains, err := o.Store.LoadDomains()
	if err != nil {
		return err
	}
	for fqdn := range domains {
		outcome, err := o.Reconciler.UpdateRecord(ctx, fqdn, ip, tickTime)
		if err != nil {
			o.Log.Error("dns update failed for %s: %v", fqdn, err)
			continue
		}
		o.Log.Info("dns update for %s: %s", fqdn, outcome)
	}
	return nil
}

