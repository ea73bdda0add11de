// Package health implements the streak-based hysteresis state machine that
// folds probe results into persistent HealthRecords (spec §4.4). It is
// grounded on the atomics-guarded per-entity record style of
// internal/node/entry.go, simplified to a pure function over snapshots
// since the spec makes the Orchestrator, not the Aggregator, own all state
// mutation (§3 "Ownership").
package health

import (
	"time"

	"github.com/beaconlb/beacon/internal/probe"
	"github.com/beaconlb/beacon/internal/store"
)

// Aggregator folds a batch of probe results into a health snapshot using
// fail/success streak thresholds.
type Aggregator struct {
	SuccessThreshold int
	FailThreshold    int
}

// New returns an Aggregator with the given thresholds (spec §6:
// FAIL_THRESHOLD default 3, SUCCESS_THRESHOLD default 2).
func New(successThreshold, failThreshold int) Aggregator {
	return Aggregator{SuccessThreshold: successThreshold, FailThreshold: failThreshold}
}

// Apply returns a new health map with each non-skip result folded in.
// existing is not mutated. Skip results (disabled candidates) are ignored
// entirely, per spec §4.3 edge case.
//
// The up-transition preserves the source's intentional sticky hysteresis
// (spec §9): healthy only ever flips to true inside the success branch, and
// once true it stays true across further successes even before the streak
// re-crosses the threshold (healthy = existing.Healthy || ok_streak >= S).
// It only clears in the failure branch, once fail_streak reaches F.
func (a Aggregator) Apply(existing map[string]store.HealthRecord, results []probe.Result, tickTime time.Time) map[string]store.HealthRecord {
	out := make(map[string]store.HealthRecord, len(existing))
	for id, rec := range existing {
		out[id] = rec
	}

	for _, r := range results {
		if r.Skip {
			continue
		}

		rec := out[r.ID] // zero value: Healthy=false, both streaks 0
		rec.Label = r.Label
		rec.IP = r.IP
		rec.CheckedCount++

		if r.Success {
			latency := r.LatencyMs
			rec.LastLatencyMs = latency
			okTime := tickTime
			rec.LastOK = &okTime
			rec.LastChecked = tickTime
			rec.LastError = nil
			rec.FailStreak = 0
			rec.OKStreak++
			rec.Healthy = rec.Healthy || rec.OKStreak >= a.SuccessThreshold
		} else {
			rec.LastChecked = tickTime
			errMsg := r.Error
			rec.LastError = &errMsg
			rec.LastLatencyMs = nil
			rec.OKStreak = 0
			rec.FailStreak++
			if rec.FailStreak >= a.FailThreshold {
				rec.Healthy = false
			}
		}

		out[r.ID] = rec
	}

	return out
}
