package health

import (
	"testing"
	"time"

	"github.com/beaconlb/beacon/internal/probe"
	"github.com/beaconlb/beacon/internal/store"
)

func lat(v int) *int { return &v }

func TestApplyUpTransitionRequiresStreak(t *testing.T) {
	agg := New(2, 3)
	tick := time.Now().UTC()

	out := agg.Apply(nil, []probe.Result{{ID: "a", Success: true, LatencyMs: lat(10)}}, tick)
	if out["a"].Healthy {
		t.Fatalf("expected still unhealthy after 1 success (need 2)")
	}
	if out["a"].OKStreak != 1 {
		t.Fatalf("OKStreak = %d, want 1", out["a"].OKStreak)
	}

	out = agg.Apply(out, []probe.Result{{ID: "a", Success: true, LatencyMs: lat(10)}}, tick)
	if !out["a"].Healthy {
		t.Fatalf("expected healthy after 2 consecutive successes")
	}
}

func TestApplyDownTransitionRequiresStreak(t *testing.T) {
	agg := New(2, 3)
	tick := time.Now().UTC()

	existing := map[string]store.HealthRecord{"a": {Healthy: true}}
	out := agg.Apply(existing, []probe.Result{{ID: "a", Success: false, Error: "boom"}}, tick)
	if !out["a"].Healthy {
		t.Fatalf("expected still healthy after 1 failure (need 3)")
	}

	out = agg.Apply(out, []probe.Result{{ID: "a", Success: false, Error: "boom"}}, tick)
	out = agg.Apply(out, []probe.Result{{ID: "a", Success: false, Error: "boom"}}, tick)
	if out["a"].Healthy {
		t.Fatalf("expected unhealthy after 3 consecutive failures")
	}
	if out["a"].FailStreak != 3 {
		t.Fatalf("FailStreak = %d, want 3", out["a"].FailStreak)
	}
}

func TestApplyStickyHealthyAcrossPartialFailures(t *testing.T) {
	// Preserves the source's intentional sticky hysteresis: healthy stays
	// true across failures that don't reach the fail threshold, and a
	// single subsequent success does not need to re-cross the success
	// threshold from zero.
	agg := New(2, 3)
	tick := time.Now().UTC()

	existing := map[string]store.HealthRecord{"a": {Healthy: true, OKStreak: 5}}
	out := agg.Apply(existing, []probe.Result{{ID: "a", Success: false, Error: "timeout"}}, tick)
	if !out["a"].Healthy {
		t.Fatalf("expected healthy to remain sticky true after single failure")
	}
	if out["a"].OKStreak != 0 {
		t.Fatalf("OKStreak = %d, want reset to 0 on failure", out["a"].OKStreak)
	}

	out = agg.Apply(out, []probe.Result{{ID: "a", Success: true, LatencyMs: lat(5)}}, tick)
	if !out["a"].Healthy {
		t.Fatalf("expected healthy true (sticky) even though OKStreak just 1")
	}
}

func TestApplySkipsSyntheticRecords(t *testing.T) {
	agg := New(2, 3)
	out := agg.Apply(nil, []probe.Result{probe.SkipResult("a")}, time.Now().UTC())
	if _, exists := out["a"]; exists {
		t.Fatalf("expected skip result to be ignored entirely")
	}
}

func TestApplyRefreshesLabelAndIPEveryTick(t *testing.T) {
	agg := New(2, 3)
	tick := time.Now().UTC()
	out := agg.Apply(nil, []probe.Result{{ID: "a", Label: "us-1", IP: "1.2.3.4", Success: true, LatencyMs: lat(1)}}, tick)
	if out["a"].Label != "us-1" || out["a"].IP != "1.2.3.4" {
		t.Fatalf("label/ip not refreshed: %+v", out["a"])
	}
}
