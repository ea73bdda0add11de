package probe

// Result is the outcome of probing a single candidate (spec §4.3).
type Result struct {
	ID         string
	Label      string
	IP         string
	Success    bool
	LatencyMs  *int
	Error      string
	// Skip marks a synthetic record for a candidate that was disabled at
	// tick time — the Orchestrator emits this instead of calling the
	// Probe Runner (spec §4.3 edge case); the Health Aggregator ignores it.
	Skip bool
}

// SkipResult builds the synthetic record for a disabled candidate.
func SkipResult(id string) Result {
	return Result{ID: id, Skip: true}
}
