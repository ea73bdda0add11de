// Package selector implements the two candidate-selection policies over a
// health snapshot (spec §4.5): best-latency and round-robin. Grounded on
// internal/routing/latency_eval.go and internal/routing/random.go's shape
// of pure functions over a snapshot, with no state of their own — the
// Orchestrator owns the persisted rr_index.
package selector

import (
	"sort"

	"github.com/beaconlb/beacon/internal/store"
)

// Best returns the ip of the healthy record with the minimum
// LastLatencyMs. Ties are broken by the iteration order of the health map
// as loaded from disk (map insertion order of the decoded JSON object is
// not guaranteed by Go, so callers must pass records in a stable order —
// the Orchestrator does this by iterating store.LoadHealth's map through a
// sorted-by-ID slice before calling Best).
func Best(records []store.HealthRecord) (ip string, ok bool) {
	bestLatency := -1
	for _, rec := range records {
		if !rec.Healthy || rec.LastLatencyMs == nil {
			continue
		}
		if bestLatency == -1 || *rec.LastLatencyMs < bestLatency {
			bestLatency = *rec.LastLatencyMs
			ip = rec.IP
			ok = true
		}
	}
	return ip, ok
}

// Rotate returns the sorted-unique list of healthy ips, picks
// list[index mod len], and returns the next index to persist.
func Rotate(records []store.HealthRecord, index int) (ip string, nextIndex int, ok bool) {
	seen := make(map[string]struct{})
	var ips []string
	for _, rec := range records {
		if !rec.Healthy {
			continue
		}
		if _, dup := seen[rec.IP]; dup {
			continue
		}
		seen[rec.IP] = struct{}{}
		ips = append(ips, rec.IP)
	}
	if len(ips) == 0 {
		return "", index, false
	}
	sort.Strings(ips)

	i := index % len(ips)
	if i < 0 {
		i += len(ips)
	}
	return ips[i], (index + 1) % len(ips), true
}
