package store

import (
	"encoding/json"
	"path/filepath"
	"time"
)

// HealthRecord is per-candidate rolling health, keyed by candidate ID in
// the health document (spec §3). Exactly one of OKStreak/FailStreak is
// positive at any instant; Healthy only flips inside the branch that just
// observed the threshold crossing (spec §4.4, §9 sticky-hysteresis note).
type HealthRecord struct {
	Label         string     `json:"label"`
	IP            string     `json:"ip"`
	Healthy       bool       `json:"healthy"`
	LastLatencyMs *int       `json:"last_latency_ms,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	LastOK        *time.Time `json:"last_ok,omitempty"`
	LastChecked   time.Time  `json:"last_checked"`
	OKStreak      int        `json:"ok_streak"`
	FailStreak    int        `json:"fail_streak"`
	CheckedCount  int        `json:"checked_count"`

	// Extra preserves fields this struct doesn't declare across the
	// per-tick read-modify-write of the whole health document.
	Extra map[string]json.RawMessage `json:"-"`
}

var healthRecordKnownFields = map[string]bool{
	"label": true, "ip": true, "healthy": true, "last_latency_ms": true,
	"last_error": true, "last_ok": true, "last_checked": true,
	"ok_streak": true, "fail_streak": true, "checked_count": true,
}

func (r HealthRecord) MarshalJSON() ([]byte, error) {
	type alias HealthRecord
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, r.Extra)
}

func (r *HealthRecord) UnmarshalJSON(data []byte) error {
	type alias HealthRecord
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, healthRecordKnownFields)
	if err != nil {
		return err
	}
	*r = HealthRecord(a)
	r.Extra = extra
	return nil
}

func (s *Store) healthPath() string {
	return filepath.Join(s.stateDir(), "health.json")
}

// LoadHealth reads the whole health document. Missing file yields an empty
// map (spec §4.1 documented default).
func (s *Store) LoadHealth() (map[string]HealthRecord, error) {
	out := map[string]HealthRecord{}
	if err := readJSON(s.healthPath(), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]HealthRecord{}
	}
	return out, nil
}

// SaveHealth persists the whole health document atomically. Callers do a
// read-modify-write of the full map per tick (spec §4.4).
func (s *Store) SaveHealth(health map[string]HealthRecord) error {
	return writeJSONAtomic(s.healthPath(), health)
}

// DeleteHealth removes a single candidate's health record via
// read-modify-write of the whole document. Not an error if absent.
func (s *Store) DeleteHealth(id string) error {
	health, err := s.LoadHealth()
	if err != nil {
		return err
	}
	if _, ok := health[id]; !ok {
		return nil
	}
	delete(health, id)
	return s.SaveHealth(health)
}
