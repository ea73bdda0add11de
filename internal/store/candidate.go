package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CandidateConfig represents one proxy choice under consideration (spec §3).
// ConfigJSON is an opaque outbound descriptor passed verbatim to the probe
// proxy template.
type CandidateConfig struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	IP         string          `json:"ip"`
	Enabled    bool            `json:"enabled"`
	ConfigJSON json.RawMessage `json:"config_json"`
	CreatedAt  time.Time       `json:"created_at"`

	// Extra holds fields present in the file on disk that this struct
	// doesn't declare, so a read-modify-write cycle (e.g. SetCandidateEnabled)
	// round-trips a hand-edited config unchanged instead of dropping them.
	Extra map[string]json.RawMessage `json:"-"`
}

var candidateConfigKnownFields = map[string]bool{
	"id": true, "label": true, "ip": true, "enabled": true,
	"config_json": true, "created_at": true,
}

// MarshalJSON merges Extra back in alongside the declared fields.
func (c CandidateConfig) MarshalJSON() ([]byte, error) {
	type alias CandidateConfig
	base, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, c.Extra)
}

// UnmarshalJSON decodes the declared fields and stashes anything else in
// Extra.
func (c *CandidateConfig) UnmarshalJSON(data []byte) error {
	type alias CandidateConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, candidateConfigKnownFields)
	if err != nil {
		return err
	}
	*c = CandidateConfig(a)
	c.Extra = extra
	return nil
}

func (s *Store) candidatePath(id string) string {
	return filepath.Join(s.configsDir(), id+".json")
}

// AddCandidate assigns a new unique ID (grounded on the teacher's use of
// google/uuid for entity IDs) and persists the candidate. label, ip and
// configJSON are validated by the caller (Orchestrator) before this is
// called; configJSON must already be valid JSON.
func (s *Store) AddCandidate(label, ip string, configJSON json.RawMessage) (CandidateConfig, error) {
	c := CandidateConfig{
		ID:         uuid.NewString(),
		Label:      label,
		IP:         ip,
		Enabled:    true,
		ConfigJSON: configJSON,
		CreatedAt:  time.Now().UTC(),
	}
	if err := writeJSONAtomic(s.candidatePath(c.ID), c); err != nil {
		return CandidateConfig{}, err
	}
	return c, nil
}

// GetCandidate loads a single candidate by ID.
func (s *Store) GetCandidate(id string) (CandidateConfig, bool, error) {
	var c CandidateConfig
	path := s.candidatePath(id)
	if _, err := os.Stat(path); err != nil {
		return CandidateConfig{}, false, nil
	}
	if err := readJSON(path, &c); err != nil {
		return CandidateConfig{}, false, err
	}
	return c, true, nil
}

// ListCandidates returns every candidate, sorted by ID for deterministic
// output across CLI/bot invocations.
func (s *Store) ListCandidates() ([]CandidateConfig, error) {
	entries, err := os.ReadDir(s.configsDir())
	if err != nil {
		return nil, fmt.Errorf("store: list configs dir: %w", err)
	}
	var out []CandidateConfig
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var c CandidateConfig
		if err := readJSON(filepath.Join(s.configsDir(), e.Name()), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RemoveCandidate deletes the candidate's config file and its health
// record, honoring the invariant that "removing a CandidateConfig removes
// its HealthRecord" (spec §8).
func (s *Store) RemoveCandidate(id string) error {
	path := s.candidatePath(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("store: candidate %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("store: remove candidate %s: %w", id, err)
	}
	return s.DeleteHealth(id)
}

// SetCandidateEnabled toggles the enabled flag independently of health.
func (s *Store) SetCandidateEnabled(id string, enabled bool) (CandidateConfig, error) {
	c, ok, err := s.GetCandidate(id)
	if err != nil {
		return CandidateConfig{}, err
	}
	if !ok {
		return CandidateConfig{}, fmt.Errorf("store: candidate %s: %w", id, ErrNotFound)
	}
	c.Enabled = enabled
	if err := writeJSONAtomic(s.candidatePath(id), c); err != nil {
		return CandidateConfig{}, err
	}
	return c, nil
}
