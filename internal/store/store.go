// Package store implements beacon's persistence layer: one JSON file per
// CandidateConfig, single JSON documents for health and domains, and scalar
// files for mode, RR index, alert cooldown, tick timestamps, and the
// current-IP cache (spec §4.1, §6). It is grounded on the teacher's
// repo/flush/consistency split in internal/state/*, re-expressed as flat
// files with write-temp-then-rename atomicity instead of a SQL engine,
// since the spec explicitly calls for durable JSON documents and "no schema
// migration — unknown fields are preserved by read-modify-write".
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store roots all persistence under a base directory laid out as:
//
//	configs/<id>.json
//	state/health.json, state/domains.json, state/mode, state/rr_index, ...
//	templates/socks-template.json
//	logs/*.log
type Store struct {
	baseDir string
}

// New returns a Store rooted at baseDir, creating the well-known
// subdirectories if absent.
func New(baseDir string) (*Store, error) {
	s := &Store{baseDir: baseDir}
	for _, dir := range []string{s.configsDir(), s.stateDir(), s.templatesDir(), s.logsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) BaseDir() string      { return s.baseDir }
func (s *Store) configsDir() string   { return filepath.Join(s.baseDir, "configs") }
func (s *Store) stateDir() string     { return filepath.Join(s.baseDir, "state") }
func (s *Store) templatesDir() string { return filepath.Join(s.baseDir, "templates") }
func (s *Store) logsDir() string      { return filepath.Join(s.baseDir, "logs") }

// StateDir exposes state/ for the process-lock package (lock files live
// alongside the documents they protect).
func (s *Store) StateDir() string { return s.stateDir() }

// LogsDir exposes logs/ for the logging package.
func (s *Store) LogsDir() string { return s.logsDir() }

// TemplatePath returns the path to the operator-supplied probe-proxy config
// template.
func (s *Store) TemplatePath() string {
	return filepath.Join(s.templatesDir(), "socks-template.json")
}

// writeAtomic writes data to path via a sibling temp file plus rename, so
// readers never observe a partial write (spec §4.1).
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// writeJSONAtomic marshals v as indented JSON and writes it atomically.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	return writeAtomic(path, data, 0644)
}

// readJSON unmarshals path into v. If the file is missing, it leaves v
// untouched and returns nil — callers pre-populate v with the documented
// default before calling readJSON.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: unmarshal %s: %w", path, err)
	}
	return nil
}

// splitExtra unmarshals data as a JSON object and returns every key not in
// known, so a type's UnmarshalJSON can preserve fields it doesn't itself
// declare (spec §4.1 "no schema migration — unknown fields are preserved by
// read-modify-write").
func splitExtra(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range m {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		extra[k] = v
	}
	return extra, nil
}

// mergeExtra re-encodes base (the JSON of a type's own fields) merged with
// extra, so previously-unknown fields round-trip through a read-modify-write
// instead of being dropped.
func mergeExtra(base []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// readString reads a scalar text file, returning def if missing.
func readString(path, def string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return def, nil
		}
		return def, fmt.Errorf("store: read %s: %w", path, err)
	}
	return string(data), nil
}

// writeString writes a scalar text file atomically.
func writeString(path, value string) error {
	return writeAtomic(path, []byte(value), 0644)
}
