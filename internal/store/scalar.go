package store

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Mode is the process-wide selection policy (spec §3).
type Mode string

const (
	ModeBest Mode = "best"
	ModeRR   Mode = "rr"
)

func (s *Store) modePath() string { return filepath.Join(s.stateDir(), "mode") }

// GetMode returns the persisted mode, defaulting to "best" (spec §4.1).
func (s *Store) GetMode() (Mode, error) {
	v, err := readString(s.modePath(), string(ModeBest))
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v != string(ModeBest) && v != string(ModeRR) {
		return ModeBest, nil
	}
	return Mode(v), nil
}

// SetMode persists the mode, rejecting anything but "best"/"rr".
func (s *Store) SetMode(m Mode) error {
	if m != ModeBest && m != ModeRR {
		return fmt.Errorf("store: invalid mode %q", m)
	}
	return writeString(s.modePath(), string(m))
}

func (s *Store) rrIndexPath() string { return filepath.Join(s.stateDir(), "rr_index") }

// GetRRIndex returns the persisted RR index, defaulting to 0.
func (s *Store) GetRRIndex() (int, error) {
	v, err := readString(s.rrIndexPath(), "0")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SetRRIndex persists the RR index.
func (s *Store) SetRRIndex(n int) error {
	return writeString(s.rrIndexPath(), strconv.Itoa(n))
}

func (s *Store) lastAlertPath() string { return filepath.Join(s.stateDir(), "last_alert") }

// GetLastAlertEpoch returns the last alert unix epoch, defaulting to 0.
func (s *Store) GetLastAlertEpoch() (int64, error) {
	return s.readEpoch(s.lastAlertPath())
}

// SetLastAlertEpoch persists the last alert unix epoch.
func (s *Store) SetLastAlertEpoch(epoch int64) error {
	return writeString(s.lastAlertPath(), strconv.FormatInt(epoch, 10))
}

func (s *Store) lastMonitorPath() string { return filepath.Join(s.stateDir(), "last_monitor") }

// GetLastMonitorEpoch returns the last monitor-tick unix epoch, defaulting to 0.
func (s *Store) GetLastMonitorEpoch() (int64, error) {
	return s.readEpoch(s.lastMonitorPath())
}

// SetLastMonitorEpoch persists the last monitor-tick unix epoch.
func (s *Store) SetLastMonitorEpoch(epoch int64) error {
	return writeString(s.lastMonitorPath(), strconv.FormatInt(epoch, 10))
}

func (s *Store) lastRotatePath() string { return filepath.Join(s.stateDir(), "last_rotate") }

// GetLastRotateEpoch returns the last rotate-tick unix epoch, defaulting to 0.
func (s *Store) GetLastRotateEpoch() (int64, error) {
	return s.readEpoch(s.lastRotatePath())
}

// SetLastRotateEpoch persists the last rotate-tick unix epoch.
func (s *Store) SetLastRotateEpoch(epoch int64) error {
	return writeString(s.lastRotatePath(), strconv.FormatInt(epoch, 10))
}

func (s *Store) currentIPPath() string { return filepath.Join(s.stateDir(), "current_ip") }

// GetCurrentIP returns the cached current IP, defaulting to "" (absent).
func (s *Store) GetCurrentIP() (string, error) {
	v, err := readString(s.currentIPPath(), "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// SetCurrentIP persists the current-IP cache.
func (s *Store) SetCurrentIP(ip string) error {
	return writeString(s.currentIPPath(), ip)
}

func (s *Store) readEpoch(path string) (int64, error) {
	v, err := readString(path, "0")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
