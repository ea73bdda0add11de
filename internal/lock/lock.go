// Package lock implements the named, non-blocking exclusive file locks that
// gate the monitor and rotate ticks (spec §4.2), grounded on the flock(2)
// process-lock pattern used for CLI instance locking in the pack (compare
// cmd/aleutian/internal/infra/process/lock.go and
// services/trace/lock/locker_unix.go): open-or-create a lock file, attempt
// LOCK_EX|LOCK_NB, and treat EWOULDBLOCK as "someone else holds it" rather
// than an error.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrHeld is returned by Acquire when another process already holds the lock.
var ErrHeld = errors.New("lock: held by another process")

// Mutex is an exclusive, non-blocking, named file lock under dir.
type Mutex struct {
	path string
	file *os.File
}

// New returns a Mutex for name under dir (e.g. dir/monitor.lock). The
// directory must already exist or be creatable.
func New(dir, name string) (*Mutex, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("lock: create dir %s: %w", dir, err)
	}
	return &Mutex{path: filepath.Join(dir, name+".lock")}, nil
}

// Acquire attempts a non-blocking exclusive lock. Returns ErrHeld if another
// process holds it — this is not treated as an error by callers (spec:
// "the call returns success-without-running and logs a warning").
func (m *Mutex) Acquire() error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("lock: open %s: %w", m.path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrHeld
		}
		return fmt.Errorf("lock: flock %s: %w", m.path, err)
	}

	m.file = f
	return nil
}

// Release unlocks and closes the lock file. Safe to call even if Acquire
// was never called or failed. The lock file itself is left on disk for
// fast subsequent acquires, matching the grounded implementation's choice.
func (m *Mutex) Release() error {
	if m.file == nil {
		return nil
	}
	err := syscall.Flock(int(m.file.Fd()), syscall.LOCK_UN)
	closeErr := m.file.Close()
	m.file = nil
	if err != nil {
		return fmt.Errorf("lock: unlock %s: %w", m.path, err)
	}
	return closeErr
}

// WithLock runs fn while holding the named lock in dir. If the lock is
// already held elsewhere, fn is skipped and ran=false is returned with no
// error — the spec's ConcurrentTick case, not a failure.
func WithLock(dir, name string, fn func() error) (ran bool, err error) {
	m, err := New(dir, name)
	if err != nil {
		return false, err
	}
	if err := m.Acquire(); err != nil {
		if errors.Is(err, ErrHeld) {
			return false, nil
		}
		return false, err
	}
	defer m.Release()

	if err := fn(); err != nil {
		return true, err
	}
	return true, nil
}
