// Package runlock guards the state directory so at most one orchestrator
// mutates a store at a time. The lock is advisory flock-based; a second
// invocation fails fast instead of racing the first.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock owns the per-state-directory lock file.
type Lock struct {
	path string
	lock *flock.Flock
}

// New prepares a lock rooted at the state directory. Nothing is acquired
// until Acquire is called.
func New(stateDir string) *Lock {
	path := filepath.Join(stateDir, "callpipe.lock")
	return &Lock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock without blocking. It fails when another process
// already holds it.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("state directory %s is in use by another run", filepath.Dir(l.path))
	}
	return nil
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
