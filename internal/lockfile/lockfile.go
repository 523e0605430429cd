// Package lockfile provides the per-PID advisory lock that keeps two tracer
// instances from attaching the same target concurrently.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned by Acquire when the lock for a PID is already held by
// another process or another Lockfile instance in this one.
var ErrHeld = errors.New("lockfile: already held")

// Lock is a held advisory lock. Release frees it.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes the exclusive advisory lock for pid under dir, creating dir
// if necessary. It never blocks: if the lock is already held, it returns
// ErrHeld immediately.
func Acquire(dir string, pid int) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: creating lock directory %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.lock", pid))
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lockfile: locking %q: %w", path, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return &Lock{path: path, fl: fl}, nil
}

// Release unlocks and removes the lock file. It is safe to call once.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("lockfile: unlocking %q: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: removing %q: %w", l.path, err)
	}
	return nil
}
