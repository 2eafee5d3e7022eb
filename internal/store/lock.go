package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrIndexLocked is returned by TryLock when another process holds the lock.
var ErrIndexLocked = errors.New("index is locked by another process")

// IndexLock is a cross-process lock on a persist directory. It stops two
// `pubrag index` runs from writing the same index.
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIndexLock returns an unlocked lock at <dir>/.index.lock.
func NewIndexLock(dir string) *IndexLock {
	p := NewLayout(dir).LockPath()
	return &IndexLock{path: p, flock: flock.New(p)}
}

// TryLock acquires the lock without blocking.
func (l *IndexLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ErrIndexLocked
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked lock is a no-op.
func (l *IndexLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (l *IndexLock) Path() string   { return l.path }
func (l *IndexLock) IsLocked() bool { return l.locked }
