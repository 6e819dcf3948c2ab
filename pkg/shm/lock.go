package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/lineage/internal/log"
)

// pollInterval is how often a blocked Acquire retries.
const pollInterval = 5 * time.Millisecond

// Lock is an exclusive advisory lock on a well-known file.
//
// Locks are per open file description: two Lock values in one process
// exclude each other just like two processes do.
type Lock struct {
	path    string
	timeout time.Duration
}

// NewLock returns a lock on path. Acquire gives up after timeout.
func NewLock(path string, timeout time.Duration) *Lock {
	return &Lock{path: path, timeout: timeout}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire blocks until the lock is held or the timeout expires, and
// returns the function that releases it.
func (l *Lock) Acquire() (release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	start := time.Now()
	deadline := start.Add(l.timeout)
	for {
		err := tryLock(f)
		if err == nil {
			break
		}
		if !errors.Is(err, errWouldBlock) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, l.path, l.timeout)
		}
		time.Sleep(pollInterval)
	}
	log.Trace("region lock acquired", "path", l.path, "waited", time.Since(start))

	return func() error {
		unlockErr := unlock(f)
		closeErr := f.Close()
		if unlockErr != nil {
			return fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
		}
		return closeErr
	}, nil
}

// With runs fn while holding the lock.
func (l *Lock) With(fn func() error) error {
	release, err := l.Acquire()
	if err != nil {
		return err
	}
	fnErr := fn()
	if err := release(); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}
