/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package lockfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/gofrs/flock"
)

const (
	lockFilePrefix    = "buildledger-"
	defaultRetryDelay = 100 * time.Millisecond
)

// holders serializes lock holders inside this process, keyed by lock file
// path. flock(2) alone is not enough because the same process may open the
// lock file more than once.
var holders sync.Map // map[string]chan struct{}

// ContentionError is returned when the lock could not be acquired before the
// context was done.
type ContentionError struct {
	Key    string
	Path   string
	Waited time.Duration
	Err    error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock contention on %s (lock file %s, waited %s): %v",
		e.Key, e.Path, e.Waited.Truncate(time.Millisecond), e.Err)
}

func (e *ContentionError) Unwrap() error { return e.Err }

// Lock is an exclusive advisory lock for a single key.
type Lock struct {
	key        string
	dir        string
	retryDelay time.Duration

	path string
	fl   *flock.Flock
	sem  chan struct{}

	mu   sync.Mutex
	held bool
}

// Option configures a Lock.
type Option func(*Lock)

// WithDir places the lock file in dir instead of os.TempDir().
func WithDir(dir string) Option {
	return func(l *Lock) {
		l.dir = dir
	}
}

// WithRetryDelay sets how often a contended lock is polled.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Lock) {
		l.retryDelay = d
	}
}

// New returns an unheld lock for key, which is normally the path of the file
// the lock guards.
func New(key string, opts ...Option) (*Lock, error) {
	if key == "" {
		return nil, errors.New("lock key cannot be empty")
	}
	abs, err := filepath.Abs(key)
	if err != nil {
		return nil, fmt.Errorf("resolving lock key: %w", err)
	}

	l := &Lock{
		key:        abs,
		dir:        os.TempDir(),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.retryDelay <= 0 {
		l.retryDelay = defaultRetryDelay
	}

	sum := sha256.Sum256([]byte(abs))
	l.path = filepath.Join(l.dir, lockFilePrefix+hex.EncodeToString(sum[:8])+".lock")
	l.fl = flock.New(l.path)

	sem, _ := holders.LoadOrStore(l.path, make(chan struct{}, 1))
	l.sem = sem.(chan struct{})
	return l, nil
}

// Key returns the absolute path the lock is keyed by.
func (l *Lock) Key() string { return l.key }

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire blocks until the lock is held or ctx is done. Bound the wait with a
// context deadline; an expired or cancelled context yields a
// *ContentionError.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return errors.New("lock already held by this handle")
	}

	start := time.Now()
	contention := func(err error) error {
		return &ContentionError{Key: l.key, Path: l.path, Waited: time.Since(start), Err: err}
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return contention(ctx.Err())
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		<-l.sem
		return fmt.Errorf("creating lock directory: %w", err)
	}

	locked, err := l.fl.TryLockContext(ctx, l.retryDelay)
	if err != nil || !locked {
		<-l.sem
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contention(ctxErr)
		}
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return fmt.Errorf("locking %s: %w", l.path, err)
	}

	l.held = true
	clog.FromContext(ctx).With("lock", l.path).Debugf("Acquired lock for %s after %s", l.key, time.Since(start))
	return nil
}

// Release unlocks the lock. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}

	l.held = false
	err := l.fl.Unlock()
	<-l.sem
	if err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return nil
}
