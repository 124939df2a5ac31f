/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"chainguard.dev/buildledger/ledger"
	"chainguard.dev/buildledger/lockfile"
	"chainguard.dev/buildledger/retry"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Git is the working copy the ledger lives in.
type Git interface {
	// Root is the absolute path of the working tree.
	Root() string
	// Checkout switches to branch, creating it when it exists neither
	// locally nor remotely. created reports the latter.
	Checkout(ctx context.Context, branch string) (created bool, err error)
	// Sync brings the local branch to the remote state.
	Sync(ctx context.Context, branch string) error
	// Commit stages path (relative to Root) and commits it.
	Commit(ctx context.Context, path, message string) (string, error)
	// Push publishes branch. A non-fast-forward rejection must wrap
	// gitrepo.ErrRejected.
	Push(ctx context.Context, branch string, setUpstream bool) error
}

// Recorder receives measurements taken during a Run.
type Recorder interface {
	ObserveLockWait(time.Duration)
	ObservePushAttempt()
	ObserveResult(*Result, error)
}

// Result is the outcome of a Run.
type Result struct {
	Identifier string
	// BuildNumber is the value handed out for Identifier.
	BuildNumber int
	// Incremented reports whether this Run advanced the counter.
	Incremented bool
	// Commit is the ledger commit pushed by this Run, empty on a read.
	Commit string
	// Created reports whether this Run created the ledger branch.
	Created bool
	// Attempts counts pull..push passes, more than one after rejected pushes.
	Attempts int
	// Ledger is the ledger as of this Run.
	Ledger ledger.Ledger
}

// Updater hands out build numbers from a ledger kept in a Git working copy.
type Updater struct {
	git         Git
	lockTimeout time.Duration
	gitTimeout  time.Duration
	lockDir     string
	retry       retry.Config
	recorder    Recorder
}

// New constructs an Updater over g.
func New(g Git, opts ...Option) (*Updater, error) {
	if g == nil {
		return nil, errors.New("git cannot be nil")
	}
	u := &Updater{
		git:         g,
		lockTimeout: DefaultLockTimeout,
		gitTimeout:  DefaultGitTimeout,
		retry:       retry.DefaultConfig(),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(u)
	}
	if err := u.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	if u.lockTimeout < 0 || u.gitTimeout < 0 {
		return nil, errors.New("timeouts cannot be negative")
	}
	return u, nil
}

func tracer() oteltrace.Tracer {
	return otel.Tracer("chainguard.dev/buildledger/updater",
		oteltrace.WithInstrumentationVersion("1.0.0"))
}

// Run reads the build number for cfg.Identifier, advances it when requested
// (or when the identifier has never been seen) and publishes the change.
func (u *Updater) Run(ctx context.Context, cfg Config) (res *Result, err error) {
	defer func() { u.recorder.ObserveResult(res, err) }()

	rc, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	ctx, span := tracer().Start(ctx, "buildledger.update", oteltrace.WithAttributes(
		attribute.String("ledger.identifier", rc.identifier),
		attribute.String("ledger.branch", rc.branch),
		attribute.Bool("ledger.increment", rc.increment),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("ledger.build_number", res.BuildNumber),
				attribute.Int("ledger.attempts", res.Attempts),
			)
		}
		span.End()
	}()

	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("identifier", rc.identifier))
	log := clog.FromContext(ctx)
	log.Infof("Using branch: %s", rc.branch)
	log.Infof("Using identifier: %s", rc.identifier)
	log.Infof("Increment flag: %t (input %s)", rc.increment, cfg.Increment)

	var created bool
	if err := u.withGitTimeout(ctx, "checkout", func(ctx context.Context) error {
		var err error
		created, err = u.git.Checkout(ctx, rc.branch)
		return err
	}); err != nil {
		return nil, fmt.Errorf("%w: checking out %s: %w", ErrBranchResolution, rc.branch, err)
	}

	path := filepath.Join(u.git.Root(), rc.file)
	if _, err := ledger.EnsureExists(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}

	lock, err := u.acquire(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockAcquisition, err)
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			log.Warnf("Releasing ledger lock: %v", rerr)
		}
	}()

	res, err = retry.Do(ctx, u.retry, "update build number", isRetryable, func(attempt int) (*Result, error) {
		return u.attempt(ctx, rc, path, created, attempt)
	})
	if err != nil {
		if !categorized(err) {
			err = fmt.Errorf("%w: %w", ErrRemoteSync, err)
		}
		return nil, err
	}
	res.Created = created
	return res, nil
}

// attempt runs pull -> read -> mutate -> write -> commit -> push once. The
// ledger lock is held by the caller.
func (u *Updater) attempt(ctx context.Context, rc resolved, path string, created bool, attempt int) (*Result, error) {
	ctx, span := tracer().Start(ctx, "buildledger.attempt", oteltrace.WithAttributes(
		attribute.Int("attempt", attempt),
	))
	defer span.End()
	log := clog.FromContext(ctx)

	if err := u.withGitTimeout(ctx, "pull", func(ctx context.Context) error {
		return u.git.Sync(ctx, rc.branch)
	}); err != nil {
		return nil, fmt.Errorf("%w: pulling %s: %w", ErrRemoteSync, rc.branch, err)
	}

	l, err := ledger.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}

	current := l.Get(rc.identifier)
	if current == 0 {
		log.Infof("No build number found for %s, initializing", rc.identifier)
	} else {
		log.Infof("Current build number: %d", current)
	}

	res := &Result{
		Identifier:  rc.identifier,
		BuildNumber: current,
		Attempts:    attempt,
	}

	// A never-seen identifier always gets its first number, even on a read.
	if !rc.increment && current != 0 {
		log.Info("Build number retrieval only, no increment performed")
		res.Ledger = l
		return res, nil
	}

	next := l.Increment(rc.identifier)
	log.Infof("New build number: %d", next)
	if err := ledger.Save(path, l); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerIO, err)
	}

	message := fmt.Sprintf("Update build number for %s to %d", rc.identifier, next)
	hash, err := u.git.Commit(ctx, rc.file, message)
	if err != nil {
		return nil, fmt.Errorf("%w: committing ledger: %w", ErrLedgerIO, err)
	}

	u.recorder.ObservePushAttempt()
	if err := u.withGitTimeout(ctx, "push", func(ctx context.Context) error {
		return u.git.Push(ctx, rc.branch, created)
	}); err != nil {
		log.Warnf("Build number %d for %s is committed locally as %s but was not pushed: %v", next, rc.identifier, hash, err)
		return nil, fmt.Errorf("%w: pushing %s: %w", ErrRemoteSync, rc.branch, err)
	}

	res.BuildNumber = next
	res.Incremented = true
	res.Commit = hash
	res.Ledger = l
	return res, nil
}

func (u *Updater) acquire(ctx context.Context, path string) (*lockfile.Lock, error) {
	var opts []lockfile.Option
	if u.lockDir != "" {
		opts = append(opts, lockfile.WithDir(u.lockDir))
	}
	lock, err := lockfile.New(path, opts...)
	if err != nil {
		return nil, err
	}

	if u.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.lockTimeout)
		defer cancel()
	}

	ctx, span := tracer().Start(ctx, "buildledger.lock")
	defer span.End()

	start := time.Now()
	err = lock.Acquire(ctx)
	u.recorder.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func (u *Updater) withGitTimeout(ctx context.Context, op string, fn func(context.Context) error) error {
	if u.gitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.gitTimeout)
		defer cancel()
	}
	ctx, span := tracer().Start(ctx, "buildledger.git."+op)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveLockWait(time.Duration) {}
func (nopRecorder) ObservePushAttempt()           {}
func (nopRecorder) ObserveResult(*Result, error)  {}
