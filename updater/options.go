/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"time"

	"chainguard.dev/buildledger/retry"
)

const (
	// DefaultLockTimeout bounds the wait for the ledger lock.
	DefaultLockTimeout = 2 * time.Minute
	// DefaultGitTimeout bounds each fetch or push.
	DefaultGitTimeout = 2 * time.Minute
)

// Option configures the Updater.
type Option func(*Updater)

// WithLockTimeout bounds the wait for the ledger lock. Zero waits until the
// context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(u *Updater) {
		u.lockTimeout = d
	}
}

// WithGitTimeout bounds each checkout, pull and push. Zero disables the
// per-operation bound.
func WithGitTimeout(d time.Duration) Option {
	return func(u *Updater) {
		u.gitTimeout = d
	}
}

// WithRetry configures how often a rejected push is retried.
func WithRetry(cfg retry.Config) Option {
	return func(u *Updater) {
		u.retry = cfg
	}
}

// WithLockDir places lock files in dir.
func WithLockDir(dir string) Option {
	return func(u *Updater) {
		u.lockDir = dir
	}
}

// WithRecorder installs a Recorder for metrics.
func WithRecorder(r Recorder) Option {
	return func(u *Updater) {
		if r != nil {
			u.recorder = r
		}
	}
}
