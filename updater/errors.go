/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"errors"

	"chainguard.dev/buildledger/gitrepo"
)

// Errors returned by Run are wrapped in exactly one of these categories. The
// underlying cause stays reachable through errors.Is and errors.As.
var (
	// ErrConfiguration means the Config was unusable; nothing was touched.
	ErrConfiguration = errors.New("configuration error")
	// ErrBranchResolution means the ledger branch could not be checked out
	// or created.
	ErrBranchResolution = errors.New("branch resolution error")
	// ErrLockAcquisition means the ledger lock could not be taken; the
	// ledger was not read.
	ErrLockAcquisition = errors.New("lock acquisition error")
	// ErrLedgerIO means the ledger could not be read, parsed, written or
	// committed.
	ErrLedgerIO = errors.New("ledger I/O error")
	// ErrRemoteSync means a pull or push failed. A failed push may leave
	// the increment committed locally but not on the remote.
	ErrRemoteSync = errors.New("remote sync error")
)

var categories = []error{ErrConfiguration, ErrBranchResolution, ErrLockAcquisition, ErrLedgerIO, ErrRemoteSync}

func categorized(err error) bool {
	for _, c := range categories {
		if errors.Is(err, c) {
			return true
		}
	}
	return false
}

// isRetryable reports whether the pull..push sequence should run again.
func isRetryable(err error) bool {
	return errors.Is(err, gitrepo.ErrRejected)
}

// Category returns a short name for the category of err, for metric labels.
// A nil error is "success".
func Category(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrBranchResolution):
		return "branch_resolution"
	case errors.Is(err, ErrLockAcquisition):
		return "lock_acquisition"
	case errors.Is(err, ErrLedgerIO):
		return "ledger_io"
	case errors.Is(err, ErrRemoteSync):
		return "remote_sync"
	default:
		return "unknown"
	}
}
