/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitrepo drives a git working copy for automation that keeps state
// on a dedicated branch. A Repository is opened over an existing checkout (or
// cloned into a temporary directory) and configured with the token source and
// commit identity for the automation. It exposes the handful of operations a
// state branch needs:
//   - Checkout switches to the branch, creating it as an orphan branch with an
//     empty initial commit when neither a local nor a remote branch exists.
//   - Sync fetches the branch and hard-resets onto the remote tip, which is
//     treated as authoritative.
//   - Commit stages a single path and commits it with the automation identity.
//   - Push pushes the branch without force; a rejected (non-fast-forward) push
//     is reported as ErrRejected so callers can re-sync and try again.
//
// All network operations take a context and honor its deadline.
package gitrepo
