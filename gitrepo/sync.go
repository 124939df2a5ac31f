/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrRejected is returned by Push when the remote refuses the update because
// the branch moved on (a non-fast-forward push). Sync and retry.
var ErrRejected = errors.New("push rejected by remote")

// Sync fetches branch from the remote and hard-resets the working copy onto
// the fetched tip. Local commits the remote does not have are discarded. When
// the remote has no such branch Sync leaves the working copy untouched.
func (r *Repository) Sync(ctx context.Context, branch string) error {
	log := clog.FromContext(ctx).With("branch", branch)

	hash, err := r.fetchBranch(ctx, branch)
	if errors.Is(err, errRemoteBranchMissing) {
		log.Infof("Remote has no branch %s, nothing to pull", branch)
		return nil
	}
	if err != nil {
		return err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting to %s/%s: %w", r.remote, branch, err)
	}
	log.Infof("Synchronized %s with %s/%s at %s", branch, r.remote, branch, hash)
	return nil
}

// Commit stages path (relative to the working tree root) and commits it. It
// returns the new commit hash.
func (r *Repository) Commit(ctx context.Context, path, message string) (string, error) {
	if message == "" {
		return "", errors.New("commit message cannot be empty")
	}
	rel, err := r.relative(path)
	if err != nil {
		return "", err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return "", fmt.Errorf("staging %s: %w", rel, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: r.signature(),
		Signer: r.signer,
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	clog.FromContext(ctx).Infof("Committed %s: %s", hash, message)
	return hash.String(), nil
}

// Push pushes branch to the remote without forcing. With setUpstream the
// branch is configured to track the remote branch afterwards.
func (r *Repository) Push(ctx context.Context, branch string, setUpstream bool) error {
	log := clog.FromContext(ctx)

	auth, err := r.auth()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	log.Infof("Pushing %s to %s", refSpec, r.remote)

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: r.remote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	})
	switch {
	case err == nil:
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		log.Infof("Branch %s already up to date", branch)
	case isRejection(err):
		return fmt.Errorf("%w: %w", ErrRejected, err)
	default:
		return fmt.Errorf("pushing %s: %w", branch, err)
	}

	if setUpstream {
		return r.setUpstream(branch)
	}
	return nil
}

// Head returns the hash of the commit HEAD points at.
func (r *Repository) Head() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// relative turns path into a slash-separated path inside the working tree.
func (r *Repository) relative(path string) (string, error) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return "", fmt.Errorf("path %q: %w", path, err)
		}
		path = rel
	}
	path = filepath.Clean(path)
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q escapes worktree", path)
	}
	return filepath.ToSlash(path), nil
}

// isRejection recognizes both the client-side fast-forward check and a
// server-side refusal.
func isRejection(err error) bool {
	if errors.Is(err, git.ErrForceNeeded) || errors.Is(err, git.ErrNonFastForwardUpdate) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "fetch first")
}
