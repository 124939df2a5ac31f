/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// InitialCommitMessage is the message of the empty commit that starts a newly
// created orphan branch.
const InitialCommitMessage = "Initialize branch"

// errRemoteBranchMissing reports that the remote has no such branch.
var errRemoteBranchMissing = errors.New("remote branch does not exist")

// Checkout switches the working copy to branch. When the branch exists
// neither locally nor on the remote it is created as an orphan branch: every
// tracked file is removed, an empty commit is recorded and the branch is
// pushed with upstream tracking. created reports whether that happened.
func (r *Repository) Checkout(ctx context.Context, branch string) (created bool, err error) {
	if branch == "" {
		return false, errors.New("branch name cannot be empty")
	}
	log := clog.FromContext(ctx).With("branch", branch)

	worktree, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	refName := plumbing.NewBranchReferenceName(branch)

	_, err = r.repo.Reference(refName, true)
	switch {
	case err == nil:
		log.Infof("Checking out local branch %s", branch)
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
			return false, fmt.Errorf("checking out %s: %w", branch, err)
		}
		return false, nil
	case !errors.Is(err, plumbing.ErrReferenceNotFound):
		return false, fmt.Errorf("resolving %s: %w", branch, err)
	}

	hash, err := r.fetchBranch(ctx, branch)
	switch {
	case err == nil:
		log.Infof("Checking out %s from %s/%s", branch, r.remote, branch)
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName, Hash: hash, Create: true}); err != nil {
			return false, fmt.Errorf("checking out %s: %w", branch, err)
		}
		if err := r.setUpstream(branch); err != nil {
			return false, err
		}
		return false, nil
	case errors.Is(err, errRemoteBranchMissing):
		log.Infof("Branch %s does not exist, creating orphan branch", branch)
		if err := r.createOrphan(ctx, branch); err != nil {
			return false, fmt.Errorf("creating orphan branch %s: %w", branch, err)
		}
		return true, nil
	default:
		return false, err
	}
}

// CurrentBranch returns the short name of the branch HEAD points at, which
// may not have any commits yet.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference {
		return "", errors.New("HEAD is detached")
	}
	return head.Target().Short(), nil
}

// fetchBranch fetches branch from the remote into its remote-tracking ref and
// returns the fetched tip.
func (r *Repository) fetchBranch(ctx context.Context, branch string) (plumbing.Hash, error) {
	auth, err := r.auth()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting token: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, r.remote, branch))
	clog.FromContext(ctx).Debugf("Fetching %s", refSpec)

	err = r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: r.remote,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, git.NoMatchingRefSpecError{}), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return plumbing.ZeroHash, errRemoteBranchMissing
	default:
		return plumbing.ZeroHash, fmt.Errorf("fetching %s: %w", branch, err)
	}

	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(r.remote, branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, errRemoteBranchMissing
		}
		return plumbing.ZeroHash, fmt.Errorf("getting remote ref %s: %w", branch, err)
	}
	return ref.Hash(), nil
}

// createOrphan is the equivalent of
//
//	git checkout --orphan <branch> && git rm -rf . && git commit --allow-empty
//
// followed by a push that sets upstream tracking.
func (r *Repository) createOrphan(ctx context.Context, branch string) error {
	refName := plumbing.NewBranchReferenceName(branch)
	if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, refName)); err != nil {
		return fmt.Errorf("pointing HEAD at %s: %w", branch, err)
	}

	if err := r.removeTracked(); err != nil {
		return err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	hash, err := worktree.Commit(InitialCommitMessage, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            r.signature(),
		Signer:            r.signer,
	})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	clog.FromContext(ctx).Infof("Initialized %s at %s", branch, hash)

	return r.Push(ctx, branch, true)
}

// removeTracked deletes every file in the index from the working tree and
// empties the index. Untracked files are left alone.
func (r *Repository) removeTracked() error {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}

	dirs := map[string]struct{}{}
	for _, e := range idx.Entries {
		path := filepath.Join(r.root, filepath.FromSlash(e.Name))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", e.Name, err)
		}
		for dir := filepath.Dir(path); dir != r.root && len(dir) > len(r.root); dir = filepath.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}

	// Deepest directories first; non-empty ones still hold untracked files.
	for len(dirs) > 0 {
		deepest := ""
		for dir := range dirs {
			if len(dir) > len(deepest) {
				deepest = dir
			}
		}
		delete(dirs, deepest)
		_ = os.Remove(deepest)
	}

	if err := r.repo.Storer.SetIndex(&index.Index{Version: 2}); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	return nil
}

// setUpstream records branch.<name>.remote and branch.<name>.merge.
func (r *Repository) setUpstream(branch string) error {
	cfg, err := r.repo.Config()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg.Branches[branch] = &gitconfig.Branch{
		Name:   branch,
		Remote: r.remote,
		Merge:  plumbing.NewBranchReferenceName(branch),
	}
	if err := r.repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("setting upstream for %s: %w", branch, err)
	}
	return nil
}

func initWithRemote(dir, remote, url string) (*git.Repository, error) {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: remote, URLs: []string{url}}); err != nil {
		return nil, err
	}
	return repo, nil
}
