/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/oauth2"
)

const testBranch = "build-numbers"

func TestCheckoutCreatesOrphanBranch(t *testing.T) {
	ctx := context.Background()
	origin := initTestRepo(t)

	r := cloneTestRepo(t, origin)

	untracked := filepath.Join(r.Root(), "untracked.txt")
	if err := os.WriteFile(untracked, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	created, err := r.Checkout(ctx, testBranch)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !created {
		t.Fatalf("Checkout() created = false, want true for a missing branch")
	}

	if _, err := os.Stat(filepath.Join(r.Root(), "packages", "foo.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("tracked file survived orphan creation, err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(r.Root(), "packages")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("emptied directory survived orphan creation, err=%v", err)
	}
	if _, err := os.Stat(untracked); err != nil {
		t.Errorf("untracked file removed: %v", err)
	}

	current, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if current != testBranch {
		t.Errorf("CurrentBranch() = %q, want %q", current, testBranch)
	}

	commit := branchTip(t, origin, testBranch)
	if strings.TrimSpace(commit.Message) != InitialCommitMessage {
		t.Errorf("initial commit message = %q, want %q", commit.Message, InitialCommitMessage)
	}
	if commit.NumParents() != 0 {
		t.Errorf("orphan commit has %d parents, want 0", commit.NumParents())
	}
	if commit.Author.Name != DefaultAuthorName || commit.Author.Email != DefaultAuthorEmail {
		t.Errorf("author = %s <%s>, want %s <%s>", commit.Author.Name, commit.Author.Email, DefaultAuthorName, DefaultAuthorEmail)
	}
	tree, err := commit.Tree()
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree.Entries) != 0 {
		t.Errorf("orphan commit tree has %d entries, want 0", len(tree.Entries))
	}

	cfg, err := r.Repo().Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	b, ok := cfg.Branches[testBranch]
	if !ok {
		t.Fatalf("no upstream configured for %s", testBranch)
	}
	if b.Remote != DefaultRemote || b.Merge != plumbing.NewBranchReferenceName(testBranch) {
		t.Errorf("upstream = %s %s, want %s %s", b.Remote, b.Merge, DefaultRemote, plumbing.NewBranchReferenceName(testBranch))
	}
}

func TestCheckoutExistingBranch(t *testing.T) {
	ctx := context.Background()
	origin := initTestRepo(t)

	first := cloneTestRepo(t, origin)
	if _, err := first.Checkout(ctx, testBranch); err != nil {
		t.Fatalf("Checkout (first): %v", err)
	}
	writeAndCommit(t, first, "build_numbers.json", `{"app": 1}`, "seed")
	if err := first.Push(ctx, testBranch, false); err != nil {
		t.Fatalf("Push: %v", err)
	}

	// A second clone only knows the branch remotely.
	second := cloneTestRepo(t, origin)
	created, err := second.Checkout(ctx, testBranch)
	if err != nil {
		t.Fatalf("Checkout (second): %v", err)
	}
	if created {
		t.Errorf("Checkout() created = true for a branch that exists remotely")
	}
	data, err := os.ReadFile(filepath.Join(second.Root(), "build_numbers.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"app": 1}` {
		t.Errorf("ledger = %q, want seeded content", data)
	}

	// Checking out again now hits the local branch.
	created, err = second.Checkout(ctx, testBranch)
	if err != nil {
		t.Fatalf("Checkout (local): %v", err)
	}
	if created {
		t.Errorf("Checkout() created = true for an existing local branch")
	}
}

func TestPushRejectedThenSync(t *testing.T) {
	ctx := context.Background()
	origin := initTestRepo(t)

	seed := cloneTestRepo(t, origin)
	if _, err := seed.Checkout(ctx, testBranch); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	a := cloneTestRepo(t, origin)
	b := cloneTestRepo(t, origin)
	for _, r := range []*Repository{a, b} {
		if _, err := r.Checkout(ctx, testBranch); err != nil {
			t.Fatalf("Checkout: %v", err)
		}
	}

	writeAndCommit(t, a, "build_numbers.json", `{"app": 1}`, "from a")
	if err := a.Push(ctx, testBranch, false); err != nil {
		t.Fatalf("Push (a): %v", err)
	}

	writeAndCommit(t, b, "build_numbers.json", `{"app": 1}`, "from b")
	err := b.Push(ctx, testBranch, false)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Push (b) error = %v, want ErrRejected", err)
	}

	if err := b.Sync(ctx, testBranch); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	head, err := b.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if want := branchTip(t, origin, testBranch).Hash.String(); head != want {
		t.Errorf("Head() after Sync = %s, want remote tip %s", head, want)
	}

	writeAndCommit(t, b, "build_numbers.json", `{"app": 2}`, "from b again")
	if err := b.Push(ctx, testBranch, false); err != nil {
		t.Fatalf("Push after Sync: %v", err)
	}
	if got := strings.TrimSpace(branchTip(t, origin, testBranch).Message); got != "from b again" {
		t.Errorf("remote tip message = %q, want %q", got, "from b again")
	}
}

func TestSyncWithoutRemoteBranch(t *testing.T) {
	ctx := context.Background()
	origin := initTestRepo(t)
	r := cloneTestRepo(t, origin)

	before, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if err := r.Sync(ctx, "missing"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	after, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if before != after {
		t.Errorf("Sync moved HEAD from %s to %s", before, after)
	}
}

func TestCloneEmptyRemote(t *testing.T) {
	ctx := context.Background()

	origin := t.TempDir()
	if _, err := git.PlainInit(origin, true); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	r := cloneTestRepo(t, origin)
	created, err := r.Checkout(ctx, testBranch)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !created {
		t.Errorf("Checkout() created = false on an empty remote")
	}
	if got := strings.TrimSpace(branchTip(t, origin, testBranch).Message); got != InitialCommitMessage {
		t.Errorf("remote tip message = %q, want %q", got, InitialCommitMessage)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := initTestRepo(t)

	r, err := Open(ctx, filepath.Join(dir, "packages"), WithIdentity("bot", "bot"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	got, err := filepath.EvalSymlinks(r.Root())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	if got != root {
		t.Errorf("Root() = %q, want %q", got, root)
	}
	if r.authorEmail != "bot@users.noreply.github.com" {
		t.Errorf("author email = %q, want domain suffix", r.authorEmail)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if _, err := Open(ctx, t.TempDir()); err == nil {
		t.Errorf("Open() of a non-repository should fail")
	}
}

func TestCommitRejectsEscapingPath(t *testing.T) {
	r := cloneTestRepo(t, initTestRepo(t))
	if _, err := r.Commit(context.Background(), "../outside.json", "nope"); err == nil {
		t.Errorf("Commit() of a path outside the worktree should fail")
	}
	if _, err := r.Commit(context.Background(), "packages/foo.yaml", ""); err == nil {
		t.Errorf("Commit() with an empty message should fail")
	}
}

func TestAuth(t *testing.T) {
	r := &Repository{}
	auth, err := r.auth()
	if err != nil || auth != nil {
		t.Errorf("auth() without token source = %v, %v; want nil, nil", auth, err)
	}

	r.tokenSource = staticTokenSource("")
	if auth, err := r.auth(); err != nil || auth != nil {
		t.Errorf("auth() with empty token = %v, %v; want nil, nil", auth, err)
	}

	r.tokenSource = staticTokenSource("s3cr3t")
	auth, err = r.auth()
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if auth == nil || auth.Name() != "http-basic-auth" {
		t.Errorf("auth() = %v, want basic auth", auth)
	}
}

// initTestRepo creates a non-bare origin with one commit on master.
func initTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "packages"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "packages", "foo.yaml"), []byte("name: foo"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := wt.Add("packages/foo.yaml"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))); err != nil {
		t.Fatalf("SetReference: %v", err)
	}
	return dir
}

func cloneTestRepo(t *testing.T, origin string) *Repository {
	t.Helper()
	r, err := Clone(context.Background(), origin, WithTokenSource(staticTokenSource("")))
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func writeAndCommit(t *testing.T, r *Repository, name, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.Root(), name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := r.Commit(context.Background(), name, message); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func branchTip(t *testing.T, dir, branch string) *object.Commit {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("Reference %s: %v", branch, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	return commit
}

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}
