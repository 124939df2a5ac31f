/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chainguard.dev/buildledger/gitrepo"
)

// fakeRemote is the shared state of the ledger branch on the "server".
type fakeRemote struct {
	mu      sync.Mutex
	exists  bool
	content []byte
	commits []string
	// reject makes the next N pushes fail as if another writer won.
	reject int
	// pushErr fails every push with a non-rejection error.
	pushErr error
}

func (r *fakeRemote) snapshot() (bool, []byte, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exists, append([]byte(nil), r.content...), append([]string(nil), r.commits...)
}

// fakeGit is one working copy of a fakeRemote rooted in a real directory.
type fakeGit struct {
	remote *fakeRemote
	root   string
	file   string

	checkoutErr error

	mu      sync.Mutex
	calls   []string
	base    int
	pending []byte
	commits int
}

func newFakeGit(remote *fakeRemote, root string) *fakeGit {
	return &fakeGit{remote: remote, root: root, file: DefaultFile}
}

func (g *fakeGit) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGit) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGit) Root() string { return g.root }

func (g *fakeGit) Checkout(_ context.Context, branch string) (bool, error) {
	g.record("checkout " + branch)
	if g.checkoutErr != nil {
		return false, g.checkoutErr
	}
	g.remote.mu.Lock()
	defer g.remote.mu.Unlock()
	if g.remote.exists {
		return false, nil
	}
	g.remote.exists = true
	g.remote.commits = append(g.remote.commits, gitrepo.InitialCommitMessage)
	return true, nil
}

func (g *fakeGit) Sync(_ context.Context, branch string) error {
	g.record("sync " + branch)
	g.remote.mu.Lock()
	defer g.remote.mu.Unlock()
	if !g.remote.exists {
		return nil
	}
	g.mu.Lock()
	g.base = len(g.remote.commits)
	g.mu.Unlock()
	path := filepath.Join(g.root, g.file)
	if g.remote.content == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return os.WriteFile(path, g.remote.content, 0o644)
}

func (g *fakeGit) Commit(_ context.Context, path, message string) (string, error) {
	g.record("commit " + message)
	data, err := os.ReadFile(filepath.Join(g.root, path))
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = data
	g.commits++
	return fmt.Sprintf("%p-%d", g, g.commits), nil
}

func (g *fakeGit) Push(_ context.Context, branch string, _ bool) error {
	g.record("push " + branch)
	g.remote.mu.Lock()
	defer g.remote.mu.Unlock()
	if g.remote.pushErr != nil {
		return g.remote.pushErr
	}
	if g.remote.reject > 0 {
		g.remote.reject--
		// Another writer got there first.
		g.remote.commits = append(g.remote.commits, "concurrent update")
		return fmt.Errorf("%w: non-fast-forward", gitrepo.ErrRejected)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.base != len(g.remote.commits) {
		return fmt.Errorf("%w: fetch first", gitrepo.ErrRejected)
	}
	g.remote.content = g.pending
	g.remote.commits = append(g.remote.commits, fmt.Sprintf("%p-%d", g, g.commits))
	return nil
}

var errBoom = errors.New("boom")
