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
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const (
	cloneDirPrefix = "buildledger-clone-"

	// DefaultRemote is the remote used for fetch and push.
	DefaultRemote = "origin"
	// DefaultAuthorName and DefaultAuthorEmail form the commit identity used
	// when none is configured.
	DefaultAuthorName  = "GitHub Action"
	DefaultAuthorEmail = "action@github.com"
)

// Repository is a git working copy opened for state-branch updates.
type Repository struct {
	repo *git.Repository
	root string

	remote      string
	tokenSource oauth2.TokenSource
	authorName  string
	authorEmail string
	signer      git.Signer
	cleanup     func() error
}

// Option configures a Repository.
type Option func(*Repository)

// WithTokenSource authenticates fetches and pushes with HTTP basic auth using
// the token as password.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(r *Repository) {
		r.tokenSource = ts
	}
}

// WithIdentity sets the commit author. An email without a domain is suffixed
// with @users.noreply.github.com.
func WithIdentity(name, email string) Option {
	return func(r *Repository) {
		if name = strings.TrimSpace(name); name != "" {
			r.authorName = name
		}
		if email = strings.TrimSpace(email); email != "" {
			if !strings.Contains(email, "@") {
				email = fmt.Sprintf("%s@users.noreply.github.com", email)
			}
			r.authorEmail = email
		}
	}
}

// WithSigner signs every commit created through the Repository.
func WithSigner(s git.Signer) Option {
	return func(r *Repository) {
		r.signer = s
	}
}

// WithRemote selects the remote to fetch from and push to.
func WithRemote(name string) Option {
	return func(r *Repository) {
		if name != "" {
			r.remote = name
		}
	}
}

func newRepository(repo *git.Repository, opts ...Option) (*Repository, error) {
	r := &Repository{
		repo:        repo,
		remote:      DefaultRemote,
		authorName:  DefaultAuthorName,
		authorEmail: DefaultAuthorEmail,
	}
	for _, opt := range opts {
		opt(r)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	r.root = wt.Filesystem.Root()
	return r, nil
}

// Open opens the working copy containing dir.
func Open(ctx context.Context, dir string, opts ...Option) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", dir, err)
	}
	r, err := newRepository(repo, opts...)
	if err != nil {
		return nil, err
	}
	clog.FromContext(ctx).Debugf("Opened repository at %s", r.root)
	return r, nil
}

// Clone clones url into a fresh temporary directory. Close removes it.
func Clone(ctx context.Context, url string, opts ...Option) (*Repository, error) {
	if url == "" {
		return nil, errors.New("repository url cannot be empty")
	}

	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	// Resolve options once up front so the clone authenticates the same way
	// later fetches and pushes do.
	probe := &Repository{remote: DefaultRemote}
	for _, opt := range opts {
		opt(probe)
	}
	auth, err := probe.auth()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("getting token: %w", err)
	}

	clog.FromContext(ctx).Infof("Cloning repository %s into %s", url, dir)
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:        url,
		RemoteName: probe.remote,
		Auth:       auth,
	})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		// Nothing to check out yet; start from an empty repository wired to
		// the remote so the state branch can be created and pushed.
		repo, err = initWithRemote(dir, probe.remote, url)
	}
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	r, err := newRepository(repo, opts...)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	r.cleanup = func() error { return os.RemoveAll(dir) }
	return r, nil
}

// Root returns the absolute path of the working tree.
func (r *Repository) Root() string {
	return r.root
}

// Repo returns the underlying go-git repository.
func (r *Repository) Repo() *git.Repository {
	return r.repo
}

// Close releases resources held by the Repository. For clones this removes
// the temporary working tree.
func (r *Repository) Close() error {
	if r.cleanup == nil {
		return nil
	}
	err := r.cleanup()
	r.cleanup = nil
	return err
}

// auth returns nil when no token source is configured, which lets local and
// SSH remotes use their own credentials.
func (r *Repository) auth() (transport.AuthMethod, error) {
	if r.tokenSource == nil {
		return nil, nil
	}
	token, err := r.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, nil
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}

func (r *Repository) signature() *object.Signature {
	return &object.Signature{
		Name:  r.authorName,
		Email: r.authorEmail,
		When:  time.Now(),
	}
}
