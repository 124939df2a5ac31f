/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitsign provides a keyless commit signer backed by Sigstore. The
// signing identity comes from the ambient OIDC provider, which on GitHub
// Actions requires the workflow to grant `id-token: write`.
package gitsign

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	gogit "github.com/go-git/go-git/v5"
	"github.com/sigstore/cosign/v2/pkg/providers"
	"github.com/sigstore/gitsign/pkg/fulcio"
	"github.com/sigstore/gitsign/pkg/gitsign"
	"github.com/sigstore/gitsign/pkg/rekor"
	"github.com/sigstore/sigstore/pkg/oauthflow"
	"golang.org/x/oauth2"

	// Ledger updates run on GitHub Actions, so only the GitHub provider is linked.
	_ "github.com/sigstore/cosign/v2/pkg/providers/github"
)

const (
	fulcioURL = "https://fulcio.sigstore.dev"
	rekorURL  = "https://rekor.sigstore.dev"
	issuerURL = "https://oauth2.sigstore.dev/auth"
	audience  = "sigstore"
)

// ErrNoProvider is returned when no ambient OIDC provider is available.
var ErrNoProvider = errors.New("no sigstore providers enabled")

// NewSigner returns a go-git Signer that obtains a short-lived certificate
// from Fulcio and records signatures in Rekor.
func NewSigner(ctx context.Context) (gogit.Signer, error) {
	if !providers.Enabled(ctx) {
		return nil, noProviderError(os.Getenv)
	}

	fulcio, err := fulcio.NewClient(fulcioURL, fulcio.OIDCOptions{
		ClientID: audience,
		Issuer:   issuerURL,
		TokenGetter: &providerTokenGetter{
			ctx:      ctx,
			audience: audience,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating fulcio client: %w", err)
	}
	rekor, err := rekor.NewWithOptions(ctx, rekorURL)
	if err != nil {
		return nil, fmt.Errorf("creating rekor client: %w", err)
	}
	return gitsign.NewSigner(ctx, fulcio, rekor)
}

// noProviderError explains why no OIDC token is available. On Actions the
// runner only exposes the token request endpoint when the job grants
// `id-token: write`.
func noProviderError(getenv func(string) string) error {
	if getenv("GITHUB_ACTIONS") != "true" {
		return fmt.Errorf("%w: signed ledger commits need the GitHub Actions OIDC token, set sign to false when running elsewhere", ErrNoProvider)
	}
	if getenv("ACTIONS_ID_TOKEN_REQUEST_URL") == "" || getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN") == "" {
		return fmt.Errorf("%w: the job has no OIDC token, add `permissions: id-token: write` to the workflow to sign ledger commits", ErrNoProvider)
	}
	return ErrNoProvider
}

type providerTokenGetter struct {
	ctx      context.Context
	audience string
}

func (p *providerTokenGetter) GetIDToken(_ *oidc.Provider, _ oauth2.Config) (*oauthflow.OIDCIDToken, error) {
	token, err := providers.Provide(p.ctx, p.audience)
	if err != nil {
		return nil, fmt.Errorf("provide token: %w", err)
	}
	payload, err := decodeJWTPayload(token)
	if err != nil {
		return nil, err
	}
	subject, err := oauthflow.SubjectFromUnverifiedToken(payload)
	if err != nil {
		return nil, fmt.Errorf("extract subject: %w", err)
	}
	return &oauthflow.OIDCIDToken{RawString: token, Subject: subject}, nil
}

func decodeJWTPayload(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid jwt format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
