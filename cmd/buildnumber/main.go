/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the build number step: it hands out the next build
// number for an identifier from a ledger kept on a git branch, and publishes
// it as the build-number output and the BUILD_NUMBER variable.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chainguard.dev/buildledger/actions"
	"chainguard.dev/buildledger/gitrepo"
	"chainguard.dev/buildledger/gitrepo/gitsign"
	"chainguard.dev/buildledger/retry"
	"chainguard.dev/buildledger/telemetry"
	"chainguard.dev/buildledger/updater"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
)

type config struct {
	Token      string               `env:"INPUT_TOKEN"`
	Branch     string               `env:"INPUT_BRANCH,default=build-numbers"`
	Identifier string               `env:"INPUT_IDENTIFIER"`
	Increment  updater.OptionalBool `env:"INPUT_INCREMENT"`
	File       string               `env:"INPUT_FILE,default=build_numbers.json"`

	// Repository, when set, is cloned into a temporary directory instead of
	// using the checkout in WorkingDirectory.
	Repository       string `env:"INPUT_REPOSITORY"`
	WorkingDirectory string `env:"INPUT_WORKING_DIRECTORY,default=."`

	AuthorName  string `env:"INPUT_AUTHOR_NAME,default=GitHub Action"`
	AuthorEmail string `env:"INPUT_AUTHOR_EMAIL,default=action@github.com"`
	Sign        bool   `env:"INPUT_SIGN,default=false"`

	MaxRetries  int           `env:"INPUT_MAX_RETRIES,default=5"`
	LockTimeout time.Duration `env:"INPUT_LOCK_TIMEOUT,default=2m"`
	GitTimeout  time.Duration `env:"INPUT_GIT_TIMEOUT,default=2m"`

	PushgatewayURL   string `env:"PUSHGATEWAY_URL"`
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	GitHubRepository string `env:"GITHUB_REPOSITORY"`
}

const inputPrefix = "INPUT_"

// inputLookuper adapts envconfig keys to the runner's input variables. The
// runner keeps hyphens in input names (INPUT_WORKING-DIRECTORY), which are not
// valid in envconfig tags, so INPUT_ keys are looked up with underscores
// turned back into hyphens first. Empty variables are treated as unset: the
// runner passes every declared input, with an empty value when the workflow
// gave none.
type inputLookuper struct {
	envconfig.Lookuper
}

func (l inputLookuper) Lookup(key string) (string, bool) {
	if name, ok := strings.CutPrefix(key, inputPrefix); ok && strings.Contains(name, "_") {
		if v, ok := l.Lookuper.Lookup(inputPrefix + strings.ReplaceAll(name, "_", "-")); ok && v != "" {
			return v, true
		}
	}
	v, ok := l.Lookuper.Lookup(key)
	if v == "" {
		return "", false
	}
	return v, ok
}

func (c config) updaterConfig() updater.Config {
	return updater.Config{
		Branch:     c.Branch,
		Identifier: c.Identifier,
		Increment:  c.Increment,
		File:       c.File,
	}
}

func loadConfig(ctx context.Context, l envconfig.Lookuper) (config, error) {
	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: inputLookuper{l},
	}); err != nil {
		return config{}, fmt.Errorf("%w: %w", updater.ErrConfiguration, err)
	}
	return cfg, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h := actions.NewHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(h))
	ctx = clog.WithLogger(ctx, clog.New(h))

	runner := actions.FromEnv()

	cfg, err := loadConfig(ctx, envconfig.OsLookuper())
	if err == nil {
		err = run(ctx, cfg, runner)
	}
	if err != nil {
		runner.Fail(fmt.Sprintf("Action failed with error: %v", err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, runner *actions.Runner) error {
	// Nothing is opened or cloned for an unusable configuration.
	if err := cfg.updaterConfig().Validate(); err != nil {
		return err
	}

	shutdown, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		clog.WarnContextf(ctx, "Tracing disabled: %v", err)
		shutdown = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			clog.WarnContextf(ctx, "Flushing traces: %v", err)
		}
	}()

	metrics := telemetry.NewMetrics()
	if cfg.PushgatewayURL != "" {
		defer pushMetrics(ctx, cfg, metrics)
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", updater.ErrBranchResolution, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			clog.WarnContextf(ctx, "Cleaning up repository: %v", err)
		}
	}()

	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	u, err := updater.New(repo,
		updater.WithLockTimeout(cfg.LockTimeout),
		updater.WithGitTimeout(cfg.GitTimeout),
		updater.WithRetry(rc),
		updater.WithRecorder(metrics),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", updater.ErrConfiguration, err)
	}

	res, err := u.Run(ctx, cfg.updaterConfig())
	if err != nil {
		return err
	}

	value := strconv.Itoa(res.BuildNumber)
	if err := runner.SetOutput(ctx, "build-number", value); err != nil {
		return err
	}
	if err := runner.ExportVariable(ctx, "BUILD_NUMBER", value); err != nil {
		return err
	}

	summary, err := actions.BuildSummary{
		Identifier:  res.Identifier,
		BuildNumber: res.BuildNumber,
		Incremented: res.Incremented,
		Branch:      cfg.Branch,
		Commit:      res.Commit,
		Ledger:      res.Ledger,
	}.Markdown()
	if err == nil {
		err = runner.AppendSummary(summary)
	}
	if err != nil {
		clog.WarnContextf(ctx, "Writing job summary: %v", err)
	}
	return nil
}

func openRepository(ctx context.Context, cfg config) (*gitrepo.Repository, error) {
	opts := []gitrepo.Option{gitrepo.WithIdentity(cfg.AuthorName, cfg.AuthorEmail)}
	if cfg.Token != "" {
		opts = append(opts, gitrepo.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})))
	}
	if cfg.Sign {
		signer, err := gitsign.NewSigner(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating commit signer: %w", err)
		}
		opts = append(opts, gitrepo.WithSigner(signer))
	}

	if cfg.Repository != "" {
		clog.InfoContextf(ctx, "Cloning %s", cfg.Repository)
		return gitrepo.Clone(ctx, cfg.Repository, opts...)
	}
	return gitrepo.Open(ctx, cfg.WorkingDirectory, opts...)
}

func pushMetrics(ctx context.Context, cfg config, metrics *telemetry.Metrics) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var grouping []string
	if cfg.GitHubRepository != "" {
		grouping = append(grouping, "repository", cfg.GitHubRepository)
	}
	if err := metrics.Push(ctx, cfg.PushgatewayURL, telemetry.DefaultJob, grouping...); err != nil {
		clog.WarnContextf(ctx, "Pushing metrics: %v", err)
	}
}
