/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// Environment variables naming the runner's file commands.
const (
	EnvOutput  = "GITHUB_OUTPUT"
	EnvEnv     = "GITHUB_ENV"
	EnvSummary = "GITHUB_STEP_SUMMARY"
)

const delimiterPrefix = "ghadelimiter_"

// Runner writes step results where the Actions runner picks them up.
type Runner struct {
	outputFile  string
	envFile     string
	summaryFile string
	stdout      io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutputFile sets the file step outputs are appended to.
func WithOutputFile(path string) Option {
	return func(r *Runner) { r.outputFile = path }
}

// WithEnvFile sets the file exported variables are appended to.
func WithEnvFile(path string) Option {
	return func(r *Runner) { r.envFile = path }
}

// WithSummaryFile sets the job summary file.
func WithSummaryFile(path string) Option {
	return func(r *Runner) { r.summaryFile = path }
}

// WithStdout sets where workflow commands are written.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

// NewRunner returns a Runner with no file commands configured.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{stdout: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromEnv returns a Runner configured from the runner's environment.
func FromEnv(opts ...Option) *Runner {
	return NewRunner(append([]Option{
		WithOutputFile(os.Getenv(EnvOutput)),
		WithEnvFile(os.Getenv(EnvEnv)),
		WithSummaryFile(os.Getenv(EnvSummary)),
	}, opts...)...)
}

// SetOutput sets a step output. Outside a runner the value is only logged.
func (r *Runner) SetOutput(ctx context.Context, name, value string) error {
	if r.outputFile == "" {
		clog.FromContext(ctx).Infof("Output %s=%s", name, value)
		return nil
	}
	if err := appendKeyValue(r.outputFile, name, value); err != nil {
		return fmt.Errorf("setting output %s: %w", name, err)
	}
	return nil
}

// ExportVariable sets name for this process and for later steps of the job.
func (r *Runner) ExportVariable(ctx context.Context, name, value string) error {
	if err := os.Setenv(name, value); err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	if r.envFile == "" {
		clog.FromContext(ctx).Infof("Exported %s=%s", name, value)
		return nil
	}
	if err := appendKeyValue(r.envFile, name, value); err != nil {
		return fmt.Errorf("exporting %s: %w", name, err)
	}
	return nil
}

// AppendSummary appends markdown to the job summary. It is a no-op outside a
// runner.
func (r *Runner) AppendSummary(markdown string) error {
	if r.summaryFile == "" {
		return nil
	}
	return appendFile(r.summaryFile, markdown)
}

// Fail reports msg as an error annotation. The caller decides the exit code.
func (r *Runner) Fail(msg string) {
	_ = IssueCommand(r.stdout, CommandError, nil, msg)
}

// formatKeyValue renders a file command record as
//
//	name<<ghadelimiter_<uuid>
//	value
//	ghadelimiter_<uuid>
func formatKeyValue(name, value string) (string, error) {
	if name == "" {
		return "", errors.New("name cannot be empty")
	}
	delimiter := delimiterPrefix + uuid.NewString()
	if strings.Contains(name, delimiter) {
		return "", fmt.Errorf("name should not contain the delimiter %q", delimiter)
	}
	if strings.Contains(value, delimiter) {
		return "", fmt.Errorf("value should not contain the delimiter %q", delimiter)
	}
	return name + "<<" + delimiter + "\n" + value + "\n" + delimiter + "\n", nil
}

func appendKeyValue(path, name, value string) error {
	record, err := formatKeyValue(name, value)
	if err != nil {
		return err
	}
	return appendFile(path, record)
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // path comes from the runner
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
