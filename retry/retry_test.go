/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		failures     int
		failWith     error
		wantAttempts int
		wantErr      error
	}{{
		name:         "first attempt succeeds",
		cfg:          fastConfig(3),
		wantAttempts: 1,
	}, {
		name:         "succeeds after retries",
		cfg:          fastConfig(3),
		failures:     2,
		failWith:     errTransient,
		wantAttempts: 3,
	}, {
		name:         "exhausts retries",
		cfg:          fastConfig(2),
		failures:     10,
		failWith:     errTransient,
		wantAttempts: 3,
		wantErr:      errTransient,
	}, {
		name:         "non-retryable error stops immediately",
		cfg:          fastConfig(3),
		failures:     10,
		failWith:     errors.New("fatal"),
		wantAttempts: 1,
	}, {
		name:         "zero retries",
		cfg:          fastConfig(0),
		failures:     1,
		failWith:     errTransient,
		wantAttempts: 1,
		wantErr:      errTransient,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			got, err := Do(context.Background(), tt.cfg, "test", isTransient, func(attempt int) (int, error) {
				attempts++
				if attempt != attempts {
					t.Errorf("attempt = %d, want %d", attempt, attempts)
				}
				if attempts <= tt.failures {
					return 0, tt.failWith
				}
				return attempts, nil
			})

			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Do() error = %v, want %v", err, tt.wantErr)
				}
			case tt.failures >= tt.wantAttempts:
				if err == nil {
					t.Errorf("Do() error = nil, want failure")
				}
			default:
				if err != nil {
					t.Fatalf("Do() error = %v", err)
				}
				if got != tt.wantAttempts {
					t.Errorf("Do() = %d, want %d", got, tt.wantAttempts)
				}
			}
		})
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, BaseBackoff: time.Hour}

	_, err := Do(ctx, cfg, "test", isTransient, func(int) (struct{}, error) {
		cancel()
		return struct{}{}, errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
	for _, cfg := range []Config{
		{MaxRetries: -1},
		{BaseBackoff: -1},
		{MaxBackoff: -1},
		{MaxJitter: -1},
	} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", cfg)
		}
	}
}
