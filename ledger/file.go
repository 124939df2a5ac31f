/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads the ledger at path. A missing file is an empty ledger.
func Load(path string) (Ledger, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is the configured ledger file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Ledger{}, nil
		}
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return l, nil
}

// Save writes the ledger to path.
func Save(path string, l Ledger) error {
	data, err := Format(l)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // ledger is committed to git
		return fmt.Errorf("writing ledger: %w", err)
	}
	return nil
}

// EnsureExists writes an empty ledger to path when nothing is there yet. It
// reports whether a file was created. An existing file is never overwritten,
// even when it appears concurrently.
func EnsureExists(path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating ledger directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // ledger is committed to git
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating ledger: %w", err)
	}
	data, err := Format(Ledger{})
	if err != nil {
		f.Close()
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, fmt.Errorf("writing ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("writing ledger: %w", err)
	}
	return true, nil
}
