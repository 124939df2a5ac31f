/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultBranch is the branch holding the ledger when none is configured.
	DefaultBranch = "build-numbers"
	// DefaultFile is the ledger file name when none is configured.
	DefaultFile = "build_numbers.json"
)

// OptionalBool is a boolean that remembers whether it was set at all, so a
// default can apply only when the value is absent and an explicit false is
// honored.
type OptionalBool struct {
	set   bool
	value bool
}

// Bool returns a set OptionalBool.
func Bool(v bool) OptionalBool {
	return OptionalBool{set: true, value: v}
}

// IsSet reports whether a value was provided.
func (b OptionalBool) IsSet() bool { return b.set }

// Or returns the value when set and def otherwise.
func (b OptionalBool) Or(def bool) bool {
	if !b.set {
		return def
	}
	return b.value
}

func (b OptionalBool) String() string {
	if !b.set {
		return "unset"
	}
	return strconv.FormatBool(b.value)
}

// ParseOptionalBool accepts the YAML 1.2 core schema booleans used for
// workflow inputs (true, True, TRUE, false, False, FALSE). The empty string
// yields an unset value.
func ParseOptionalBool(s string) (OptionalBool, error) {
	switch strings.TrimSpace(s) {
	case "":
		return OptionalBool{}, nil
	case "true", "True", "TRUE":
		return Bool(true), nil
	case "false", "False", "FALSE":
		return Bool(false), nil
	default:
		return OptionalBool{}, fmt.Errorf("%q is not a YAML 1.2 core schema boolean (true | True | TRUE | false | False | FALSE)", s)
	}
}

// EnvDecode implements envconfig.Decoder.
func (b *OptionalBool) EnvDecode(val string) error {
	parsed, err := ParseOptionalBool(val)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Config selects which counter a Run reads and whether it advances it.
type Config struct {
	// Branch holding the ledger. Defaults to DefaultBranch.
	Branch string
	// Identifier is the ledger key. Required.
	Identifier string
	// Increment gates the mutation; unset means true.
	Increment OptionalBool
	// File is the ledger path relative to the working tree root. Defaults to
	// DefaultFile.
	File string
}

// Validate reports whether Run would accept c, without touching git or the
// file system. Errors wrap ErrConfiguration.
func (c Config) Validate() error {
	_, err := c.resolve()
	return err
}

type resolved struct {
	branch     string
	identifier string
	increment  bool
	file       string
}

func (c Config) resolve() (resolved, error) {
	r := resolved{
		branch:     strings.TrimSpace(c.Branch),
		identifier: strings.TrimSpace(c.Identifier),
		increment:  c.Increment.Or(true),
		file:       strings.TrimSpace(c.File),
	}
	if r.branch == "" {
		r.branch = DefaultBranch
	}
	if r.file == "" {
		r.file = DefaultFile
	}

	if r.identifier == "" {
		return resolved{}, fmt.Errorf("%w: identifier is required", ErrConfiguration)
	}
	if !filepath.IsLocal(r.file) {
		return resolved{}, fmt.Errorf("%w: ledger file %q must be a relative path inside the repository", ErrConfiguration, c.File)
	}
	r.file = filepath.Clean(r.file)
	return r, nil
}
