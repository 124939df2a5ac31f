/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrMalformed is returned when ledger content is not a JSON object of
// non-negative integers.
var ErrMalformed = errors.New("malformed ledger")

// Ledger maps identifiers to build numbers.
type Ledger map[string]int

// Get returns the build number recorded for id, or zero when id has never
// been seen.
func (l Ledger) Get(id string) int {
	return l[id]
}

// Increment advances the build number for id by one and returns the new value.
func (l Ledger) Increment(id string) int {
	l[id]++
	return l[id]
}

// Identifiers returns the recorded identifiers in sorted order.
func (l Ledger) Identifiers() []string {
	return slices.Sorted(maps.Keys(l))
}

// Clone returns an independent copy of the ledger.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return Ledger{}
	}
	return maps.Clone(l)
}

// Validate checks that every entry has a non-empty identifier and a
// non-negative build number.
func (l Ledger) Validate() error {
	for _, id := range l.Identifiers() {
		if id == "" {
			return fmt.Errorf("%w: empty identifier", ErrMalformed)
		}
		if n := l[id]; n < 0 {
			return fmt.Errorf("%w: %q has negative build number %d", ErrMalformed, id, n)
		}
	}
	return nil
}

// Parse decodes ledger content. Empty input and a JSON null both decode to an
// empty ledger.
func Parse(data []byte) (Ledger, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Ledger{}, nil
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if l == nil {
		l = Ledger{}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Format encodes the ledger with sorted keys, two-space indentation and a
// trailing newline.
func Format(l Ledger) ([]byte, error) {
	if l == nil {
		l = Ledger{}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ledger: %w", err)
	}
	return append(data, '\n'), nil
}
