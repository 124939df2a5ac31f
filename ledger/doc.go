/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ledger holds the build-number ledger: a flat mapping from an
// identifier to the last build number handed out for it.
//
// On disk the ledger is a JSON object written with sorted keys and two-space
// indentation so that every update produces a one-line diff in git history:
//
//	{
//	  "api": 12,
//	  "web": 3
//	}
//
// An identifier that is absent from the ledger is equivalent to one that maps
// to zero. Values never decrease; Increment is the only mutator.
package ledger
