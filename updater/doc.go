/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package updater implements the build ledger update: it hands out the next
// build number for an identifier and records it on a dedicated git branch.
//
// Each Run performs, in order:
//
//	checkout -> ensure ledger -> lock -> pull -> read -> mutate -> write -> commit -> push -> unlock
//
// The ledger is only written, committed and pushed when the build number
// changes. The local lock excludes concurrent runs on the same machine; across
// machines the git push is the arbiter, and a rejected push re-runs the
// pull..push part of the sequence (with the lock still held) on top of the new
// remote state.
//
// Git access goes through the Git interface so the sequence can be exercised
// without a real repository; gitrepo.Repository is the production
// implementation.
package updater
