/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package lockfile provides an exclusive advisory lock keyed by a file path.
//
// The lock is cooperative: it only excludes other holders that go through
// this package for the same key. Within a process holders are serialized by a
// per-key semaphore; across processes on the same machine by flock(2) on a
// lock file derived from the key.
//
// The lock file does not live next to the guarded file. It is placed in a
// separate directory (os.TempDir by default) and named from a hash of the
// key's absolute path, so tools that rewrite the guarded directory, such as a
// git checkout or reset, cannot delete it while it is held.
//
//	l, err := lockfile.New("/work/build_numbers.json")
//	if err != nil {
//		return err
//	}
//	if err := l.Acquire(ctx); err != nil {
//		return err
//	}
//	defer l.Release()
package lockfile
