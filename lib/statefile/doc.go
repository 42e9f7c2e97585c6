// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile records which simulator process a controller is
// supervising, so that a later run can clean up after a controller that
// died without terminating its simulator.
//
// The controller calls [Write] after a successful launch and [Clear]
// once the simulator is terminated. On startup, [Reap] reads any
// leftover [Record]: when the recording controller is gone and the
// recorded simulator is still running the same command, its process
// tree is killed. The file is written atomically (temporary file,
// fsync, rename, directory fsync) so readers never see a partial
// record. Records are CBOR.
package statefile
