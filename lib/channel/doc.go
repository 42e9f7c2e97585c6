// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel defines the bounded message channel between the
// controller and the simulator.
//
// A [Channel] carries one message at a time in each direction. The
// caller opens a window with AcquireReceive or AcquireSend, reads
// [Channel.ReceiveBuffer] or fills [Channel.SendBuffer], and closes the
// window with the matching release. Only one window may be open on an
// end at a time; acquiring a second returns [ErrWindowOpen].
//
// [NewPipe] connects two ends in memory and is what the tests use.
// The shared-memory implementation used by the binaries lives in
// lib/channel/shm.
package channel
