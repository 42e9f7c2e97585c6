// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs the controller side of a simulator episode loop.
//
// A [Manager] holds at most one live [Session]. [Manager.Open] launches
// the simulator, performs the handshake that fixes the action and
// observation spaces, and receives the first observation. The caller
// then alternates [Session.Step] calls until an observation is
// terminal, calls [Session.Reset] to relaunch for the next episode, and
// finally [Session.Close], which always leaves no simulator process
// behind.
//
// Every channel operation blocks until the simulator answers, the
// caller's context ends, or the simulator process exits. The last case
// is reported as [ErrSimulatorExited] without waiting for a timeout.
//
// Session methods are not meant to be called concurrently; they are
// serialized internally.
package session
