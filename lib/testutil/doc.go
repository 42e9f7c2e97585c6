// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by gymlink's tests.
//
// [RequireReceive], [RequireClosed] and [RequireEventually] wrap the
// select-with-timeout pattern so a hung test fails with a message
// instead of running until the test binary's deadline.
//
// [WriteScript] and [FakeSimulator] create small shell programs that
// stand in for a simulator build, so supervisor tests exercise real
// processes without one.
package testutil
