// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets code that waits on time be driven by tests.
//
// Production code holds a [Clock] from [Real]. Tests substitute
// [Fake], start the goroutine under test, call
// [FakeClock.WaitForWaiters] until it has registered its wait, then
// [FakeClock.Advance] past the deadline:
//
//	fake := clock.Fake(time.Unix(0, 0))
//	go supervisor.Launch(ctx, spec)
//	fake.WaitForWaiters(1)
//	fake.Advance(500 * time.Millisecond)
package clock
