// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package that gymlink waits on.
// Supervisor grace periods, termination deadlines and shared-memory
// polling all go through a Clock so tests can drive them.
type Clock interface {
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d fires immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks for d.
	Sleep(d time.Duration)
}
