// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "fmt"

// State is the position of a session in its lifecycle.
//
//	Uninitialized → Handshaking → Ready ⇄ Stepping
//	Ready → GameOver (terminal observation)
//	any → Failed (protocol error, simulator exit, cancellation)
//	Ready, GameOver, Failed → Handshaking (Reset)
//	any → Closed
type State int

const (
	StateUninitialized State = iota
	StateHandshaking
	StateReady
	StateStepping
	StateGameOver
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateStepping:
		return "stepping"
	case StateGameOver:
		return "game-over"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
