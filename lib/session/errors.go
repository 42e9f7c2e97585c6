// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"

	"github.com/gymlink/gymlink/lib/channel"
)

var (
	// ErrSessionActive is returned by Manager.Open while another
	// session from the same manager is live.
	ErrSessionActive = errors.New("session: a session is already open")

	// ErrSimulatorExited means the simulator process exited while the
	// session was waiting on the channel. The session is unusable until
	// Reset.
	ErrSimulatorExited = errors.New("session: simulator exited")

	// ErrEpisodeOver is returned by Step after a terminal observation.
	ErrEpisodeOver = errors.New("session: episode is over, call Reset")

	// ErrFailed is returned by Step after an earlier failure left the
	// protocol in an unknown state.
	ErrFailed = errors.New("session: failed, call Reset")

	// ErrClosed is returned by every method except Close after Close.
	ErrClosed = errors.New("session: closed")

	// ErrMessageTooLarge is wrapped in a *ProtocolError when an
	// outgoing message does not fit the channel.
	ErrMessageTooLarge = channel.ErrMessageTooLarge
)

// ProtocolError reports a message that could not be encoded, decoded
// or sent. It is fatal for the session.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return "session: protocol error during " + e.Op + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }
