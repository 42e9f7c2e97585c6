// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
)

// DefaultBufferSize is the per-direction capacity in bytes.
const DefaultBufferSize = 4096

var (
	// ErrClosed is returned by operations on a closed channel, and by
	// waits that were pending when the channel closed.
	ErrClosed = errors.New("channel: closed")

	// ErrWindowOpen is returned when acquiring a window while another
	// is still open on the same end.
	ErrWindowOpen = errors.New("channel: a window is already open")

	// ErrNoWindow is returned when releasing a window that was never
	// acquired.
	ErrNoWindow = errors.New("channel: no window open")
)

// Channel is one end of a bounded, bidirectional message channel.
type Channel interface {
	// AcquireReceive blocks until a message is available and opens
	// the receive window.
	AcquireReceive(ctx context.Context) error

	// ReleaseReceive closes the receive window and frees the slot for
	// the next incoming message.
	ReleaseReceive() error

	// AcquireSend blocks until the outgoing slot is free and opens the
	// send window.
	AcquireSend(ctx context.Context) error

	// ReleaseSend publishes the first n bytes of SendBuffer and closes
	// the send window.
	ReleaseSend(n int) error

	// ReceiveBuffer returns the message under the open receive window.
	// The slice is only valid until ReleaseReceive.
	ReceiveBuffer() []byte

	// SendBuffer returns the full outgoing slot.
	SendBuffer() []byte

	// Capacity is the largest message, in bytes, either direction can
	// carry.
	Capacity() int

	Close() error
}

// Resetter is implemented by channels that can discard any in-flight
// messages and return both directions to empty.
type Resetter interface {
	Reset() error
}

// Config names the shared resources a channel is built from. The
// session forwards it unchanged; only lib/channel/shm interprets the
// names.
type Config struct {
	BufferSize        int    `yaml:"buffer_size"`
	SegmentName       string `yaml:"segment_name"`
	ControllerMailbox string `yaml:"controller_mailbox"`
	SimulatorMailbox  string `yaml:"simulator_mailbox"`
	LockName          string `yaml:"lock_name"`
}

// DefaultConfig returns the names the simulator's gym bindings use
// when none are configured.
func DefaultConfig() Config {
	return Config{
		BufferSize:        DefaultBufferSize,
		SegmentName:       "seg0",
		ControllerMailbox: "cpp2py0",
		SimulatorMailbox:  "py2cpp0",
		LockName:          "lockable0",
	}
}

// Validate reports configuration the channel cannot be built from.
func (c Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("channel buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.SegmentName == "" {
		return errors.New("channel segment_name is required")
	}
	if c.ControllerMailbox == "" || c.SimulatorMailbox == "" {
		return errors.New("channel mailbox names are required")
	}
	if c.ControllerMailbox == c.SimulatorMailbox {
		return fmt.Errorf("channel mailboxes must differ, both are %q", c.ControllerMailbox)
	}
	if c.LockName == "" {
		return errors.New("channel lock_name is required")
	}
	return nil
}
