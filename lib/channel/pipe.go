// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// mailbox is a single-slot, one-direction message buffer. Exactly one
// of ready and free holds a token at any time outside a window.
type mailbox struct {
	buffer []byte
	length int
	ready  chan struct{}
	free   chan struct{}
}

func newMailbox(capacity int) *mailbox {
	m := &mailbox{
		buffer: make([]byte, capacity),
		ready:  make(chan struct{}, 1),
		free:   make(chan struct{}, 1),
	}
	m.free <- struct{}{}
	return m
}

// drain returns the mailbox to empty regardless of its state.
func (m *mailbox) drain() {
	select {
	case <-m.ready:
	default:
	}
	select {
	case <-m.free:
	default:
	}
	m.length = 0
	m.free <- struct{}{}
}

type window int

const (
	noWindow window = iota
	receiveWindow
	sendWindow
)

// Stats counts completed messages on one end.
type Stats struct {
	MessagesSent     int64
	BytesSent        int64
	MessagesReceived int64
	BytesReceived    int64
}

// shared is the state both ends of a pipe hold.
type shared struct {
	closeOnce sync.Once
	closed    chan struct{}
	ends      [2]*PipeEnd
}

// PipeEnd is one end of an in-memory channel created by NewPipe.
type PipeEnd struct {
	pipe     *shared
	incoming *mailbox
	outgoing *mailbox

	mu     sync.Mutex
	window window

	messagesSent     atomic.Int64
	bytesSent        atomic.Int64
	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
}

// NewPipe returns the controller and simulator ends of an in-memory
// channel whose messages in each direction hold up to capacity bytes.
// Closing either end closes both.
func NewPipe(capacity int) (controller, simulator *PipeEnd) {
	toController := newMailbox(capacity)
	toSimulator := newMailbox(capacity)
	pipe := &shared{closed: make(chan struct{})}
	controller = &PipeEnd{pipe: pipe, incoming: toController, outgoing: toSimulator}
	simulator = &PipeEnd{pipe: pipe, incoming: toSimulator, outgoing: toController}
	pipe.ends = [2]*PipeEnd{controller, simulator}
	return controller, simulator
}

func (e *PipeEnd) open(w window) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.window != noWindow {
		return ErrWindowOpen
	}
	e.window = w
	return nil
}

func (e *PipeEnd) close(w window) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.window != w {
		return ErrNoWindow
	}
	e.window = noWindow
	return nil
}

// wait takes a token from tokens, honouring ctx and pipe closure.
func (e *PipeEnd) wait(ctx context.Context, tokens chan struct{}) error {
	select {
	case <-e.pipe.closed:
		return ErrClosed
	default:
	}
	select {
	case <-tokens:
		return nil
	case <-e.pipe.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *PipeEnd) AcquireReceive(ctx context.Context) error {
	if err := e.open(receiveWindow); err != nil {
		return err
	}
	if err := e.wait(ctx, e.incoming.ready); err != nil {
		e.close(receiveWindow)
		return err
	}
	return nil
}

func (e *PipeEnd) ReleaseReceive() error {
	if err := e.close(receiveWindow); err != nil {
		return err
	}
	e.messagesReceived.Add(1)
	e.bytesReceived.Add(int64(e.incoming.length))
	e.incoming.free <- struct{}{}
	return nil
}

func (e *PipeEnd) AcquireSend(ctx context.Context) error {
	if err := e.open(sendWindow); err != nil {
		return err
	}
	if err := e.wait(ctx, e.outgoing.free); err != nil {
		e.close(sendWindow)
		return err
	}
	return nil
}

func (e *PipeEnd) ReleaseSend(n int) error {
	if n < 0 || n > len(e.outgoing.buffer) {
		return fmt.Errorf("channel: message of %d bytes exceeds capacity %d", n, len(e.outgoing.buffer))
	}
	if err := e.close(sendWindow); err != nil {
		return err
	}
	e.outgoing.length = n
	e.messagesSent.Add(1)
	e.bytesSent.Add(int64(n))
	e.outgoing.ready <- struct{}{}
	return nil
}

func (e *PipeEnd) ReceiveBuffer() []byte { return e.incoming.buffer[:e.incoming.length] }

func (e *PipeEnd) SendBuffer() []byte { return e.outgoing.buffer }

func (e *PipeEnd) Capacity() int { return len(e.outgoing.buffer) }

// Close closes both ends and wakes every pending wait with ErrClosed.
func (e *PipeEnd) Close() error {
	e.pipe.closeOnce.Do(func() { close(e.pipe.closed) })
	return nil
}

// Reset empties both directions and clears any window left open on
// either end. It must not race with a pending acquire.
func (e *PipeEnd) Reset() error {
	select {
	case <-e.pipe.closed:
		return ErrClosed
	default:
	}
	for _, end := range e.pipe.ends {
		end.mu.Lock()
		end.window = noWindow
		end.mu.Unlock()
	}
	e.incoming.drain()
	e.outgoing.drain()
	return nil
}

// Stats returns the traffic counters of this end.
func (e *PipeEnd) Stats() Stats {
	return Stats{
		MessagesSent:     e.messagesSent.Load(),
		BytesSent:        e.bytesSent.Load(),
		MessagesReceived: e.messagesReceived.Load(),
		BytesReceived:    e.bytesReceived.Load(),
	}
}

var (
	_ Channel  = (*PipeEnd)(nil)
	_ Resetter = (*PipeEnd)(nil)
)
