// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gymlink/gymlink/lib/channel"
	"github.com/gymlink/gymlink/lib/clock"
	"github.com/gymlink/gymlink/lib/supervisor"
	"github.com/gymlink/gymlink/lib/trace"
)

const (
	// DefaultTerminateTimeout bounds how long Close and Reset wait for
	// a killed simulator tree to disappear.
	DefaultTerminateTimeout = 5 * time.Second

	// DefaultExitGrace is how long a simulator that was sent a close
	// request may take to exit on its own before it is killed.
	DefaultExitGrace = time.Second
)

// Options configure a session.
type Options struct {
	// ID names the session in logs, the state file and the trace.
	// Empty means a fresh random UUID.
	ID string

	Spec     supervisor.Spec
	Channel  channel.Channel
	Launcher Launcher

	Logger *slog.Logger
	Clock  clock.Clock

	// StateFile is where the launched simulator is recorded so a later
	// run can reap it if this process dies. Empty disables it.
	StateFile string

	TerminateTimeout time.Duration
	ExitGrace        time.Duration

	// Trace receives a record per reset, step and close when set. The
	// session does not close it.
	Trace *trace.Writer
}

func (o *Options) validate() error {
	if o.Channel == nil {
		return errors.New("session: no channel")
	}
	if o.Launcher == nil {
		return errors.New("session: no launcher")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.TerminateTimeout <= 0 {
		o.TerminateTimeout = DefaultTerminateTimeout
	}
	if o.ExitGrace <= 0 {
		o.ExitGrace = DefaultExitGrace
	}
	return nil
}

// Manager hands out at most one live session at a time. The zero value
// is ready to use.
type Manager struct {
	mu     sync.Mutex
	active *Session
}

// Active returns the live session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Open starts a session: it reaps a simulator left behind by a dead
// controller, launches a new one, performs the handshake and receives
// the first observation. On failure everything started is torn down and
// the manager is free again.
func (m *Manager) Open(ctx context.Context, options Options) (*Session, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	s := newSession(m, options)
	m.active = s
	m.mu.Unlock()

	if err := s.open(ctx); err != nil {
		m.release(s)
		return nil, err
	}
	return s, nil
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == s {
		m.active = nil
	}
}
