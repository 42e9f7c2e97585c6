// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"

	"github.com/gymlink/gymlink/lib/supervisor"
)

// Process is a launched simulator. *supervisor.Handle implements it.
type Process interface {
	Pid() int
	Command() string
	Alive() bool
	Done() <-chan struct{}
	ExitCode() int
	Terminate(timeout time.Duration) (supervisor.TerminateResult, error)
}

// Launcher starts a simulator.
type Launcher interface {
	Launch(ctx context.Context, spec supervisor.Spec) (Process, error)
}

// NewLauncher adapts a Supervisor to Launcher.
func NewLauncher(s *supervisor.Supervisor) Launcher {
	return supervisorLauncher{supervisor: s}
}

type supervisorLauncher struct {
	supervisor *supervisor.Supervisor
}

func (l supervisorLauncher) Launch(ctx context.Context, spec supervisor.Spec) (Process, error) {
	handle, err := l.supervisor.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	return handle, nil
}
