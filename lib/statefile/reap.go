// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/gymlink/gymlink/lib/supervisor"
)

// ErrControllerAlive is returned by Reap when the controller that
// wrote the record is still running.
var ErrControllerAlive = errors.New("state file belongs to a running controller")

// DefaultReapTimeout bounds how long Reap waits for a killed tree.
const DefaultReapTimeout = 5 * time.Second

// Outcome says what Reap did.
type Outcome int

const (
	// OutcomeNone means there was no state file.
	OutcomeNone Outcome = iota

	// OutcomeStale means the recorded simulator was already gone (or
	// its pid now belongs to another program). The file was removed.
	OutcomeStale

	// OutcomeTerminated means the recorded simulator tree was killed
	// and the file removed.
	OutcomeTerminated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeStale:
		return "stale"
	case OutcomeTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ReapOptions configure Reap. Zero values select defaults.
type ReapOptions struct {
	Timeout  time.Duration
	ProcRoot string
	Logger   *slog.Logger
}

// ReapResult reports the record that was found and what happened to it.
type ReapResult struct {
	Outcome    Outcome
	Record     Record
	Terminated supervisor.TerminateResult
}

// Reap cleans up after a controller that exited without terminating its
// simulator. See the package documentation.
func Reap(path string, options ReapOptions) (ReapResult, error) {
	if options.Timeout <= 0 {
		options.Timeout = DefaultReapTimeout
	}
	if options.ProcRoot == "" {
		options.ProcRoot = supervisor.DefaultProcRoot
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	record, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return ReapResult{}, nil
	}
	if err != nil {
		return ReapResult{}, err
	}
	result := ReapResult{Record: record}
	logger := options.Logger.With("session", record.SessionID, "pid", record.SimulatorPID)

	if record.ControllerPID != os.Getpid() && supervisor.Running(options.ProcRoot, record.ControllerPID) {
		return result, fmt.Errorf("%w (pid %d)", ErrControllerAlive, record.ControllerPID)
	}

	if !ownsCommand(options.ProcRoot, record) {
		logger.Info("stale state file, simulator already gone")
		result.Outcome = OutcomeStale
		return result, Clear(path)
	}

	logger.Warn("terminating orphaned simulator", "command", record.Command, "started_at", record.StartedAt)
	terminated, err := supervisor.TerminateTreeIn(options.ProcRoot, record.SimulatorPID, options.Timeout, logger)
	result.Terminated = terminated
	if err != nil {
		return result, fmt.Errorf("terminating orphaned simulator %d: %w", record.SimulatorPID, err)
	}
	if len(terminated.Alive) > 0 {
		return result, fmt.Errorf("orphaned simulator processes survived: %v", terminated.Alive)
	}
	result.Outcome = OutcomeTerminated
	return result, Clear(path)
}

// ownsCommand reports whether the recorded simulator pid is running
// and its command line still names the recorded executable. The path
// may appear after an interpreter (a "#!" script runs as
// "/bin/sh <path> ..."), so any argument counts.
func ownsCommand(procRoot string, record Record) bool {
	if !supervisor.Running(procRoot, record.SimulatorPID) {
		return false
	}
	cmdline, err := supervisor.Cmdline(procRoot, record.SimulatorPID)
	if err != nil {
		return false
	}
	return slices.Contains(cmdline, record.Command)
}
