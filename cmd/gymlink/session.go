// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gymlink/gymlink/lib/binhash"
	"github.com/gymlink/gymlink/lib/channel/shm"
	"github.com/gymlink/gymlink/lib/config"
	"github.com/gymlink/gymlink/lib/session"
	"github.com/gymlink/gymlink/lib/supervisor"
	"github.com/gymlink/gymlink/lib/trace"
)

// closeTimeout bounds the final Close when the run context has already
// been cancelled by a signal.
const closeTimeout = 30 * time.Second

// environment is a session together with the resources it was opened
// on. close releases all of them, in reverse order.
type environment struct {
	session *session.Session
	segment *shm.Segment
	trace   *trace.Writer
	logger  *slog.Logger
}

type openOptions struct {
	shmDir    string
	tracePath string
}

// openEnvironment maps the controller end of the channel, starts the
// trace when one is configured, and opens a session.
func openEnvironment(ctx context.Context, cfg *config.Config, options openOptions, logger *slog.Logger) (*environment, error) {
	id := uuid.NewString()
	logger = logger.With("session", id, "target", cfg.Simulation.Target)
	spec := cfg.Simulation.Spec()

	segment, err := shm.Open(cfg.Channel, shm.Controller, shm.Options{Dir: options.shmDir})
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	env := &environment{segment: segment, logger: logger}

	tracePath := cfg.Trace.Path
	if options.tracePath != "" {
		tracePath = options.tracePath
	}
	if tracePath != "" {
		writer, err := createTrace(tracePath, id, cfg, spec)
		if err != nil {
			env.close(ctx)
			return nil, err
		}
		env.trace = writer
		logger.Info("recording trace", "path", tracePath)
	}

	launcher := session.NewLauncher(supervisor.New(supervisor.Options{
		Logger:      logger,
		LaunchGrace: cfg.Session.LaunchGrace,
	}))
	var manager session.Manager
	s, err := manager.Open(ctx, session.Options{
		ID:               id,
		Spec:             spec,
		Channel:          segment,
		Launcher:         launcher,
		Logger:           logger,
		StateFile:        cfg.StateFile(),
		TerminateTimeout: cfg.Session.TerminateTimeout,
		ExitGrace:        cfg.Session.ExitGrace,
		Trace:            env.trace,
	})
	if err != nil {
		env.close(ctx)
		return nil, err
	}
	env.session = s
	return env, nil
}

func createTrace(path, id string, cfg *config.Config, spec supervisor.Spec) (*trace.Writer, error) {
	compression, err := cfg.TraceCompression()
	if err != nil {
		return nil, err
	}
	header := trace.Header{
		SessionID: id,
		CreatedAt: time.Now().UTC(),
		Target:    spec.Target,
	}
	if command, _, err := spec.Command(); err == nil {
		header.Command = command
		if digest, err := binhash.HashFile(command); err == nil {
			header.Digest = digest.String()
		}
	}
	return trace.Create(path, header, compression)
}

// close ends the session, the trace and the channel. It runs even when
// ctx was cancelled, so teardown is never skipped on a signal.
func (e *environment) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	var errs []error
	if e.session != nil {
		if err := e.session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing session: %w", err))
		}
	}
	if e.trace != nil {
		if err := e.trace.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing trace: %w", err))
		}
	}
	if err := e.segment.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing channel: %w", err))
	}
	return errors.Join(errs...)
}
