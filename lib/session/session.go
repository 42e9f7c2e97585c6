// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gymlink/gymlink/lib/binhash"
	"github.com/gymlink/gymlink/lib/channel"
	"github.com/gymlink/gymlink/lib/space"
	"github.com/gymlink/gymlink/lib/statefile"
	"github.com/gymlink/gymlink/lib/trace"
	"github.com/gymlink/gymlink/lib/wire"
)

// closeRequest is the EnvActMsg asking the simulator to stop.
var closeRequest = (&wire.EnvActMsg{StopRequested: true}).Marshal()

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation space.Data
	Reward      float32
	Terminated  bool

	// Truncated is always false: the simulator decides when an episode
	// ends and reports it as terminal.
	Truncated bool

	Info map[string]any

	// Reason says why the episode ended. Only meaningful when
	// Terminated is set.
	Reason wire.Reason
}

// Session is one supervised simulator and its episode loop.
type Session struct {
	manager *Manager
	options Options
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	failure error
	process Process
	digest  string

	actionSpace      space.Space
	observationSpace space.Space

	// dirty is set once a step has been taken since the last
	// handshake. Reset of a clean session is free.
	dirty bool
	// fresh is set when the latest observation has been received and
	// no message has been sent since.
	fresh bool
	// closeSent is set once a close request went to the current
	// simulator.
	closeSent bool

	observation space.Data
	reward      float32
	gameOver    bool
	reason      wire.Reason
	info        map[string]any

	episode int
	steps   int
}

func newSession(manager *Manager, options Options) *Session {
	return &Session{
		manager: manager,
		options: options,
		logger:  options.Logger.With("session", options.ID),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.options.ID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActionSpace returns the action space of the current simulator.
func (s *Session) ActionSpace() space.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actionSpace
}

// ObservationSpace returns the observation space of the current
// simulator.
func (s *Session) ObservationSpace() space.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observationSpace
}

// Observation returns the latest observation and its info mapping.
func (s *Session) Observation() (space.Data, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observation, s.info
}

// Episode returns the 1-based number of the current episode.
func (s *Session) Episode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episode
}

// Pid returns the simulator's process id, or 0 when none is running.
func (s *Session) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.process == nil {
		return 0
	}
	return s.process.Pid()
}

func (s *Session) open(ctx context.Context) error {
	if s.options.StateFile != "" {
		result, err := statefile.Reap(s.options.StateFile, statefile.ReapOptions{
			Timeout: s.options.TerminateTimeout,
			Logger:  s.logger,
		})
		if err != nil {
			return fmt.Errorf("reaping previous simulator: %w", err)
		}
		if result.Outcome == statefile.OutcomeTerminated {
			s.logger.Warn("reaped simulator of a dead controller", "previous_session", result.Record.SessionID, "pid", result.Record.SimulatorPID)
		}
	}
	if path, _, err := s.options.Spec.Command(); err == nil {
		if digest, err := binhash.HashFile(path); err == nil {
			s.digest = digest.String()
		} else {
			s.logger.Debug("not hashing simulator executable", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.start(ctx); err != nil {
		s.state = StateFailed
		if teardownErr := s.teardown(); teardownErr != nil {
			s.logger.Warn("cleaning up after failed open", "error", teardownErr)
		}
		s.state = StateClosed
		return err
	}
	return nil
}

// start launches the simulator and runs it up to the first
// observation.
func (s *Session) start(ctx context.Context) error {
	s.state = StateHandshaking
	process, err := s.options.Launcher.Launch(ctx, s.options.Spec)
	if err != nil {
		return fmt.Errorf("launching simulator: %w", err)
	}
	s.process = process
	s.closeSent = false
	s.fresh = false
	s.logger.Info("simulator launched", "pid", process.Pid(), "command", process.Command(), "target", s.options.Spec.Target, "digest", s.digest)
	s.writeStateFile()

	if err := s.handshake(ctx); err != nil {
		return err
	}
	if err := s.receiveObservation(ctx); err != nil {
		return err
	}
	s.dirty = false
	s.episode++
	s.steps = 0
	s.record(trace.Record{Kind: trace.KindReset, Observation: s.observation.Value(), Info: s.info}, true)
	return nil
}

func (s *Session) writeStateFile() {
	if s.options.StateFile == "" {
		return
	}
	_, args, _ := s.options.Spec.Command()
	record := statefile.Record{
		SessionID:     s.options.ID,
		ControllerPID: os.Getpid(),
		SimulatorPID:  s.process.Pid(),
		Command:       s.process.Command(),
		Args:          args,
		WorkingDir:    s.options.Spec.WorkingDir,
		Digest:        s.digest,
		StartedAt:     s.options.Clock.Now(),
	}
	if err := statefile.Write(s.options.StateFile, record); err != nil {
		s.logger.Warn("recording simulator in state file", "path", s.options.StateFile, "error", err)
	}
}

func (s *Session) handshake(ctx context.Context) error {
	var init *wire.SimInitMsg
	if err := s.receive(ctx, "handshake", func(message []byte) (err error) {
		init, err = wire.UnmarshalSimInitMsg(message)
		return err
	}); err != nil {
		return err
	}
	actionSpace, err := space.DecodeSpace(init.ActionSpace)
	if err != nil {
		return &ProtocolError{Op: "decode action space", Err: err}
	}
	observationSpace, err := space.DecodeSpace(init.ObservationSpace)
	if err != nil {
		return &ProtocolError{Op: "decode observation space", Err: err}
	}

	ack := &wire.SimInitAck{Done: true}
	if err := s.send(ctx, "handshake", ack.Marshal()); err != nil {
		return err
	}
	s.actionSpace, s.observationSpace = actionSpace, observationSpace
	s.logger.Debug("handshake complete", "action_space", actionSpace.String(), "observation_space", observationSpace.String())
	return nil
}

// receiveObservation reads the next EnvStateMsg unless the current one
// has not been answered yet. A terminal observation is answered with
// the close request.
func (s *Session) receiveObservation(ctx context.Context) error {
	if s.fresh {
		return nil
	}
	var message *wire.EnvStateMsg
	if err := s.receive(ctx, "receive observation", func(b []byte) (err error) {
		message, err = wire.UnmarshalEnvStateMsg(b)
		return err
	}); err != nil {
		return err
	}
	observation, err := space.DecodeData(message.Observation, s.observationSpace)
	if err != nil {
		return &ProtocolError{Op: "decode observation", Err: err}
	}
	s.observation = observation
	s.reward = message.Reward
	s.gameOver = message.GameOver
	s.reason = message.Reason
	s.info = parseInfo(message.Info)
	s.fresh = true

	if !s.gameOver {
		s.state = StateReady
		return nil
	}
	s.state = StateGameOver
	s.logger.Info("episode over", "episode", s.episode, "steps", s.steps, "reason", s.reason.String())
	if err := s.sendClose(ctx); err != nil {
		if errors.Is(err, ErrSimulatorExited) {
			s.logger.Debug("simulator exited before the close request")
			return nil
		}
		return err
	}
	return nil
}

// sendClose sends the close request at most once per simulator.
func (s *Session) sendClose(ctx context.Context) error {
	if s.closeSent {
		return nil
	}
	if err := s.send(ctx, "close request", closeRequest); err != nil {
		return err
	}
	s.closeSent = true
	s.fresh = false
	return nil
}

// Step sends action and waits for the resulting observation. An action
// that does not fit the action space is rejected with a
// *space.EncodeError before anything is sent, and the session stays
// usable.
func (s *Session) Step(ctx context.Context, action any) (StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return StepResult{}, err
	}

	container, err := space.EncodeData(action, s.actionSpace)
	if err != nil {
		return StepResult{}, err
	}
	message := (&wire.EnvActMsg{Action: container}).Marshal()

	s.dirty = true
	s.state = StateStepping
	if err := s.send(ctx, "send action", message); err != nil {
		return StepResult{}, s.fail(err)
	}
	s.fresh = false
	if err := s.receiveObservation(ctx); err != nil {
		return StepResult{}, s.fail(err)
	}
	s.steps++

	if data, ok := action.(space.Data); ok {
		action = data.Value()
	}
	s.record(trace.Record{
		Kind:        trace.KindStep,
		Action:      action,
		Observation: s.observation.Value(),
		Reward:      s.reward,
		Terminated:  s.gameOver,
		Reason:      s.terminalReason(),
		Info:        s.info,
	}, s.gameOver)

	return StepResult{
		Observation: s.observation,
		Reward:      s.reward,
		Terminated:  s.gameOver,
		Info:        s.info,
		Reason:      s.reason,
	}, nil
}

func (s *Session) terminalReason() string {
	if !s.gameOver {
		return ""
	}
	return s.reason.String()
}

func (s *Session) usable() error {
	switch s.state {
	case StateReady:
		return nil
	case StateGameOver:
		return ErrEpisodeOver
	case StateClosed:
		return ErrClosed
	case StateFailed:
		return fmt.Errorf("%w: %w", ErrFailed, s.failure)
	default:
		return fmt.Errorf("session: not ready (%s)", s.state)
	}
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.failure = err
	s.logger.Warn("session failed", "error", err)
	return err
}

// Reset ends the current episode and starts the next one, returning its
// first observation. Resetting a session that has not stepped since
// its last handshake returns the current observation without touching
// the channel.
func (s *Session) Reset(ctx context.Context) (space.Data, map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, nil, ErrClosed
	}
	if !s.dirty && s.state == StateReady {
		return s.observation, s.info, nil
	}

	s.logger.Info("resetting", "episode", s.episode, "state", s.state.String())
	if s.state == StateReady && s.process != nil && s.process.Alive() {
		err := s.receiveObservation(ctx)
		if err == nil && s.state == StateReady {
			err = s.sendClose(ctx)
		}
		if err != nil {
			s.logger.Warn("ending episode", "error", err)
		}
	}
	if err := s.teardown(); err != nil {
		s.logger.Warn("terminating simulator", "error", err)
	}

	s.failure = nil
	s.observation, s.info = nil, nil
	s.reward, s.gameOver, s.reason = 0, false, wire.ReasonSimulationEnd

	if resetter, ok := s.options.Channel.(channel.Resetter); ok {
		if err := resetter.Reset(); err != nil {
			return nil, nil, s.fail(fmt.Errorf("resetting channel: %w", err))
		}
	}
	if err := s.start(ctx); err != nil {
		if teardownErr := s.teardown(); teardownErr != nil {
			s.logger.Warn("cleaning up after failed reset", "error", teardownErr)
		}
		return nil, nil, s.fail(err)
	}
	return s.observation, s.info, nil
}

// Close asks a simulator waiting for an action to stop, kills whatever
// is left of its process tree and frees the manager for a new session.
// Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	if s.state == StateReady && s.process != nil && s.process.Alive() {
		if err := s.sendClose(ctx); err != nil {
			s.logger.Warn("sending close request", "error", err)
		}
	}
	err := s.teardown()
	s.record(trace.Record{Kind: trace.KindClose}, true)
	s.state = StateClosed
	s.manager.release(s)
	s.logger.Info("session closed", "episodes", s.episode)
	return err
}

// teardown stops the current simulator: a simulator that was asked to
// close gets the exit grace to leave on its own, then the whole tree
// is killed and the state file cleared.
func (s *Session) teardown() error {
	process := s.process
	if process == nil {
		return nil
	}
	s.process = nil

	if s.closeSent && process.Alive() {
		select {
		case <-process.Done():
		case <-s.options.Clock.After(s.options.ExitGrace):
		}
	}
	result, err := process.Terminate(s.options.TerminateTimeout)
	if err == nil && len(result.Alive) > 0 {
		err = fmt.Errorf("simulator processes survived termination: %v", result.Alive)
	}
	if err != nil {
		err = fmt.Errorf("terminating simulator %d: %w", process.Pid(), err)
	}
	if s.options.StateFile != "" && err == nil {
		if clearErr := statefile.Clear(s.options.StateFile); clearErr != nil {
			err = clearErr
		}
	}
	return err
}

// send writes one message, giving up as soon as the simulator exits.
func (s *Session) send(ctx context.Context, op string, message []byte) error {
	ctx, done := s.watch(ctx)
	defer done()
	return s.classify(ctx, op, channel.Send(ctx, s.options.Channel, message))
}

// receive reads one message, giving up as soon as the simulator exits.
// A decode failure is a *ProtocolError.
func (s *Session) receive(ctx context.Context, op string, decode func([]byte) error) error {
	ctx, done := s.watch(ctx)
	defer done()
	decodeFailed := false
	err := channel.Receive(ctx, s.options.Channel, func(message []byte) error {
		if err := decode(message); err != nil {
			decodeFailed = true
			return err
		}
		return nil
	})
	if decodeFailed {
		return &ProtocolError{Op: op, Err: err}
	}
	return s.classify(ctx, op, err)
}

// watch derives a context cancelled with ErrSimulatorExited when the
// simulator process exits.
func (s *Session) watch(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := make(chan struct{})
	exited := s.process.Done()
	go func() {
		select {
		case <-exited:
			cancel(ErrSimulatorExited)
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel(nil)
	}
}

func (s *Session) classify(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(context.Cause(ctx), ErrSimulatorExited) && errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w (exit code %d)", op, ErrSimulatorExited, s.process.ExitCode())
	case errors.Is(err, channel.ErrMessageTooLarge):
		return &ProtocolError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// record writes a trace record for the current episode. Trace failures
// are logged and otherwise ignored.
func (s *Session) record(record trace.Record, flush bool) {
	if s.options.Trace == nil {
		return
	}
	record.Episode = s.episode
	record.Step = s.steps
	record.Time = s.options.Clock.Now()
	if err := s.options.Trace.Write(record); err != nil {
		s.logger.Warn("writing trace record", "error", err)
		return
	}
	if flush {
		if err := s.options.Trace.Flush(); err != nil {
			s.logger.Warn("flushing trace", "error", err)
		}
	}
}
