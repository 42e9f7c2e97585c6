// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package peer drives the simulator side of the gym protocol. The
// real simulator links its own implementation; this one backs the
// mock simulator binary and the session tests.
//
// The exchange is:
//
//	simulator → SimInitMsg{action space, observation space}
//	controller → SimInitAck{done}            (or stopSimReq)
//	loop:
//	  simulator → EnvStateMsg{observation, reward, game over, info}
//	  controller → EnvActMsg{action}         (or stopSimReq)
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gymlink/gymlink/lib/channel"
	"github.com/gymlink/gymlink/lib/space"
	"github.com/gymlink/gymlink/lib/wire"
)

// State is what the environment reports after each step.
type State struct {
	// Observation is a native value of the observation space.
	Observation any
	Reward      float32
	GameOver    bool
	Info        string
}

// Environment is the simulation behind a peer.
type Environment interface {
	ActionSpace() space.Space
	ObservationSpace() space.Space

	// Observe returns the current state. It is called once after the
	// handshake and once after every Execute.
	Observe() (State, error)

	// Execute applies an action and advances the simulation by one
	// step.
	Execute(action space.Data) error
}

// ErrUnexpectedAction is returned when the controller sends an action
// after a terminal state instead of a stop request.
var ErrUnexpectedAction = errors.New("peer: action received after terminal state")

// Peer is the simulator end of one session.
type Peer struct {
	ch            channel.Channel
	env           Environment
	logger        *slog.Logger
	simulationEnd atomic.Bool
	steps         atomic.Int64
}

// New returns a Peer speaking over ch. A nil logger uses
// slog.Default().
func New(ch channel.Channel, env Environment, logger *slog.Logger) *Peer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Peer{ch: ch, env: env, logger: logger}
}

// Run is shorthand for New(ch, env, nil).Run(ctx).
func Run(ctx context.Context, ch channel.Channel, env Environment) error {
	return New(ch, env, nil).Run(ctx)
}

// NotifySimulationEnd marks the next published state terminal with
// reason SimulationEnd, as the simulator does when its clock runs out.
func (p *Peer) NotifySimulationEnd() { p.simulationEnd.Store(true) }

// Steps returns the number of actions executed so far.
func (p *Peer) Steps() int64 { return p.steps.Load() }

// Run performs the handshake and then publishes states and executes
// actions until the controller requests a stop, which returns nil.
func (p *Peer) Run(ctx context.Context) error {
	actionSpace, observationSpace := p.env.ActionSpace(), p.env.ObservationSpace()
	init := &wire.SimInitMsg{
		ActionSpace:      space.EncodeSpace(actionSpace),
		ObservationSpace: space.EncodeSpace(observationSpace),
	}
	if err := channel.Send(ctx, p.ch, init.Marshal()); err != nil {
		return fmt.Errorf("sending init message: %w", err)
	}

	var ack *wire.SimInitAck
	if err := channel.Receive(ctx, p.ch, func(message []byte) (err error) {
		ack, err = wire.UnmarshalSimInitAck(message)
		return err
	}); err != nil {
		return fmt.Errorf("receiving init ack: %w", err)
	}
	if ack.StopRequested {
		p.logger.Info("stop requested during handshake")
		return nil
	}
	p.logger.Debug("handshake complete", "action_space", actionSpace.String(), "observation_space", observationSpace.String())

	for {
		terminal, err := p.publishState(ctx, observationSpace)
		if err != nil {
			return err
		}

		var act *wire.EnvActMsg
		if err := channel.Receive(ctx, p.ch, func(message []byte) (err error) {
			act, err = wire.UnmarshalEnvActMsg(message)
			return err
		}); err != nil {
			return fmt.Errorf("receiving action: %w", err)
		}
		if act.StopRequested {
			p.logger.Info("stop requested", "steps", p.steps.Load())
			return nil
		}
		if terminal {
			return ErrUnexpectedAction
		}

		action, err := space.DecodeData(act.Action, actionSpace)
		if err != nil {
			return fmt.Errorf("decoding action: %w", err)
		}
		if err := p.env.Execute(action); err != nil {
			return fmt.Errorf("executing action: %w", err)
		}
		p.steps.Add(1)
	}
}

func (p *Peer) publishState(ctx context.Context, observationSpace space.Space) (terminal bool, err error) {
	state, err := p.env.Observe()
	if err != nil {
		return false, fmt.Errorf("observing: %w", err)
	}
	observation, err := space.EncodeData(state.Observation, observationSpace)
	if err != nil {
		return false, fmt.Errorf("encoding observation: %w", err)
	}
	message := &wire.EnvStateMsg{
		Observation: observation,
		Reward:      state.Reward,
		Info:        state.Info,
	}
	switch {
	case state.GameOver:
		message.GameOver = true
		message.Reason = wire.ReasonGameOver
	case p.simulationEnd.Load():
		message.GameOver = true
		message.Reason = wire.ReasonSimulationEnd
	}
	if err := channel.Send(ctx, p.ch, message.Marshal()); err != nil {
		return false, fmt.Errorf("sending state: %w", err)
	}
	if message.GameOver {
		p.logger.Info("published terminal state", "reason", message.Reason.String(), "steps", p.steps.Load())
	}
	return message.GameOver, nil
}
