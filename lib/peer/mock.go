// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/gymlink/gymlink/lib/space"
)

// MockEnvironment is a deterministic stand-in simulation. Each
// observation is a seeded sample of the observation space, the reward
// is the number of steps taken, and the episode ends after MaxSteps
// steps (never when MaxSteps is zero).
type MockEnvironment struct {
	action      space.Space
	observation space.Space
	maxSteps    int

	mu      sync.Mutex
	rng     *rand.Rand
	steps   int
	actions []any
}

// NewMockEnvironment returns a MockEnvironment whose observations are
// drawn from a generator seeded with seed.
func NewMockEnvironment(action, observation space.Space, maxSteps int, seed uint64) *MockEnvironment {
	return &MockEnvironment{
		action:      action,
		observation: observation,
		maxSteps:    maxSteps,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (m *MockEnvironment) ActionSpace() space.Space      { return m.action }
func (m *MockEnvironment) ObservationSpace() space.Space { return m.observation }

func (m *MockEnvironment) Observe() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Observation: m.observation.Sample(m.rng),
		Reward:      float32(m.steps),
		GameOver:    m.maxSteps > 0 && m.steps >= m.maxSteps,
		Info:        fmt.Sprintf(`{"step": %d}`, m.steps),
	}, nil
}

func (m *MockEnvironment) Execute(action space.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action.Value())
	m.steps++
	return nil
}

// Actions returns the native value of every executed action, in order.
func (m *MockEnvironment) Actions() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.actions...)
}
