// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/spf13/pflag"

	"github.com/gymlink/gymlink/lib/cli"
)

type runParams struct {
	commonParams
	episodes  int
	steps     int
	seed      uint64
	shmDir    string
	tracePath string
}

func runCommand(ctx context.Context, stdout io.Writer) *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "run",
		Summary: "Play episodes with random actions",
		Description: "Launch the configured simulation and play episodes, choosing each\n" +
			"action uniformly from the action space. One summary line per\n" +
			"episode is written to stdout.",
		Examples: []cli.Example{
			{Description: "Three episodes of at most 100 steps", Command: "gymlink run --config gymlink.yaml --episodes 3 --steps 100"},
			{Description: "Record a compressed trace", Command: "gymlink run --trace episodes.trace"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			params.addFlags(flagSet)
			flagSet.IntVar(&params.episodes, "episodes", 1, "episodes to play")
			flagSet.IntVar(&params.steps, "steps", 0, "step limit per episode (0 plays until the simulation ends the episode)")
			flagSet.Uint64Var(&params.seed, "seed", 1, "seed for action sampling")
			flagSet.StringVar(&params.shmDir, "shm-dir", "", "directory for the shared-memory segment (default /dev/shm)")
			flagSet.StringVar(&params.tracePath, "trace", "", "trace file (overrides trace.path)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if params.episodes < 1 {
				return fmt.Errorf("--episodes must be at least 1, got %d", params.episodes)
			}
			if params.steps < 0 {
				return fmt.Errorf("--steps must not be negative, got %d", params.steps)
			}
			return runEpisodes(ctx, stdout, &params)
		},
	}
}

type episodeSummary struct {
	episode int
	steps   int
	reward  float64
	ended   string
}

func runEpisodes(ctx context.Context, stdout io.Writer, params *runParams) (err error) {
	logger, err := params.logger()
	if err != nil {
		return err
	}
	cfg, err := params.loadConfig()
	if err != nil {
		return err
	}

	env, err := openEnvironment(ctx, cfg, openOptions{shmDir: params.shmDir, tracePath: params.tracePath}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	s := env.session
	logger.Info("session open",
		"action_space", s.ActionSpace().String(),
		"observation_space", s.ObservationSpace().String())

	rng := rand.New(rand.NewPCG(params.seed, params.seed))
	for episode := 1; episode <= params.episodes; episode++ {
		if episode > 1 {
			if _, _, err := s.Reset(ctx); err != nil {
				return fmt.Errorf("resetting for episode %d: %w", episode, err)
			}
		}
		summary := episodeSummary{episode: episode, ended: "step limit"}
		for params.steps == 0 || summary.steps < params.steps {
			result, err := s.Step(ctx, s.ActionSpace().Sample(rng))
			if err != nil {
				return fmt.Errorf("episode %d step %d: %w", episode, summary.steps+1, err)
			}
			summary.steps++
			summary.reward += float64(result.Reward)
			if result.Terminated {
				summary.ended = result.Reason.String()
				break
			}
		}
		logger.Info("episode finished", "episode", episode, "steps", summary.steps, "reward", summary.reward, "ended", summary.ended)
		fmt.Fprintf(stdout, "episode %d: %d steps, reward %g, ended by %s\n",
			summary.episode, summary.steps, summary.reward, summary.ended)
	}
	return nil
}
