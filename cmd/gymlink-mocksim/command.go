// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/gymlink/gymlink/lib/channel"
	"github.com/gymlink/gymlink/lib/channel/shm"
	"github.com/gymlink/gymlink/lib/cli"
	"github.com/gymlink/gymlink/lib/config"
	"github.com/gymlink/gymlink/lib/peer"
	"github.com/gymlink/gymlink/lib/space"
	"github.com/gymlink/gymlink/lib/version"
)

type params struct {
	configPath      string
	shmDir          string
	actions         int
	observationSize int
	low             float64
	high            float64
	dtype           string
	maxSteps        int
	seed            uint64
	showVersion     bool
	log             cli.LogOptions
}

func command(ctx context.Context, stdout io.Writer) *cli.Command {
	var p params
	return &cli.Command{
		Name:    "gymlink-mocksim",
		Summary: "A mock simulator for gymlink",
		Usage:   "gymlink-mocksim [run <target>] [flags]",
		Flags:   p.flagSet,
		Run: func(args []string) error {
			if p.showVersion {
				version.Fprint(stdout, "gymlink-mocksim")
				return nil
			}
			return simulate(ctx, &p)
		},
	}
}

func (p *params) flagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("gymlink-mocksim", pflag.ContinueOnError)
	flagSet.StringVar(&p.configPath, "config", "", "configuration file for the channel settings (default $"+config.EnvironmentVariable+" when set)")
	flagSet.StringVar(&p.shmDir, "shm-dir", "", "directory of the shared-memory segment (default /dev/shm)")
	flagSet.IntVar(&p.actions, "actions", 3, "size of the discrete action space")
	flagSet.IntVar(&p.observationSize, "observation-size", 2, "elements in the box observation space")
	flagSet.Float64Var(&p.low, "low", -1, "lower bound of every observation element")
	flagSet.Float64Var(&p.high, "high", 1, "upper bound of every observation element")
	flagSet.StringVar(&p.dtype, "dtype", "float32", "observation element type: int32, uint32, float32 or float64")
	flagSet.IntVar(&p.maxSteps, "max-steps", 10, "steps per episode (0 never ends)")
	flagSet.Uint64Var(&p.seed, "seed", 1, "observation seed")
	flagSet.BoolVar(&p.showVersion, "version", false, "print version information and exit")
	p.log.AddFlags(flagSet)
	return flagSet
}

// dropUnknownSettings removes --key=value arguments naming flags the
// mock does not define. The controller passes every configured setting
// through, and settings meant for a real simulator are not errors here.
func dropUnknownSettings(args []string) []string {
	flagSet := new(params).flagSet()
	kept := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(kept, args[i:]...)
		}
		name, _, isSetting := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if isSetting && strings.HasPrefix(arg, "--") && flagSet.Lookup(name) == nil {
			continue
		}
		kept = append(kept, arg)
	}
	return kept
}

// environment builds the mock environment the flags describe.
func (p *params) environment() (*peer.MockEnvironment, error) {
	if p.actions < 1 {
		return nil, fmt.Errorf("--actions must be at least 1, got %d", p.actions)
	}
	if p.observationSize < 1 {
		return nil, fmt.Errorf("--observation-size must be at least 1, got %d", p.observationSize)
	}
	if p.low > p.high {
		return nil, fmt.Errorf("--low %g is above --high %g", p.low, p.high)
	}
	if p.maxSteps < 0 {
		return nil, fmt.Errorf("--max-steps must not be negative, got %d", p.maxSteps)
	}
	kinds := []space.Kind{space.Int32, space.Uint32, space.Float32, space.Float64}
	index := slices.IndexFunc(kinds, func(kind space.Kind) bool { return kind.String() == p.dtype })
	if index < 0 {
		return nil, fmt.Errorf("unknown --dtype %q", p.dtype)
	}

	if kinds[index] == space.Uint32 && p.low < 0 {
		return nil, fmt.Errorf("--low %g is negative for an unsigned --dtype", p.low)
	}

	observation := &space.Box{
		Low:   slices.Repeat([]float64{p.low}, p.observationSize),
		High:  slices.Repeat([]float64{p.high}, p.observationSize),
		Shape: []int{p.observationSize},
		Kind:  kinds[index],
	}
	return peer.NewMockEnvironment(&space.Discrete{N: p.actions}, observation, p.maxSteps, p.seed), nil
}

// channelConfig reads the channel section of the configuration, or the
// defaults when no file is named.
func (p *params) channelConfig() (channel.Config, error) {
	path := p.configPath
	if path == "" {
		path = os.Getenv(config.EnvironmentVariable)
	}
	if path == "" {
		return channel.DefaultConfig(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return channel.Config{}, err
	}
	return cfg.Channel, nil
}

func simulate(ctx context.Context, p *params) error {
	logger, err := p.log.NewLogger()
	if err != nil {
		return err
	}
	env, err := p.environment()
	if err != nil {
		return err
	}
	channelConfig, err := p.channelConfig()
	if err != nil {
		return err
	}

	segment, err := shm.Open(channelConfig, shm.Simulator, shm.Options{Dir: p.shmDir})
	if err != nil {
		return fmt.Errorf("attaching to channel: %w", err)
	}
	defer segment.Close()

	logger = logger.With("segment", channelConfig.SegmentName, "pid", os.Getpid())
	logger.Info("mock simulator attached",
		"action_space", env.ActionSpace().String(),
		"observation_space", env.ObservationSpace().String(),
		"max_steps", p.maxSteps)

	simulation := peer.New(segment, env, logger)
	err = simulation.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("mock simulator interrupted", "steps", simulation.Steps())
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("mock simulator stopped", "steps", simulation.Steps())
	return nil
}
