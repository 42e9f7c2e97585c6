// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/gymlink/gymlink/lib/cli"
	"github.com/gymlink/gymlink/lib/config"
	"github.com/gymlink/gymlink/lib/version"
)

func rootCommand(ctx context.Context, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "gymlink",
		Summary:     "Drive an ns-3 simulation as a reinforcement-learning environment",
		Description: "Gymlink launches an ns-3 simulation, exchanges observations and actions\nwith it over shared memory, and cleans up its process tree.",
		Subcommands: []*cli.Command{
			runCommand(ctx, stdout),
			inspectCommand(ctx, stdout),
			traceCommand(stdout),
			reapCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					version.Fprint(stdout, "gymlink")
					return nil
				},
			},
		},
	}
}

// commonParams are the flags every subcommand that reads the
// configuration shares.
type commonParams struct {
	configPath string
	log        cli.LogOptions
}

func (p *commonParams) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&p.configPath, "config", "", "configuration file (default $"+config.EnvironmentVariable+")")
	p.log.AddFlags(flagSet)
}

func (p *commonParams) logger() (*slog.Logger, error) {
	return p.log.NewLogger()
}

// loadConfig reads --config, or GYMLINK_CONFIG when the flag is
// empty, and validates it.
func (p *commonParams) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if p.configPath != "" {
		cfg, err = config.LoadFile(p.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}
