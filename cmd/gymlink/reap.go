// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/gymlink/gymlink/lib/cli"
	"github.com/gymlink/gymlink/lib/statefile"
)

type reapParams struct {
	commonParams
	stateFile string
	timeout   time.Duration
}

func reapCommand(stdout io.Writer) *cli.Command {
	var params reapParams
	return &cli.Command{
		Name:    "reap",
		Summary: "Kill a simulator left behind by a crashed controller",
		Description: "Read the state file and, if the controller that wrote it is gone\n" +
			"but its simulator is still running, kill the simulator's process\n" +
			"tree. A stale record is removed. A record whose controller is\n" +
			"still alive is left alone and the command exits 2.\n\n" +
			"'gymlink run' does this automatically before launching.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reap", pflag.ContinueOnError)
			params.addFlags(flagSet)
			flagSet.StringVar(&params.stateFile, "state-file", "", "state file to read (default from the configuration)")
			flagSet.DurationVar(&params.timeout, "timeout", statefile.DefaultReapTimeout, "how long to wait for the killed tree to exit")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return reap(stdout, &params)
		},
	}
}

func reap(stdout io.Writer, params *reapParams) error {
	logger, err := params.logger()
	if err != nil {
		return err
	}
	path, err := resolveStateFile(&params.commonParams, params.stateFile)
	if err != nil {
		return err
	}

	result, err := statefile.Reap(path, statefile.ReapOptions{Timeout: params.timeout, Logger: logger})
	if errors.Is(err, statefile.ErrControllerAlive) {
		fmt.Fprintf(stdout, "controller pid %d is still running; not reaping simulator pid %d\n",
			result.Record.ControllerPID, result.Record.SimulatorPID)
		return &cli.ExitError{Code: 2}
	}
	if err != nil {
		return err
	}

	switch result.Outcome {
	case statefile.OutcomeNone:
		fmt.Fprintf(stdout, "nothing to reap: no state file at %s\n", path)
	case statefile.OutcomeStale:
		fmt.Fprintf(stdout, "removed stale record of simulator pid %d\n", result.Record.SimulatorPID)
	case statefile.OutcomeTerminated:
		fmt.Fprintf(stdout, "terminated simulator pid %d (%d processes)\n",
			result.Record.SimulatorPID, len(result.Terminated.Gone))
	}
	return nil
}
