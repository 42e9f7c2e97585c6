// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/gymlink/gymlink/lib/cli"
	"github.com/gymlink/gymlink/lib/statefile"
	"github.com/gymlink/gymlink/lib/supervisor"
)

type inspectParams struct {
	commonParams
	state      bool
	stateFile  string
	shmDir     string
	outputJSON bool
}

func inspectCommand(ctx context.Context, stdout io.Writer) *cli.Command {
	var params inspectParams
	return &cli.Command{
		Name:    "inspect",
		Summary: "Show the simulation's spaces, or the recorded simulator",
		Description: "Launch the configured simulation, print its action and observation\n" +
			"spaces and first observation, then shut it down.\n\n" +
			"With --state, print the state file instead: the simulator a running\n" +
			"(or crashed) controller launched. Nothing is launched.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			params.addFlags(flagSet)
			flagSet.BoolVar(&params.state, "state", false, "print the state file instead of launching")
			flagSet.StringVar(&params.stateFile, "state-file", "", "state file to read (default from the configuration)")
			flagSet.StringVar(&params.shmDir, "shm-dir", "", "directory for the shared-memory segment (default /dev/shm)")
			flagSet.BoolVar(&params.outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if params.state {
				return inspectState(stdout, &params)
			}
			return inspectSpaces(ctx, stdout, &params)
		},
	}
}

type spacesOutput struct {
	SessionID        string         `json:"session_id"`
	Pid              int            `json:"pid"`
	ActionSpace      string         `json:"action_space"`
	ObservationSpace string         `json:"observation_space"`
	Observation      any            `json:"observation"`
	Info             map[string]any `json:"info"`
}

func inspectSpaces(ctx context.Context, stdout io.Writer, params *inspectParams) (err error) {
	logger, err := params.logger()
	if err != nil {
		return err
	}
	cfg, err := params.loadConfig()
	if err != nil {
		return err
	}
	env, err := openEnvironment(ctx, cfg, openOptions{shmDir: params.shmDir}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.close(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	s := env.session
	observation, info := s.Observation()
	output := spacesOutput{
		SessionID:        s.ID(),
		Pid:              s.Pid(),
		ActionSpace:      s.ActionSpace().String(),
		ObservationSpace: s.ObservationSpace().String(),
		Info:             info,
	}
	if observation != nil {
		output.Observation = observation.Value()
	}
	if params.outputJSON {
		return cli.WriteJSON(stdout, output)
	}
	fmt.Fprintf(stdout, "action space:       %s\n", output.ActionSpace)
	fmt.Fprintf(stdout, "observation space:  %s\n", output.ObservationSpace)
	fmt.Fprintf(stdout, "first observation:  %v\n", output.Observation)
	if len(output.Info) > 0 {
		fmt.Fprintf(stdout, "info:               %v\n", output.Info)
	}
	return nil
}

type stateOutput struct {
	Path             string    `json:"path"`
	SessionID        string    `json:"session_id"`
	ControllerPID    int       `json:"controller_pid"`
	ControllerAlive  bool      `json:"controller_alive"`
	SimulatorPID     int       `json:"simulator_pid"`
	SimulatorRunning bool      `json:"simulator_running"`
	Command          string    `json:"command"`
	Args             []string  `json:"args"`
	WorkingDir       string    `json:"working_dir,omitempty"`
	Digest           string    `json:"digest,omitempty"`
	StartedAt        time.Time `json:"started_at"`
}

func inspectState(stdout io.Writer, params *inspectParams) error {
	path, err := resolveStateFile(&params.commonParams, params.stateFile)
	if err != nil {
		return err
	}
	record, err := statefile.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		if params.outputJSON {
			return cli.WriteJSON(stdout, nil)
		}
		fmt.Fprintf(stdout, "no simulator recorded in %s\n", path)
		return nil
	}
	if err != nil {
		return err
	}

	output := stateOutput{
		Path:             path,
		SessionID:        record.SessionID,
		ControllerPID:    record.ControllerPID,
		ControllerAlive:  supervisor.Running("", record.ControllerPID),
		SimulatorPID:     record.SimulatorPID,
		SimulatorRunning: supervisor.Running("", record.SimulatorPID),
		Command:          record.Command,
		Args:             record.Args,
		WorkingDir:       record.WorkingDir,
		Digest:           record.Digest,
		StartedAt:        record.StartedAt,
	}
	if params.outputJSON {
		return cli.WriteJSON(stdout, output)
	}
	fmt.Fprintf(stdout, "state file:  %s\n", output.Path)
	fmt.Fprintf(stdout, "session:     %s (started %s)\n", output.SessionID, output.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(stdout, "controller:  pid %d (%s)\n", output.ControllerPID, liveness(output.ControllerAlive))
	fmt.Fprintf(stdout, "simulator:   pid %d (%s)\n", output.SimulatorPID, liveness(output.SimulatorRunning))
	fmt.Fprintf(stdout, "command:     %s %v\n", output.Command, output.Args)
	if output.Digest != "" {
		fmt.Fprintf(stdout, "digest:      %s\n", output.Digest)
	}
	return nil
}

func liveness(running bool) string {
	if running {
		return "running"
	}
	return "gone"
}

// resolveStateFile returns explicit when set and the configured state
// file otherwise.
func resolveStateFile(params *commonParams, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	cfg, err := params.loadConfig()
	if err != nil {
		return "", err
	}
	path := cfg.StateFile()
	if path == "" {
		return "", errors.New("session.state_dir is empty, so there is no state file; pass --state-file")
	}
	return path, nil
}
