// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testTree(ran *[]string, steps *int) *Command {
	return &Command{
		Name:   "gymlink",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{
				Name:    "run",
				Summary: "run episodes",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
					flagSet.IntVar(steps, "steps", 10, "steps per episode")
					return flagSet
				},
				Run: func(args []string) error {
					*ran = append(*ran, "run")
					*ran = append(*ran, args...)
					return nil
				},
			},
			{
				Name:    "reap",
				Summary: "reap an orphaned simulator",
				Run: func(args []string) error {
					*ran = append(*ran, "reap")
					return nil
				},
			},
		},
	}
}

func TestExecuteDispatchesAndParsesFlags(t *testing.T) {
	var ran []string
	var steps int
	root := testTree(&ran, &steps)

	if err := root.Execute([]string{"run", "--steps=3", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Join(ran, " ") != "run extra" {
		t.Errorf("ran = %v", ran)
	}
	if steps != 3 {
		t.Errorf("steps = %d, want 3", steps)
	}
}

func TestExecuteSuggestsCommand(t *testing.T) {
	var ran []string
	var steps int
	root := testTree(&ran, &steps)

	err := root.Execute([]string{"rap"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "reap"`) {
		t.Fatalf("Execute(rap) = %v, want a suggestion of reap", err)
	}
	if len(ran) != 0 {
		t.Errorf("unknown command ran %v", ran)
	}
}

func TestExecuteSuggestsFlag(t *testing.T) {
	var ran []string
	var steps int
	root := testTree(&ran, &steps)

	err := root.Execute([]string{"run", "--step=3"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --steps") {
		t.Fatalf("Execute = %v, want a suggestion of --steps", err)
	}
}

func TestExecuteWithoutSubcommand(t *testing.T) {
	var ran []string
	var steps int
	root := testTree(&ran, &steps)

	if err := root.Execute(nil); err == nil {
		t.Fatal("Execute with no subcommand succeeded")
	}
	help := root.Output.(*bytes.Buffer).String()
	if !strings.Contains(help, "run") || !strings.Contains(help, "reap an orphaned simulator") {
		t.Errorf("help does not list subcommands:\n%s", help)
	}
}

func TestHelpShowsFlags(t *testing.T) {
	var ran []string
	var steps int
	root := testTree(&ran, &steps)

	if err := root.Execute([]string{"run", "--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	help := root.Output.(*bytes.Buffer).String()
	if !strings.Contains(help, "gymlink run [flags]") || !strings.Contains(help, "--steps") {
		t.Errorf("help = %q", help)
	}
	if len(ran) != 0 {
		t.Errorf("help ran %v", ran)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "run", 3},
		{"run", "run", 0},
		{"rap", "reap", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}
	var coder interface{ ExitCode() int }
	if !errors.As(err, &coder) || coder.ExitCode() != 3 {
		t.Errorf("ExitError does not report code 3")
	}
}

func TestNewLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := LogOptions{Format: "json", Level: "warn"}.newLogger(&buffer, true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "pid", 42)

	var entry map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not one JSON object: %v\n%s", err, buffer.String())
	}
	if entry["msg"] != "kept" || entry["pid"] != float64(42) {
		t.Errorf("entry = %v", entry)
	}

	buffer.Reset()
	logger, err = LogOptions{Format: "auto", Level: "info"}.newLogger(&buffer, true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hello")
	if !strings.Contains(buffer.String(), "msg=hello") {
		t.Errorf("auto on a terminal is not text: %q", buffer.String())
	}

	if _, err := (LogOptions{Format: "xml", Level: "info"}).newLogger(&buffer, false); err == nil {
		t.Error("accepted format xml")
	}
	if _, err := (LogOptions{Format: "text", Level: "loud"}).newLogger(&buffer, false); err == nil {
		t.Error("accepted level loud")
	}
}
