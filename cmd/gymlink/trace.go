// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/gymlink/gymlink/lib/cli"
	"github.com/gymlink/gymlink/lib/trace"
)

type traceParams struct {
	summary bool
}

func traceCommand(stdout io.Writer) *cli.Command {
	var params traceParams
	return &cli.Command{
		Name:    "trace",
		Summary: "Print a recorded trace",
		Usage:   "gymlink trace <file> [flags]",
		Description: "Print a trace written by 'gymlink run --trace'. The header and\n" +
			"every record are written as one JSON object per line. With\n" +
			"--summary, print one line per episode instead.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("trace", pflag.ContinueOnError)
			flagSet.BoolVar(&params.summary, "summary", false, "print per-episode totals")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one trace file, got %d arguments", len(args))
			}
			return printTrace(stdout, args[0], params.summary)
		},
	}
}

type traceHeaderLine struct {
	Header      trace.Header `json:"header"`
	Compression string       `json:"compression"`
}

type episodeTotals struct {
	Episode int     `json:"episode"`
	Steps   int     `json:"steps"`
	Reward  float64 `json:"reward"`
	Reason  string  `json:"reason,omitempty"`
}

func printTrace(stdout io.Writer, path string, summary bool) error {
	reader, err := trace.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	if !summary {
		if err := writeLine(stdout, traceHeaderLine{Header: reader.Header(), Compression: reader.Compression().String()}); err != nil {
			return err
		}
	}

	var totals []*episodeTotals
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if !summary {
			if err := writeLine(stdout, record); err != nil {
				return err
			}
			continue
		}
		switch record.Kind {
		case trace.KindReset:
			totals = append(totals, &episodeTotals{Episode: record.Episode})
		case trace.KindStep:
			if len(totals) == 0 {
				return fmt.Errorf("reading %s: step record before any reset", path)
			}
			current := totals[len(totals)-1]
			current.Steps++
			current.Reward += float64(record.Reward)
			if record.Terminated {
				current.Reason = record.Reason
			}
		}
	}

	for _, episode := range totals {
		if err := writeLine(stdout, episode); err != nil {
			return err
		}
	}
	return nil
}

// writeLine writes value as compact JSON on one line.
func writeLine(w io.Writer, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
