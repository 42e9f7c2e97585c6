// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// LogOptions are the logging flags every gymlink binary accepts.
type LogOptions struct {
	// Format is text, json or auto. Auto picks text when stderr is a
	// terminal and JSON otherwise.
	Format string
	Level  string
}

// AddFlags registers --log-format and --log-level on flagSet.
func (o *LogOptions) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.Format, "log-format", "auto", "log format: text, json or auto")
	flagSet.StringVar(&o.Level, "log-level", "info", "log level: debug, info, warn or error")
}

// NewLogger builds a logger writing to stderr.
func (o LogOptions) NewLogger() (*slog.Logger, error) {
	return o.newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

func (o LogOptions) newLogger(w io.Writer, terminal bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.Level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", o.Level)
	}
	options := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(o.Format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "", "auto":
		if terminal {
			return slog.New(slog.NewTextHandler(w, options)), nil
		}
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text, json or auto)", o.Format)
	}
}
