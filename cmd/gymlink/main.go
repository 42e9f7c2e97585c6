// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Gymlink drives an ns-3 simulation as a reinforcement-learning
// environment. It launches the simulator configured in gymlink.yaml,
// talks to it over a shared-memory channel and plays episodes with
// random actions, optionally recording them to a trace.
//
// Usage:
//
//	gymlink run --config gymlink.yaml --episodes 3
//	gymlink inspect --config gymlink.yaml
//	gymlink trace episodes.trace
//	gymlink reap --config gymlink.yaml
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gymlink/gymlink/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCommand(ctx, os.Stdout).Execute(os.Args[1:])
}
