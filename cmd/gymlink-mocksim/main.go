// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Gymlink-mocksim is a stand-in simulator. It attaches to the
// shared-memory segment a gymlink controller created and plays a
// deterministic mock environment: a discrete action space and a box
// observation space whose observations are seeded samples.
//
// It accepts the command line the controller builds for a real
// simulator ("run <target> --key=value ..."), ignoring the target and
// any setting it does not know, so it can be configured as the
// simulation executable:
//
//	simulation:
//	  working_dir: /opt/gymlink
//	  executable: gymlink-mocksim
//	  target: mock
//	  settings:
//	    max-steps: "20"
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
	return command(ctx, os.Stdout).Execute(dropUnknownSettings(os.Args[1:]))
}
