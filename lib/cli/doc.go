// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree shared by the gymlink binaries.
//
// A [Command] either runs or dispatches to subcommands by the first
// positional argument. Flags are parsed with pflag, so --name=value and
// --name value both work. Unknown commands and flags produce an error
// with the closest known name when one is near enough.
//
// Errors implementing ExitCode() int (see [ExitError]) end the process
// with that code and no extra message; [process.Fatal] applies the
// rule.
package cli
