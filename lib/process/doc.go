// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the gymlink
// binaries: reporting the error that ended run() and choosing the exit
// status. They write to stderr directly because the structured logger
// may not exist yet when they are needed.
package process
