// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor launches the simulator process, watches its
// liveness and tears down its whole process tree.
//
// The simulator is started as
//
//	<working dir>/<executable> run <target> --key=value ...
//
// in its own process group, with LD_LIBRARY_PATH pointing at the
// working directory's build/lib. [Supervisor.Launch] waits a short
// grace interval and fails with [*EarlyExitError] if the process has
// already died, which is how a misspelled target shows up.
//
// [TerminateTree] enumerates descendants from /proc at the moment it
// is called, so children the simulator forked after launch are
// included. Every member is sent SIGKILL independently; a failure on
// one does not stop the others.
package supervisor
