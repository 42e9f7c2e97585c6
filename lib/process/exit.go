// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status
// and have already reported themselves.
type exitCoder interface {
	ExitCode() int
}

// ExitCode returns the status for err: 0 for nil, the error's own code
// when it has one, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// Fatal reports err on stderr and exits. Errors with an ExitCode method
// exit with that code silently; anything else prints "error: err" and
// exits 1.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

func report(w io.Writer, err error) int {
	var coder exitCoder
	if !errors.As(err, &coder) {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return ExitCode(err)
}
