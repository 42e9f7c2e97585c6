// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes an executable /bin/sh script named name into dir
// and returns its path.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating script directory: %v", err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing script %s: %v", path, err)
	}
	return path
}

// FakeSimulator writes a stand-in simulator executable named "ns3"
// into a fresh working directory and returns the directory. The
// script writes its arguments, one per line, to args.txt and its
// LD_LIBRARY_PATH to env.txt, then runs body.
//
//	dir := testutil.FakeSimulator(t, "exec sleep 60")
func FakeSimulator(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	WriteScript(t, dir, "ns3", `for arg in "$@"; do printf '%s\n' "$arg"; done > "$(dirname "$0")/args.txt"
printf '%s\n' "$LD_LIBRARY_PATH" > "$(dirname "$0")/env.txt"
`+body)
	return dir
}
