// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit, GitDirty = "abc1234", "true"
	if got := Info(); !strings.Contains(got, "(abc1234-dirty, ") || !strings.HasPrefix(got, Version) {
		t.Errorf("Info() = %q", got)
	}

	GitDirty = "false"
	if got := Info(); strings.Contains(got, "dirty") {
		t.Errorf("Info() = %q, want no dirty marker", got)
	}
}

func TestFprint(t *testing.T) {
	var buffer bytes.Buffer
	Fprint(&buffer, "gymlink")
	if got := buffer.String(); !strings.HasPrefix(got, "gymlink "+Version) || !strings.Contains(got, "Go: ") {
		t.Errorf("Fprint wrote %q", got)
	}
}
