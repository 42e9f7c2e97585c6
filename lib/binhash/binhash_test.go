// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ns3")
	if err := os.WriteFile(path, content, 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestHashFileMatchesHashReader(t *testing.T) {
	content := bytes.Repeat([]byte("simulator build "), 10000)
	fromFile, err := HashFile(writeFile(t, content))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	fromReader, err := HashReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if fromFile != fromReader {
		t.Errorf("HashFile = %s, HashReader = %s", fromFile, fromReader)
	}
	if fromFile.IsZero() {
		t.Error("digest is zero")
	}
}

func TestHashDistinguishesContent(t *testing.T) {
	first, err := HashReader(strings.NewReader("build 1"))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	second, err := HashReader(strings.NewReader("build 2"))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if first == second {
		t.Error("different content produced the same digest")
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("HashFile succeeded on a missing file")
	}
}

func TestParseDigestRoundTrip(t *testing.T) {
	digest, err := HashReader(strings.NewReader("x"))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	parsed, err := ParseDigest(digest.String())
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if parsed != digest {
		t.Errorf("ParseDigest = %s, want %s", parsed, digest)
	}
	if len(digest.String()) != 64 {
		t.Errorf("String length = %d, want 64", len(digest.String()))
	}
}

func TestParseDigestInvalid(t *testing.T) {
	for _, input := range []string{"", "zz", strings.Repeat("ab", 16)} {
		if _, err := ParseDigest(input); err == nil {
			t.Errorf("ParseDigest(%q) succeeded", input)
		}
	}
}
