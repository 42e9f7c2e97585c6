// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest of an executable.
type Digest [32]byte

// domainKey separates executable digests from any other BLAKE3 use.
// It is the ASCII domain name, zero-padded to 32 bytes.
var domainKey = [32]byte{
	'g', 'y', 'm', 'l', 'i', 'n', 'k', '.', 's', 'i', 'm', 'u', 'l', 'a', 't', 'o',
	'r', '.', 'b', 'i', 'n', 'a', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashFile streams the file at path through keyed BLAKE3.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()
	return HashReader(file)
}

// HashReader hashes everything r yields.
func HashReader(r io.Reader) (Digest, error) {
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		return Digest{}, fmt.Errorf("creating hasher: %w", err)
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, fmt.Errorf("hashing: %w", err)
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// String returns the digest in lowercase hex, the form used in logs
// and the state file.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero digest, which marks "not
// computed".
func (d Digest) IsZero() bool { return d == Digest{} }

// ParseDigest parses the hex form produced by String.
func ParseDigest(s string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return digest, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
