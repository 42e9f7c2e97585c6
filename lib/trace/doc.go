// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace records episodes to a file for later inspection.
//
// A trace starts with an uncompressed preamble (the magic "GYMTRACE",
// a format version byte and a [Compression] byte). The rest is one
// compressed stream of CBOR items: a [Header] followed by [Record]
// values until the end of the stream. Streams are zstd or LZ4 frames,
// so a trace can be read with the standard tools after stripping the
// ten-byte preamble.
package trace
