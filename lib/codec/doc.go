// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds gymlink's CBOR configuration. The state file
// and the episode trace are both CBOR, encoded deterministically so
// identical records produce identical bytes.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Streams (the trace file body) use [NewEncoder] and [NewDecoder].
// Types serialized only here use `cbor` struct tags.
package codec
