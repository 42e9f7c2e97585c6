// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the protobuf messages exchanged with a
// gym-enabled simulator and encodes them with protowire.
//
// The schema lives in proto/messages.proto. The simulator side is
// generated from that file by protoc; this side is written by hand so
// the controller carries no generated code and decodes into plain Go
// structs. Encodings are bit-compatible with the generated peer:
//
//   - Scalars use proto3 implicit presence (zero values are omitted).
//   - Repeated scalars are written packed and read packed or unpacked.
//   - Oneof members are pointer fields. Decoding keeps the last member
//     seen, matching protobuf oneof semantics; encoding writes at most
//     one (the first non-nil in declaration order).
//   - Unknown fields are skipped.
//
// Malformed or truncated input produces an error, never a panic. The
// decoder bounds recursion depth at [MaxDepth] so a hostile or corrupt
// buffer cannot exhaust the stack.
//
// Messages are the raw schema. Interpretation (which dtype means which
// element kind, shape validation) belongs to lib/space.
package wire
