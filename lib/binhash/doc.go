// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash fingerprints the simulator executable with keyed
// BLAKE3. The digest is logged at launch and stored in the state file
// and trace header, so a trace can be matched to the exact simulator
// build that produced it.
package binhash
