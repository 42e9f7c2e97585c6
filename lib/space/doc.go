// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package space models action and observation spaces and the values
// that conform to them, and converts both to and from lib/wire
// messages.
//
// [Space] and [Data] are closed sum types: the only implementations are
// the four variants defined here (Discrete, Box, Tuple, Dict and their
// Data counterparts), sealed by an unexported method. Every function
// that dispatches on a variant uses a type switch whose default case
// reports an unknown variant, so adding a fifth kind fails loudly in
// tests until every switch handles it.
//
// Three directions are supported:
//
//   - [DecodeSpace]: wire.SpaceDescription → Space.
//   - [DecodeData]: wire.DataContainer + Space → Data. The box element
//     type comes from the data message's own dtype tag; the buffer is
//     returned flat with its shape alongside. Reshaping is left to
//     callers.
//   - [EncodeData]: native Go value + Space → wire.DataContainer.
//     Native values are int for Discrete, one of []int32, []uint32,
//     []float32, []float64 for Box, []any for Tuple and map[string]any
//     for Dict. [Data.Value] returns exactly these forms, so decoded
//     data can be re-encoded unchanged.
//
// # Float tags
//
// The simulator labels box *space descriptors* with FLOAT for 64-bit
// and DOUBLE for 32-bit elements, the reverse of the names. Box *data*
// tags are not swapped: FLOAT data travels in the 32-bit floatData
// field and DOUBLE data in the 64-bit doubleData field. Both mappings
// are kept exactly as the peer uses them; see dtype.go.
package space
