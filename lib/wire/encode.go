// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Zero-valued scalars are omitted. Oneof members and non-nil
// submessages are always written, even when empty, so the peer observes
// their presence.

func (m *SimInitMsg) Marshal() []byte {
	var b []byte
	if m.ActionSpace != nil {
		b = appendMessage(b, 1, m.ActionSpace.appendTo(nil))
	}
	if m.ObservationSpace != nil {
		b = appendMessage(b, 2, m.ObservationSpace.appendTo(nil))
	}
	return b
}

func (m *SimInitAck) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.Done)
	b = appendBool(b, 2, m.StopRequested)
	return b
}

func (m *EnvStateMsg) Marshal() []byte {
	var b []byte
	if m.Observation != nil {
		b = appendMessage(b, 1, m.Observation.appendTo(nil))
	}
	if m.Reward != 0 {
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(m.Reward))
	}
	b = appendBool(b, 3, m.GameOver)
	if m.Info != "" {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, m.Info)
	}
	if m.Reason != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.Reason)))
	}
	return b
}

func (m *EnvActMsg) Marshal() []byte {
	var b []byte
	if m.Action != nil {
		b = appendMessage(b, 1, m.Action.appendTo(nil))
	}
	b = appendBool(b, 2, m.StopRequested)
	return b
}

// Marshal encodes a standalone SpaceDescription.
func (m *SpaceDescription) Marshal() []byte { return m.appendTo(nil) }

// Marshal encodes a standalone DataContainer.
func (m *DataContainer) Marshal() []byte { return m.appendTo(nil) }

func (m *SpaceDescription) appendTo(b []byte) []byte {
	switch {
	case m.Discrete != nil:
		var inner []byte
		inner = appendInt32(inner, 1, m.Discrete.N)
		b = appendMessage(b, 1, inner)
	case m.Box != nil:
		var inner []byte
		inner = appendPackedFloats(inner, 1, m.Box.Low)
		inner = appendPackedFloats(inner, 2, m.Box.High)
		inner = appendPackedUint32s(inner, 3, m.Box.Shape)
		inner = appendInt32(inner, 4, int32(m.Box.Dtype))
		b = appendMessage(b, 2, inner)
	case m.Tuple != nil:
		b = appendMessage(b, 3, appendSpaceElements(nil, m.Tuple.Elements))
	case m.Dict != nil:
		b = appendMessage(b, 4, appendSpaceElements(nil, m.Dict.Elements))
	}
	if m.Name != "" {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, m.Name)
	}
	return b
}

func appendSpaceElements(b []byte, elements []*SpaceDescription) []byte {
	for _, element := range elements {
		if element == nil {
			element = &SpaceDescription{}
		}
		b = appendMessage(b, 1, element.appendTo(nil))
	}
	return b
}

func (m *DataContainer) appendTo(b []byte) []byte {
	switch {
	case m.Discrete != nil:
		var inner []byte
		inner = appendInt32(inner, 1, m.Discrete.Data)
		b = appendMessage(b, 1, inner)
	case m.Box != nil:
		var inner []byte
		inner = appendPackedUint32s(inner, 1, m.Box.Shape)
		inner = appendInt32(inner, 2, int32(m.Box.Dtype))
		inner = appendPackedInt32s(inner, 3, m.Box.IntData)
		inner = appendPackedUint32s(inner, 4, m.Box.UintData)
		inner = appendPackedFloats(inner, 5, m.Box.FloatData)
		inner = appendPackedDoubles(inner, 6, m.Box.DoubleData)
		b = appendMessage(b, 2, inner)
	case m.Tuple != nil:
		b = appendMessage(b, 3, appendDataElements(nil, m.Tuple.Elements))
	case m.Dict != nil:
		b = appendMessage(b, 4, appendDataElements(nil, m.Dict.Elements))
	}
	if m.Name != "" {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, m.Name)
	}
	return b
}

func appendDataElements(b []byte, elements []*DataContainer) []byte {
	for _, element := range elements {
		if element == nil {
			element = &DataContainer{}
		}
		b = appendMessage(b, 1, element.appendTo(nil))
	}
	return b
}

func appendMessage(b []byte, number protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, number, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendBool(b []byte, number protowire.Number, value bool) []byte {
	if !value {
		return b
	}
	b = protowire.AppendTag(b, number, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(true))
}

// appendInt32 writes a proto3 int32: negative values are sign-extended
// to ten bytes, as protoc-generated code does.
func appendInt32(b []byte, number protowire.Number, value int32) []byte {
	if value == 0 {
		return b
	}
	b = protowire.AppendTag(b, number, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(value)))
}

func appendPackedInt32s(b []byte, number protowire.Number, values []int32) []byte {
	if len(values) == 0 {
		return b
	}
	var packed []byte
	for _, value := range values {
		packed = protowire.AppendVarint(packed, uint64(int64(value)))
	}
	return appendMessage(b, number, packed)
}

func appendPackedUint32s(b []byte, number protowire.Number, values []uint32) []byte {
	if len(values) == 0 {
		return b
	}
	var packed []byte
	for _, value := range values {
		packed = protowire.AppendVarint(packed, uint64(value))
	}
	return appendMessage(b, number, packed)
}

func appendPackedFloats(b []byte, number protowire.Number, values []float32) []byte {
	if len(values) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(values))
	for _, value := range values {
		packed = protowire.AppendFixed32(packed, math.Float32bits(value))
	}
	return appendMessage(b, number, packed)
}

func appendPackedDoubles(b []byte, number protowire.Number, values []float64) []byte {
	if len(values) == 0 {
		return b
	}
	packed := make([]byte, 0, 8*len(values))
	for _, value := range values {
		packed = protowire.AppendFixed64(packed, math.Float64bits(value))
	}
	return appendMessage(b, number, packed)
}
