// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxDepth bounds the nesting of tuple and dict messages accepted by
// the decoder.
const MaxDepth = 64

// ErrTooDeep is returned when a message nests deeper than MaxDepth.
var ErrTooDeep = errors.New("wire: message nesting exceeds maximum depth")

// UnmarshalSimInitMsg decodes a SimInitMsg.
func UnmarshalSimInitMsg(b []byte) (*SimInitMsg, error) {
	message := &SimInitMsg{}
	reader := fieldReader{data: b}
	for reader.next() {
		switch reader.number {
		case 1:
			message.ActionSpace = reader.spaceDescription(0)
		case 2:
			message.ObservationSpace = reader.spaceDescription(0)
		default:
			reader.skip()
		}
	}
	if reader.err != nil {
		return nil, fmt.Errorf("decoding SimInitMsg: %w", reader.err)
	}
	return message, nil
}

// UnmarshalSimInitAck decodes a SimInitAck.
func UnmarshalSimInitAck(b []byte) (*SimInitAck, error) {
	message := &SimInitAck{}
	reader := fieldReader{data: b}
	for reader.next() {
		switch reader.number {
		case 1:
			message.Done = reader.boolValue()
		case 2:
			message.StopRequested = reader.boolValue()
		default:
			reader.skip()
		}
	}
	if reader.err != nil {
		return nil, fmt.Errorf("decoding SimInitAck: %w", reader.err)
	}
	return message, nil
}

// UnmarshalEnvStateMsg decodes an EnvStateMsg.
func UnmarshalEnvStateMsg(b []byte) (*EnvStateMsg, error) {
	message := &EnvStateMsg{}
	reader := fieldReader{data: b}
	for reader.next() {
		switch reader.number {
		case 1:
			message.Observation = reader.dataContainer(0)
		case 2:
			message.Reward = reader.floatValue()
		case 3:
			message.GameOver = reader.boolValue()
		case 4:
			message.Info = reader.stringValue()
		case 5:
			message.Reason = Reason(reader.int32Value())
		default:
			reader.skip()
		}
	}
	if reader.err != nil {
		return nil, fmt.Errorf("decoding EnvStateMsg: %w", reader.err)
	}
	return message, nil
}

// UnmarshalEnvActMsg decodes an EnvActMsg.
func UnmarshalEnvActMsg(b []byte) (*EnvActMsg, error) {
	message := &EnvActMsg{}
	reader := fieldReader{data: b}
	for reader.next() {
		switch reader.number {
		case 1:
			message.Action = reader.dataContainer(0)
		case 2:
			message.StopRequested = reader.boolValue()
		default:
			reader.skip()
		}
	}
	if reader.err != nil {
		return nil, fmt.Errorf("decoding EnvActMsg: %w", reader.err)
	}
	return message, nil
}

// UnmarshalSpaceDescription decodes a standalone SpaceDescription.
func UnmarshalSpaceDescription(b []byte) (*SpaceDescription, error) {
	reader := fieldReader{}
	message := reader.decodeSpaceDescription(b, 0)
	if reader.err != nil {
		return nil, fmt.Errorf("decoding SpaceDescription: %w", reader.err)
	}
	return message, nil
}

// UnmarshalDataContainer decodes a standalone DataContainer.
func UnmarshalDataContainer(b []byte) (*DataContainer, error) {
	reader := fieldReader{}
	message := reader.decodeDataContainer(b, 0)
	if reader.err != nil {
		return nil, fmt.Errorf("decoding DataContainer: %w", reader.err)
	}
	return message, nil
}

// fieldReader walks the fields of one message. The first error sticks:
// once err is set, next returns false and every accessor returns a zero
// value, so decode loops need a single error check at the end.
type fieldReader struct {
	data     []byte
	number   protowire.Number
	wireType protowire.Type
	err      error
}

func (r *fieldReader) next() bool {
	if r.err != nil || len(r.data) == 0 {
		return false
	}
	number, wireType, n := protowire.ConsumeTag(r.data)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return false
	}
	r.data = r.data[n:]
	r.number = number
	r.wireType = wireType
	return true
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *fieldReader) expect(wireType protowire.Type) bool {
	if r.wireType != wireType {
		r.fail(fmt.Errorf("field %d: wire type %d, want %d", r.number, r.wireType, wireType))
		return false
	}
	return true
}

func (r *fieldReader) skip() {
	n := protowire.ConsumeFieldValue(r.number, r.wireType, r.data)
	if n < 0 {
		r.fail(fmt.Errorf("field %d: %w", r.number, protowire.ParseError(n)))
		return
	}
	r.data = r.data[n:]
}

func (r *fieldReader) varint() uint64 {
	if !r.expect(protowire.VarintType) {
		return 0
	}
	value, n := protowire.ConsumeVarint(r.data)
	if n < 0 {
		r.fail(fmt.Errorf("field %d: %w", r.number, protowire.ParseError(n)))
		return 0
	}
	r.data = r.data[n:]
	return value
}

func (r *fieldReader) boolValue() bool   { return protowire.DecodeBool(r.varint()) }
func (r *fieldReader) int32Value() int32 { return int32(r.varint()) }

func (r *fieldReader) floatValue() float32 {
	if !r.expect(protowire.Fixed32Type) {
		return 0
	}
	value, n := protowire.ConsumeFixed32(r.data)
	if n < 0 {
		r.fail(fmt.Errorf("field %d: %w", r.number, protowire.ParseError(n)))
		return 0
	}
	r.data = r.data[n:]
	return math.Float32frombits(value)
}

func (r *fieldReader) bytesValue() []byte {
	if !r.expect(protowire.BytesType) {
		return nil
	}
	value, n := protowire.ConsumeBytes(r.data)
	if n < 0 {
		r.fail(fmt.Errorf("field %d: %w", r.number, protowire.ParseError(n)))
		return nil
	}
	r.data = r.data[n:]
	return value
}

func (r *fieldReader) stringValue() string { return string(r.bytesValue()) }

// The repeated readers accept both the packed form (one length-delimited
// field) and the unpacked form (one field per element), as proto3
// parsers must.

func (r *fieldReader) appendInt32s(values []int32) []int32 {
	if r.wireType == protowire.VarintType {
		return append(values, r.int32Value())
	}
	packed := r.bytesValue()
	for len(packed) > 0 {
		value, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			r.fail(fmt.Errorf("field %d: %w", r.number, protowire.ParseError(n)))
			return values
		}
		values = append(values, int32(value))
		packed = packed[n:]
	}
	return values
}

func (r *fieldReader) appendUint32s(values []uint32) []uint32 {
	if r.wireType == protowire.VarintType {
		return append(values, uint32(r.varint()))
	}
	packed := r.bytesValue()
	for len(packed) > 0 {
		value, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			r.fail(fmt.Errorf("field %d: %w", r.number, protowire.ParseError(n)))
			return values
		}
		values = append(values, uint32(value))
		packed = packed[n:]
	}
	return values
}

func (r *fieldReader) appendFloats(values []float32) []float32 {
	if r.wireType == protowire.Fixed32Type {
		return append(values, r.floatValue())
	}
	packed := r.bytesValue()
	if len(packed)%4 != 0 {
		r.fail(fmt.Errorf("field %d: packed float length %d is not a multiple of 4", r.number, len(packed)))
		return values
	}
	for len(packed) > 0 {
		value, _ := protowire.ConsumeFixed32(packed)
		values = append(values, math.Float32frombits(value))
		packed = packed[4:]
	}
	return values
}

func (r *fieldReader) appendDoubles(values []float64) []float64 {
	if r.wireType == protowire.Fixed64Type {
		value, n := protowire.ConsumeFixed64(r.data)
		if n < 0 {
			r.fail(fmt.Errorf("field %d: %w", r.number, protowire.ParseError(n)))
			return values
		}
		r.data = r.data[n:]
		return append(values, math.Float64frombits(value))
	}
	packed := r.bytesValue()
	if len(packed)%8 != 0 {
		r.fail(fmt.Errorf("field %d: packed double length %d is not a multiple of 8", r.number, len(packed)))
		return values
	}
	for len(packed) > 0 {
		value, _ := protowire.ConsumeFixed64(packed)
		values = append(values, math.Float64frombits(value))
		packed = packed[8:]
	}
	return values
}

func (r *fieldReader) spaceDescription(depth int) *SpaceDescription {
	inner := r.bytesValue()
	if r.err != nil {
		return nil
	}
	return r.decodeSpaceDescription(inner, depth)
}

func (r *fieldReader) dataContainer(depth int) *DataContainer {
	inner := r.bytesValue()
	if r.err != nil {
		return nil
	}
	return r.decodeDataContainer(inner, depth)
}

// decodeSpaceDescription parses b with a child reader and copies any
// failure back to r.
func (r *fieldReader) decodeSpaceDescription(b []byte, depth int) *SpaceDescription {
	if depth > MaxDepth {
		r.fail(ErrTooDeep)
		return nil
	}
	message := &SpaceDescription{}
	child := fieldReader{data: b}
	for child.next() {
		switch child.number {
		case 1:
			inner := child.bytesValue()
			discrete := &DiscreteSpace{}
			fields := fieldReader{data: inner}
			for fields.next() {
				if fields.number == 1 {
					discrete.N = fields.int32Value()
				} else {
					fields.skip()
				}
			}
			child.fail(fields.err)
			message.setSpaceVariant(discrete)
		case 2:
			inner := child.bytesValue()
			box := &BoxSpace{}
			fields := fieldReader{data: inner}
			for fields.next() {
				switch fields.number {
				case 1:
					box.Low = fields.appendFloats(box.Low)
				case 2:
					box.High = fields.appendFloats(box.High)
				case 3:
					box.Shape = fields.appendUint32s(box.Shape)
				case 4:
					box.Dtype = Dtype(fields.int32Value())
				default:
					fields.skip()
				}
			}
			child.fail(fields.err)
			message.setSpaceVariant(box)
		case 3:
			elements := child.spaceElements(depth)
			message.setSpaceVariant(&TupleSpace{Elements: elements})
		case 4:
			elements := child.spaceElements(depth)
			message.setSpaceVariant(&DictSpace{Elements: elements})
		case 5:
			message.Name = child.stringValue()
		default:
			child.skip()
		}
	}
	r.fail(child.err)
	return message
}

func (r *fieldReader) spaceElements(depth int) []*SpaceDescription {
	inner := r.bytesValue()
	var elements []*SpaceDescription
	fields := fieldReader{data: inner}
	for fields.next() {
		if fields.number == 1 {
			elements = append(elements, fields.spaceDescription(depth+1))
		} else {
			fields.skip()
		}
	}
	r.fail(fields.err)
	return elements
}

func (m *SpaceDescription) setSpaceVariant(variant any) {
	m.Discrete, m.Box, m.Tuple, m.Dict = nil, nil, nil, nil
	switch v := variant.(type) {
	case *DiscreteSpace:
		m.Discrete = v
	case *BoxSpace:
		m.Box = v
	case *TupleSpace:
		m.Tuple = v
	case *DictSpace:
		m.Dict = v
	}
}

func (r *fieldReader) decodeDataContainer(b []byte, depth int) *DataContainer {
	if depth > MaxDepth {
		r.fail(ErrTooDeep)
		return nil
	}
	message := &DataContainer{}
	child := fieldReader{data: b}
	for child.next() {
		switch child.number {
		case 1:
			inner := child.bytesValue()
			discrete := &DiscreteDataContainer{}
			fields := fieldReader{data: inner}
			for fields.next() {
				if fields.number == 1 {
					discrete.Data = fields.int32Value()
				} else {
					fields.skip()
				}
			}
			child.fail(fields.err)
			message.setDataVariant(discrete)
		case 2:
			inner := child.bytesValue()
			box := &BoxDataContainer{}
			fields := fieldReader{data: inner}
			for fields.next() {
				switch fields.number {
				case 1:
					box.Shape = fields.appendUint32s(box.Shape)
				case 2:
					box.Dtype = Dtype(fields.int32Value())
				case 3:
					box.IntData = fields.appendInt32s(box.IntData)
				case 4:
					box.UintData = fields.appendUint32s(box.UintData)
				case 5:
					box.FloatData = fields.appendFloats(box.FloatData)
				case 6:
					box.DoubleData = fields.appendDoubles(box.DoubleData)
				default:
					fields.skip()
				}
			}
			child.fail(fields.err)
			message.setDataVariant(box)
		case 3:
			elements := child.dataElements(depth)
			message.setDataVariant(&TupleDataContainer{Elements: elements})
		case 4:
			elements := child.dataElements(depth)
			message.setDataVariant(&DictDataContainer{Elements: elements})
		case 5:
			message.Name = child.stringValue()
		default:
			child.skip()
		}
	}
	r.fail(child.err)
	return message
}

func (r *fieldReader) dataElements(depth int) []*DataContainer {
	inner := r.bytesValue()
	var elements []*DataContainer
	fields := fieldReader{data: inner}
	for fields.next() {
		if fields.number == 1 {
			elements = append(elements, fields.dataContainer(depth+1))
		} else {
			fields.skip()
		}
	}
	r.fail(fields.err)
	return elements
}

func (m *DataContainer) setDataVariant(variant any) {
	m.Discrete, m.Box, m.Tuple, m.Dict = nil, nil, nil, nil
	switch v := variant.(type) {
	case *DiscreteDataContainer:
		m.Discrete = v
	case *BoxDataContainer:
		m.Box = v
	case *TupleDataContainer:
		m.Tuple = v
	case *DictDataContainer:
		m.Dict = v
	}
}
