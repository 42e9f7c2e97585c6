// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/gymlink/gymlink/lib/wire"
)

// rootPath names the top-level value in error paths.
const rootPath = "$"

// DecodeError reports a wire message that does not describe a valid
// space, or data that does not fit the space it was decoded against.
type DecodeError struct {
	// Path locates the offending element, e.g. "$.sensors[1]".
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a native value that does not match the space it
// is encoded against.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func decodeErrorf(path, format string, args ...any) error {
	return &DecodeError{Path: path, Err: fmt.Errorf(format, args...)}
}

func encodeErrorf(path, format string, args ...any) error {
	return &EncodeError{Path: path, Err: fmt.Errorf(format, args...)}
}

func indexPath(parent string, i int) string { return parent + "[" + strconv.Itoa(i) + "]" }
func keyPath(parent, key string) string     { return parent + "." + key }

// DecodeSpace converts a wire space descriptor to a Space. Box bounds
// given as a single value apply to every element; absent bounds are
// zero.
func DecodeSpace(description *wire.SpaceDescription) (Space, error) {
	return decodeSpace(description, rootPath)
}

func decodeSpace(description *wire.SpaceDescription, path string) (Space, error) {
	if description == nil {
		return nil, decodeErrorf(path, "missing space descriptor")
	}
	switch {
	case description.Discrete != nil:
		n := description.Discrete.N
		if n < 0 {
			return nil, decodeErrorf(path, "discrete space with negative size %d", n)
		}
		return &Discrete{N: int(n)}, nil

	case description.Box != nil:
		return decodeBoxSpace(description.Box, path)

	case description.Tuple != nil:
		tuple := &Tuple{Elements: make([]Space, len(description.Tuple.Elements))}
		for i, element := range description.Tuple.Elements {
			child, err := decodeSpace(element, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			tuple.Elements[i] = child
		}
		return tuple, nil

	case description.Dict != nil:
		dict := &Dict{Elements: make(map[string]Space, len(description.Dict.Elements))}
		for i, element := range description.Dict.Elements {
			if element == nil || element.Name == "" {
				return nil, decodeErrorf(indexPath(path, i), "dict element without a name")
			}
			if _, exists := dict.Elements[element.Name]; exists {
				return nil, decodeErrorf(keyPath(path, element.Name), "duplicate dict key")
			}
			child, err := decodeSpace(element, keyPath(path, element.Name))
			if err != nil {
				return nil, err
			}
			dict.Elements[element.Name] = child
		}
		return dict, nil

	default:
		return nil, decodeErrorf(path, "space descriptor has no variant set")
	}
}

func decodeBoxSpace(box *wire.BoxSpace, path string) (*Box, error) {
	kind, err := kindFromSpaceDtype(box.Dtype)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	shape := make([]int, len(box.Shape))
	size := 1
	for i, dimension := range box.Shape {
		if dimension > MaxBoxElements || (dimension > 0 && size > MaxBoxElements/int(dimension)) {
			return nil, decodeErrorf(path, "shape %v exceeds %d elements", box.Shape, MaxBoxElements)
		}
		shape[i] = int(dimension)
		size *= int(dimension)
	}
	low, err := broadcastBound(box.Low, size)
	if err != nil {
		return nil, decodeErrorf(path, "low: %v", err)
	}
	high, err := broadcastBound(box.High, size)
	if err != nil {
		return nil, decodeErrorf(path, "high: %v", err)
	}
	return &Box{Low: low, High: high, Shape: shape, Kind: kind}, nil
}

// MaxBoxElements bounds the element count of a decoded box space. A
// box that large could never cross a channel anyway; the limit keeps a
// malformed descriptor from sizing the bound slices.
const MaxBoxElements = 1 << 24

// broadcastBound expands a bound to size elements. An empty bound reads
// as zero, the proto3 default for an absent scalar.
func broadcastBound(bound []float32, size int) ([]float64, error) {
	out := make([]float64, size)
	switch len(bound) {
	case 0:
	case 1:
		for i := range out {
			out[i] = float64(bound[0])
		}
	case size:
		for i, value := range bound {
			out[i] = float64(value)
		}
	default:
		return nil, fmt.Errorf("%d values for %d elements", len(bound), size)
	}
	return out, nil
}

// EncodeSpace converts a Space back to its wire descriptor. Box kinds
// are written with the simulator's tag convention, so EncodeSpace and
// DecodeSpace are inverses. Dict elements are emitted in key order.
func EncodeSpace(s Space) *wire.SpaceDescription {
	switch s := s.(type) {
	case *Discrete:
		return &wire.SpaceDescription{Discrete: &wire.DiscreteSpace{N: int32(s.N)}}
	case *Box:
		box := &wire.BoxSpace{
			Low:   encodeBound(s.Low),
			High:  encodeBound(s.High),
			Shape: make([]uint32, len(s.Shape)),
			Dtype: spaceDtypeFromKind(s.Kind),
		}
		for i, dimension := range s.Shape {
			box.Shape[i] = uint32(dimension)
		}
		return &wire.SpaceDescription{Box: box}
	case *Tuple:
		tuple := &wire.TupleSpace{Elements: make([]*wire.SpaceDescription, len(s.Elements))}
		for i, element := range s.Elements {
			tuple.Elements[i] = EncodeSpace(element)
		}
		return &wire.SpaceDescription{Tuple: tuple}
	case *Dict:
		dict := &wire.DictSpace{}
		for _, key := range s.Keys() {
			element := EncodeSpace(s.Elements[key])
			element.Name = key
			dict.Elements = append(dict.Elements, element)
		}
		return &wire.SpaceDescription{Dict: dict}
	default:
		panic(fmt.Sprintf("space: unknown space variant %T", s))
	}
}

// encodeBound writes a uniform bound as the single value that
// DecodeSpace broadcasts back over the shape.
func encodeBound(bound []float64) []float32 {
	if len(bound) > 1 && !slices.ContainsFunc(bound[1:], func(v float64) bool { return v != bound[0] }) {
		return []float32{float32(bound[0])}
	}
	out := make([]float32, len(bound))
	for i, value := range bound {
		out[i] = float32(value)
	}
	return out
}

// DecodeData converts a wire data container to Data, checking its
// structure against s. The box element kind is taken from the
// container's own dtype tag, not from the space.
func DecodeData(container *wire.DataContainer, s Space) (Data, error) {
	return decodeData(container, s, rootPath)
}

func decodeData(container *wire.DataContainer, s Space, path string) (Data, error) {
	if container == nil {
		return nil, decodeErrorf(path, "missing data for %s", s)
	}
	switch s := s.(type) {
	case *Discrete:
		if container.Discrete == nil {
			return nil, decodeErrorf(path, "want discrete data for %s", s)
		}
		return &DiscreteData{Int: int(container.Discrete.Data), space: s}, nil

	case *Box:
		if container.Box == nil {
			return nil, decodeErrorf(path, "want box data for %s", s)
		}
		return decodeBoxData(container.Box, s, path)

	case *Tuple:
		if container.Tuple == nil {
			return nil, decodeErrorf(path, "want tuple data for %s", s)
		}
		elements := container.Tuple.Elements
		if len(elements) != len(s.Elements) {
			return nil, decodeErrorf(path, "tuple has %d elements, want %d", len(elements), len(s.Elements))
		}
		tuple := &TupleData{Elements: make([]Data, len(elements)), space: s}
		for i, element := range elements {
			child, err := decodeData(element, s.Elements[i], indexPath(path, i))
			if err != nil {
				return nil, err
			}
			tuple.Elements[i] = child
		}
		return tuple, nil

	case *Dict:
		if container.Dict == nil {
			return nil, decodeErrorf(path, "want dict data for %s", s)
		}
		dict := &DictData{Elements: make(map[string]Data, len(s.Elements)), space: s}
		for _, element := range container.Dict.Elements {
			if element == nil {
				return nil, decodeErrorf(path, "nil dict element")
			}
			childSpace, ok := s.Elements[element.Name]
			if !ok {
				return nil, decodeErrorf(keyPath(path, element.Name), "key not in space")
			}
			if _, exists := dict.Elements[element.Name]; exists {
				return nil, decodeErrorf(keyPath(path, element.Name), "duplicate dict key")
			}
			child, err := decodeData(element, childSpace, keyPath(path, element.Name))
			if err != nil {
				return nil, err
			}
			dict.Elements[element.Name] = child
		}
		for _, key := range s.Keys() {
			if _, ok := dict.Elements[key]; !ok {
				return nil, decodeErrorf(keyPath(path, key), "missing dict key")
			}
		}
		return dict, nil

	case nil:
		return nil, decodeErrorf(path, "no space to decode against")

	default:
		panic(fmt.Sprintf("space: unknown space variant %T", s))
	}
}

func decodeBoxData(box *wire.BoxDataContainer, s *Box, path string) (*BoxData, error) {
	kind, err := kindFromDataDtype(box.Dtype)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	data := &BoxData{Shape: make([]int, len(box.Shape)), Kind: kind, space: s}
	for i, dimension := range box.Shape {
		data.Shape[i] = int(dimension)
	}
	switch kind {
	case Int32:
		data.Int32s = box.IntData
	case Uint32:
		data.Uint32s = box.UintData
	case Float32:
		data.Float32s = box.FloatData
	case Float64:
		data.Float64s = box.DoubleData
	}
	// The buffer stays flat and Shape stays as sent; peers may omit the
	// shape entirely. Callers reconcile it with s, e.g. via Contains.
	return data, nil
}

// EncodeData converts a native value to a wire data container for s.
// Accepted values are listed in the package documentation; Data
// values are accepted too. A mismatch anywhere in the tree returns an
// *EncodeError naming its path.
func EncodeData(value any, s Space) (*wire.DataContainer, error) {
	return encodeData(value, s, rootPath)
}

func encodeData(value any, s Space, path string) (*wire.DataContainer, error) {
	switch s := s.(type) {
	case *Discrete:
		integer, ok := asInt64(value)
		if !ok {
			return nil, encodeErrorf(path, "want an integer for %s, got %T", s, value)
		}
		if integer < 0 || integer >= int64(s.N) {
			return nil, encodeErrorf(path, "%d out of range for %s", integer, s)
		}
		return &wire.DataContainer{Discrete: &wire.DiscreteDataContainer{Data: int32(integer)}}, nil

	case *Box:
		box, err := encodeBoxData(value, s, path)
		if err != nil {
			return nil, err
		}
		return &wire.DataContainer{Box: box}, nil

	case *Tuple:
		if data, ok := value.(*TupleData); ok {
			value = data.Value()
		}
		values, ok := value.([]any)
		if !ok {
			return nil, encodeErrorf(path, "want []any for %s, got %T", s, value)
		}
		if len(values) != len(s.Elements) {
			return nil, encodeErrorf(path, "%d values for %d tuple elements", len(values), len(s.Elements))
		}
		tuple := &wire.TupleDataContainer{Elements: make([]*wire.DataContainer, len(values))}
		for i, element := range values {
			child, err := encodeData(element, s.Elements[i], indexPath(path, i))
			if err != nil {
				return nil, err
			}
			tuple.Elements[i] = child
		}
		return &wire.DataContainer{Tuple: tuple}, nil

	case *Dict:
		if data, ok := value.(*DictData); ok {
			value = data.Value()
		}
		values, ok := value.(map[string]any)
		if !ok {
			return nil, encodeErrorf(path, "want map[string]any for %s, got %T", s, value)
		}
		for key := range values {
			if _, ok := s.Elements[key]; !ok {
				return nil, encodeErrorf(keyPath(path, key), "key not in space")
			}
		}
		dict := &wire.DictDataContainer{Elements: make([]*wire.DataContainer, 0, len(s.Elements))}
		for _, key := range s.Keys() {
			element, ok := values[key]
			if !ok {
				return nil, encodeErrorf(keyPath(path, key), "missing dict key")
			}
			child, err := encodeData(element, s.Elements[key], keyPath(path, key))
			if err != nil {
				return nil, err
			}
			child.Name = key
			dict.Elements = append(dict.Elements, child)
		}
		return &wire.DataContainer{Dict: dict}, nil

	case nil:
		return nil, encodeErrorf(path, "no space to encode against")

	default:
		panic(fmt.Sprintf("space: unknown space variant %T", s))
	}
}

var errKindMismatch = errors.New("element kind does not match space")

func encodeBoxData(value any, s *Box, path string) (*wire.BoxDataContainer, error) {
	if data, ok := value.(*BoxData); ok {
		value = data.Value()
	}
	box := &wire.BoxDataContainer{Shape: make([]uint32, len(s.Shape))}
	for i, dimension := range s.Shape {
		box.Shape[i] = uint32(dimension)
	}

	var length int
	var kind Kind
	switch values := value.(type) {
	case []int32:
		length, kind = len(values), Int32
		box.IntData = values
	case []uint32:
		length, kind = len(values), Uint32
		box.UintData = values
	case []float32:
		length, kind = len(values), Float32
		box.FloatData = values
	case []float64:
		length, kind = len(values), Float64
		box.DoubleData = values
	default:
		return nil, encodeErrorf(path, "want a numeric slice for %s, got %T", s, value)
	}

	// Integer kinds must match the space's signedness; either float
	// width is accepted for a float space.
	if kind != s.Kind && !(kind.IsFloat() && s.Kind.IsFloat()) {
		return nil, &EncodeError{Path: path, Err: fmt.Errorf("%w: %s values for %s", errKindMismatch, kind, s)}
	}
	if length != s.Size() {
		return nil, encodeErrorf(path, "%d values for shape %v", length, s.Shape)
	}
	box.Dtype = dataDtypeFromKind(kind)
	return box, nil
}
