// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package space

import "fmt"

// Data is a value decoded against a Space. Implementations are
// *DiscreteData, *BoxData, *TupleData and *DictData.
type Data interface {
	// Space returns the space the value was decoded against, or nil
	// for values built by hand.
	Space() Space

	// Value returns the native Go form of the data, the same form
	// EncodeData accepts.
	Value() any

	isData()
}

// DiscreteData is a single integer choice.
type DiscreteData struct {
	Int   int
	space *Discrete
}

// BoxData is a flat numeric buffer with its shape. Exactly one of the
// four slices is populated, selected by Kind.
type BoxData struct {
	Shape    []int
	Kind     Kind
	Int32s   []int32
	Uint32s  []uint32
	Float32s []float32
	Float64s []float64
	space    *Box
}

// TupleData holds positional children.
type TupleData struct {
	Elements []Data
	space    *Tuple
}

// DictData holds named children.
type DictData struct {
	Elements map[string]Data
	space    *Dict
}

func (*DiscreteData) isData() {}
func (*BoxData) isData()      {}
func (*TupleData) isData()    {}
func (*DictData) isData()     {}

func (d *DiscreteData) Space() Space {
	if d.space == nil {
		return nil
	}
	return d.space
}

func (b *BoxData) Space() Space {
	if b.space == nil {
		return nil
	}
	return b.space
}

func (t *TupleData) Space() Space {
	if t.space == nil {
		return nil
	}
	return t.space
}

func (d *DictData) Space() Space {
	if d.space == nil {
		return nil
	}
	return d.space
}

func (d *DiscreteData) Value() any { return d.Int }

// Value returns the populated buffer: one of []int32, []uint32,
// []float32 or []float64.
func (b *BoxData) Value() any {
	switch b.Kind {
	case Int32:
		return b.Int32s
	case Uint32:
		return b.Uint32s
	case Float32:
		return b.Float32s
	case Float64:
		return b.Float64s
	default:
		panic(fmt.Sprintf("space: unknown kind %d", int(b.Kind)))
	}
}

// Len is the number of elements in the populated buffer.
func (b *BoxData) Len() int {
	switch b.Kind {
	case Int32:
		return len(b.Int32s)
	case Uint32:
		return len(b.Uint32s)
	case Float32:
		return len(b.Float32s)
	case Float64:
		return len(b.Float64s)
	default:
		return 0
	}
}

// AsFloat64s converts any buffer to float64, for callers that do not
// care about the element kind.
func (b *BoxData) AsFloat64s() []float64 {
	out := make([]float64, 0, b.Len())
	switch b.Kind {
	case Int32:
		for _, v := range b.Int32s {
			out = append(out, float64(v))
		}
	case Uint32:
		for _, v := range b.Uint32s {
			out = append(out, float64(v))
		}
	case Float32:
		for _, v := range b.Float32s {
			out = append(out, float64(v))
		}
	case Float64:
		out = append(out, b.Float64s...)
	}
	return out
}

func (t *TupleData) Value() any {
	values := make([]any, len(t.Elements))
	for i, element := range t.Elements {
		values[i] = element.Value()
	}
	return values
}

func (d *DictData) Value() any {
	values := make(map[string]any, len(d.Elements))
	for key, element := range d.Elements {
		values[key] = element.Value()
	}
	return values
}
