// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
)

// Space describes the shape and element kind of an action or
// observation. Implementations are *Discrete, *Box, *Tuple and *Dict.
// Spaces are immutable once decoded.
type Space interface {
	// String renders the space in gym notation, e.g. "Box(-1, 1, (2,), float32)".
	String() string

	// Sample draws a random native value from the space.
	Sample(rng *rand.Rand) any

	// Contains reports whether value is a native value of this space
	// within its bounds.
	Contains(value any) bool

	isSpace()
}

// Discrete is the set {0, 1, ..., N-1}.
type Discrete struct {
	N int
}

// Box is a flat numeric buffer of Size() elements with per-element
// bounds. Low and High always hold Size() entries.
type Box struct {
	Low   []float64
	High  []float64
	Shape []int
	Kind  Kind
}

// Tuple is an ordered sequence of spaces.
type Tuple struct {
	Elements []Space
}

// Dict maps names to spaces. Key order carries no meaning.
type Dict struct {
	Elements map[string]Space
}

func (*Discrete) isSpace() {}
func (*Box) isSpace()      {}
func (*Tuple) isSpace()    {}
func (*Dict) isSpace()     {}

// Size is the number of elements in the box, the product of its shape.
func (b *Box) Size() int { return shapeSize(b.Shape) }

// Keys returns the dict's keys in sorted order.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.Elements))
	for key := range d.Elements {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func shapeSize(shape []int) int {
	size := 1
	for _, dimension := range shape {
		size *= dimension
	}
	return size
}

func (d *Discrete) String() string { return fmt.Sprintf("Discrete(%d)", d.N) }

func (b *Box) String() string {
	return fmt.Sprintf("Box(%s, %s, %s, %s)", formatBound(b.Low), formatBound(b.High), formatShape(b.Shape), b.Kind)
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Elements))
	for i, element := range t.Elements {
		parts[i] = element.String()
	}
	return "Tuple(" + strings.Join(parts, ", ") + ")"
}

func (d *Dict) String() string {
	keys := d.Keys()
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = strconv.Quote(key) + ": " + d.Elements[key].String()
	}
	return "Dict(" + strings.Join(parts, ", ") + ")"
}

// formatBound prints a single number when every element shares the
// same bound, as gym does.
func formatBound(bound []float64) string {
	if len(bound) == 0 {
		return "[]"
	}
	uniform := true
	for _, value := range bound[1:] {
		if value != bound[0] {
			uniform = false
			break
		}
	}
	if uniform {
		return strconv.FormatFloat(bound[0], 'f', -1, 64)
	}
	parts := make([]string, len(bound))
	for i, value := range bound {
		parts[i] = strconv.FormatFloat(value, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatShape(shape []int) string {
	if len(shape) == 1 {
		return fmt.Sprintf("(%d,)", shape[0])
	}
	parts := make([]string, len(shape))
	for i, dimension := range shape {
		parts[i] = strconv.Itoa(dimension)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Equal reports whether two spaces have the same variant, bounds,
// shape, kind and children. Dict key order is irrelevant.
func Equal(a, b Space) bool {
	switch a := a.(type) {
	case *Discrete:
		b, ok := b.(*Discrete)
		return ok && a.N == b.N
	case *Box:
		b, ok := b.(*Box)
		return ok && a.Kind == b.Kind && slices.Equal(a.Shape, b.Shape) &&
			slices.Equal(a.Low, b.Low) && slices.Equal(a.High, b.High)
	case *Tuple:
		b, ok := b.(*Tuple)
		if !ok || len(a.Elements) != len(b.Elements) {
			return false
		}
		for i := range a.Elements {
			if !Equal(a.Elements[i], b.Elements[i]) {
				return false
			}
		}
		return true
	case *Dict:
		b, ok := b.(*Dict)
		if !ok || len(a.Elements) != len(b.Elements) {
			return false
		}
		for key, element := range a.Elements {
			other, ok := b.Elements[key]
			if !ok || !Equal(element, other) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		panic(fmt.Sprintf("space: unknown space variant %T", a))
	}
}

func (d *Discrete) Contains(value any) bool {
	integer, ok := asInt64(value)
	return ok && integer >= 0 && integer < int64(d.N)
}

func (b *Box) Contains(value any) bool {
	if data, ok := value.(*BoxData); ok {
		value = data.Value()
	}
	inBounds := func(i int, element float64) bool {
		return element >= b.Low[i] && element <= b.High[i]
	}
	switch values := value.(type) {
	case []int32:
		if b.Kind != Int32 || len(values) != b.Size() {
			return false
		}
		for i, element := range values {
			if !inBounds(i, float64(element)) {
				return false
			}
		}
	case []uint32:
		if b.Kind != Uint32 || len(values) != b.Size() {
			return false
		}
		for i, element := range values {
			if !inBounds(i, float64(element)) {
				return false
			}
		}
	case []float32:
		if !b.Kind.IsFloat() || len(values) != b.Size() {
			return false
		}
		for i, element := range values {
			if !inBounds(i, float64(element)) {
				return false
			}
		}
	case []float64:
		if !b.Kind.IsFloat() || len(values) != b.Size() {
			return false
		}
		for i, element := range values {
			if !inBounds(i, element) {
				return false
			}
		}
	default:
		return false
	}
	return true
}

func (t *Tuple) Contains(value any) bool {
	if data, ok := value.(*TupleData); ok {
		value = data.Value()
	}
	values, ok := value.([]any)
	if !ok || len(values) != len(t.Elements) {
		return false
	}
	for i, element := range t.Elements {
		if !element.Contains(values[i]) {
			return false
		}
	}
	return true
}

func (d *Dict) Contains(value any) bool {
	if data, ok := value.(*DictData); ok {
		value = data.Value()
	}
	values, ok := value.(map[string]any)
	if !ok || len(values) != len(d.Elements) {
		return false
	}
	for key, element := range d.Elements {
		child, ok := values[key]
		if !ok || !element.Contains(child) {
			return false
		}
	}
	return true
}

// asInt64 converts any Go integer (or a *DiscreteData) to int64.
func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case *DiscreteData:
		return int64(v.Int), true
	default:
		return 0, false
	}
}
