// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"fmt"

	"github.com/gymlink/gymlink/lib/wire"
)

// Kind is the element type of a box.
type Kind int

const (
	Int32 Kind = iota
	Uint32
	Float32
	Float64
)

func (k Kind) String() string {
	switch k {
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsFloat reports whether k is a floating-point kind.
func (k Kind) IsFloat() bool { return k == Float32 || k == Float64 }

// kindFromSpaceDtype maps the dtype tag of a box space descriptor to an
// element kind. FLOAT means 64-bit and DOUBLE means 32-bit here: that is
// what the simulator's gym bindings have always produced, and the
// simulator is the authority.
func kindFromSpaceDtype(dtype wire.Dtype) (Kind, error) {
	switch dtype {
	case wire.DtypeInt:
		return Int32, nil
	case wire.DtypeUint:
		return Uint32, nil
	case wire.DtypeFloat:
		return Float64, nil
	case wire.DtypeDouble:
		return Float32, nil
	default:
		return 0, fmt.Errorf("unknown box space dtype %v", dtype)
	}
}

// spaceDtypeFromKind is the inverse of kindFromSpaceDtype.
func spaceDtypeFromKind(kind Kind) wire.Dtype {
	switch kind {
	case Int32:
		return wire.DtypeInt
	case Uint32:
		return wire.DtypeUint
	case Float64:
		return wire.DtypeFloat
	case Float32:
		return wire.DtypeDouble
	default:
		panic(fmt.Sprintf("space: unknown kind %d", int(kind)))
	}
}

// dataDtypeFromKind maps the runtime element kind of a box buffer to the
// dtype tag of a box data message. Unlike space descriptors, data tags
// name the field that carries the values: FLOAT selects the 32-bit
// floatData field and DOUBLE the 64-bit doubleData field.
func dataDtypeFromKind(kind Kind) wire.Dtype {
	switch kind {
	case Int32:
		return wire.DtypeInt
	case Uint32:
		return wire.DtypeUint
	case Float32:
		return wire.DtypeFloat
	case Float64:
		return wire.DtypeDouble
	default:
		panic(fmt.Sprintf("space: unknown kind %d", int(kind)))
	}
}

func kindFromDataDtype(dtype wire.Dtype) (Kind, error) {
	switch dtype {
	case wire.DtypeInt:
		return Int32, nil
	case wire.DtypeUint:
		return Uint32, nil
	case wire.DtypeFloat:
		return Float32, nil
	case wire.DtypeDouble:
		return Float64, nil
	default:
		return 0, fmt.Errorf("unknown box data dtype %v", dtype)
	}
}
