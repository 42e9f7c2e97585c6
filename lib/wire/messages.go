// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Dtype is the element type tag carried by box spaces and box data.
// These values are protocol constants shared with the simulator.
type Dtype int32

const (
	DtypeInt    Dtype = 0
	DtypeUint   Dtype = 1
	DtypeFloat  Dtype = 2
	DtypeDouble Dtype = 3
)

func (d Dtype) String() string {
	switch d {
	case DtypeInt:
		return "INT"
	case DtypeUint:
		return "UINT"
	case DtypeFloat:
		return "FLOAT"
	case DtypeDouble:
		return "DOUBLE"
	default:
		return fmt.Sprintf("Dtype(%d)", int32(d))
	}
}

// Reason says why the simulator declared the episode over.
type Reason int32

const (
	ReasonSimulationEnd Reason = 0
	ReasonGameOver      Reason = 1
)

func (r Reason) String() string {
	switch r {
	case ReasonSimulationEnd:
		return "SimulationEnd"
	case ReasonGameOver:
		return "GameOver"
	default:
		return fmt.Sprintf("Reason(%d)", int32(r))
	}
}

type DiscreteSpace struct {
	N int32
}

type BoxSpace struct {
	Low   []float32
	High  []float32
	Shape []uint32
	Dtype Dtype
}

type TupleSpace struct {
	Elements []*SpaceDescription
}

type DictSpace struct {
	Elements []*SpaceDescription
}

// SpaceDescription describes an action or observation space. Exactly
// one of Discrete, Box, Tuple and Dict is set in a well-formed message.
// Name is only meaningful for elements of a DictSpace.
type SpaceDescription struct {
	Discrete *DiscreteSpace
	Box      *BoxSpace
	Tuple    *TupleSpace
	Dict     *DictSpace
	Name     string
}

type DiscreteDataContainer struct {
	Data int32
}

// BoxDataContainer carries a flat numeric buffer. Dtype selects which
// of the four data fields holds the values.
type BoxDataContainer struct {
	Shape      []uint32
	Dtype      Dtype
	IntData    []int32
	UintData   []uint32
	FloatData  []float32
	DoubleData []float64
}

type TupleDataContainer struct {
	Elements []*DataContainer
}

type DictDataContainer struct {
	Elements []*DataContainer
}

// DataContainer is one value conforming to a space. Exactly one of
// Discrete, Box, Tuple and Dict is set in a well-formed message. Name
// is the key when the container is an element of a DictDataContainer.
type DataContainer struct {
	Discrete *DiscreteDataContainer
	Box      *BoxDataContainer
	Tuple    *TupleDataContainer
	Dict     *DictDataContainer
	Name     string
}

// SimInitMsg is the first message the simulator publishes.
type SimInitMsg struct {
	ActionSpace      *SpaceDescription
	ObservationSpace *SpaceDescription
}

// SimInitAck answers SimInitMsg.
type SimInitAck struct {
	Done          bool
	StopRequested bool
}

// EnvStateMsg is one observation published by the simulator.
type EnvStateMsg struct {
	Observation *DataContainer
	Reward      float32
	GameOver    bool
	Info        string
	Reason      Reason
}

// EnvActMsg carries an action, or a stop request when StopRequested is
// set.
type EnvActMsg struct {
	Action        *DataContainer
	StopRequested bool
}
