// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"math"
	"math/rand/v2"
)

func (d *Discrete) Sample(rng *rand.Rand) any {
	if d.N <= 0 {
		return 0
	}
	return rng.IntN(d.N)
}

// Sample draws each element independently. Bounded elements are
// uniform; half-bounded elements are the bound shifted by an
// exponential draw; unbounded elements are standard normal.
func (b *Box) Sample(rng *rand.Rand) any {
	size := b.Size()
	switch b.Kind {
	case Int32:
		values := make([]int32, size)
		for i := range values {
			values[i] = int32(b.sampleInteger(rng, i, math.MinInt32, math.MaxInt32))
		}
		return values
	case Uint32:
		values := make([]uint32, size)
		for i := range values {
			values[i] = uint32(b.sampleInteger(rng, i, 0, math.MaxUint32))
		}
		return values
	case Float32:
		values := make([]float32, size)
		for i := range values {
			values[i] = float32(b.sampleFloat(rng, i))
		}
		return values
	case Float64:
		values := make([]float64, size)
		for i := range values {
			values[i] = b.sampleFloat(rng, i)
		}
		return values
	default:
		panic("space: unknown kind " + b.Kind.String())
	}
}

func (b *Box) sampleFloat(rng *rand.Rand, i int) float64 {
	low, high := b.Low[i], b.High[i]
	lowBounded := !math.IsInf(low, -1)
	highBounded := !math.IsInf(high, 1)
	switch {
	case lowBounded && highBounded:
		return low + rng.Float64()*(high-low)
	case lowBounded:
		return low + rng.ExpFloat64()
	case highBounded:
		return high - rng.ExpFloat64()
	default:
		return rng.NormFloat64()
	}
}

// sampleInteger draws uniformly from the integers in [Low[i], High[i]]
// after clamping the bounds to the kind's range.
func (b *Box) sampleInteger(rng *rand.Rand, i int, minimum, maximum float64) int64 {
	low := math.Max(math.Ceil(b.Low[i]), minimum)
	high := math.Min(math.Floor(b.High[i]), maximum)
	if high <= low {
		return int64(low)
	}
	return int64(low) + rng.Int64N(int64(high-low)+1)
}

func (t *Tuple) Sample(rng *rand.Rand) any {
	values := make([]any, len(t.Elements))
	for i, element := range t.Elements {
		values[i] = element.Sample(rng)
	}
	return values
}

func (d *Dict) Sample(rng *rand.Rand) any {
	values := make(map[string]any, len(d.Elements))
	for _, key := range d.Keys() {
		values[key] = d.Elements[key].Sample(rng)
	}
	return values
}
