// Package search locates the quality-optimal CRF by driving repeated
// sample encodes through a bisecting, interpolating search.
package search

import "math"

// Axis is the CRF axis at a fixed increment. Values are held as integer
// multiples of the increment to avoid floating comparison hazards.
type Axis struct {
	Increment float64
}

// Unit converts a CRF value to axis units, rounding to the nearest multiple
// of the increment with ties rounded up (toward the smaller file). The
// epsilon absorbs division error so a tie stays a tie.
func (a Axis) Unit(crf float64) int64 {
	return int64(math.Floor(crf/a.Increment + 0.5 + 1e-9))
}

// Crf converts axis units back to a CRF value.
func (a Axis) Crf(unit int64) float64 {
	return float64(unit) * a.Increment
}

// Round snaps a CRF value onto the axis.
func (a Axis) Round(crf float64) float64 {
	return a.Crf(a.Unit(crf))
}

// clampUnit restricts units to [lo, hi].
func clampUnit(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
