// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calib estimates hard-iron offset and per-axis soft-iron scale from
// magnetometer readings taken while the board is rotated through all
// orientations.
//
// This is the practical min/max ellipsoid approximation (offset + diagonal
// scale). It does not model cross-axis soft iron.
package calib

import (
	"math"
	"time"
)

// Vec3 is a 3-axis value in µT unless stated otherwise.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) axis(i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// minHalfRange is the smallest half-range (µT) that counts as real excitation.
// The earth field is 25-65 µT, so a full rotation gives far more.
const minHalfRange = 5.0

const confFloor = 0.05

// Result is the outcome of a calibration run.
// Corrected = (raw - Offset) * Scale.
type Result struct {
	Version    int       `json:"version"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Offset     Vec3      `json:"offset"`
	Scale      Vec3      `json:"scale"`
	HalfRange  Vec3      `json:"half_range"`
	Confidence float64   `json:"confidence"`
	Samples    int       `json:"samples"`
	Notes      []string  `json:"notes,omitempty"`
}

// MinMax accumulates per-axis extremes and the samples needed for the
// sphericity check. The zero value is not usable; use NewMinMax.
type MinMax struct {
	min, max [3]float64
	samples  [][3]float64
}

func NewMinMax() *MinMax {
	m := &MinMax{}
	m.Reset()
	return m
}

// Reset discards everything accumulated so far.
func (m *MinMax) Reset() {
	for i := range m.min {
		m.min[i] = math.Inf(1)
		m.max[i] = math.Inf(-1)
	}
	m.samples = m.samples[:0]
}

// Add records one calibrated field vector.
func (m *MinMax) Add(v [3]float64) {
	for i, x := range v {
		m.min[i] = math.Min(m.min[i], x)
		m.max[i] = math.Max(m.max[i], x)
	}
	m.samples = append(m.samples, v)
}

// Count returns the number of samples added since the last Reset.
func (m *MinMax) Count() int {
	return len(m.samples)
}

// HalfRange returns (max-min)/2 per axis, 0 for an empty accumulator.
func (m *MinMax) HalfRange() Vec3 {
	if len(m.samples) == 0 {
		return Vec3{}
	}
	return Vec3{
		X: (m.max[0] - m.min[0]) / 2,
		Y: (m.max[1] - m.min[1]) / 2,
		Z: (m.max[2] - m.min[2]) / 2,
	}
}

// Result computes offset, scale and confidence. With insufficient excitation
// on any axis it returns unit scale, the floor confidence and a note.
func (m *MinMax) Result() Result {
	res := Result{Version: 1, Samples: len(m.samples), Scale: Vec3{X: 1, Y: 1, Z: 1}}
	if len(m.samples) == 0 {
		res.Confidence = 0
		res.Notes = append(res.Notes, "no_samples")
		return res
	}
	res.Offset = Vec3{
		X: (m.max[0] + m.min[0]) / 2,
		Y: (m.max[1] + m.min[1]) / 2,
		Z: (m.max[2] + m.min[2]) / 2,
	}
	half := m.HalfRange()
	res.HalfRange = half

	if half.X < minHalfRange || half.Y < minHalfRange || half.Z < minHalfRange {
		res.Confidence = confFloor
		res.Notes = append(res.Notes, "insufficient_mag_excitation: rotate more in 3D / move away from metal")
		return res
	}

	// Normalize axes to the average radius.
	ref := (half.X + half.Y + half.Z) / 3
	res.Scale = Vec3{X: ref / half.X, Y: ref / half.Y, Z: ref / half.Z}

	coverage := coverageConfidence(half)
	sphericity := m.sphericityConfidence(res.Offset, half)
	res.Confidence = math.Max(clamp01(0.55*coverage+0.45*sphericity), confFloor)
	return res
}

// Apply corrects a field vector with r.
func (r Result) Apply(v [3]float64) [3]float64 {
	var out [3]float64
	for i := range v {
		out[i] = (v[i] - r.Offset.axis(i)) * r.Scale.axis(i)
	}
	return out
}

func coverageConfidence(half Vec3) float64 {
	m := (half.X + half.Y + half.Z) / 3
	if m <= 0 {
		return confFloor
	}
	cv := std3(half.X, half.Y, half.Z) / m
	return clamp01(1.0 - (cv / 0.7))
}

// sphericityConfidence checks that corrected norms are near-constant.
func (m *MinMax) sphericityConfidence(offset, half Vec3) float64 {
	n := len(m.samples)
	if n < 50 {
		return confFloor
	}
	norms := make([]float64, 0, n)
	for _, s := range m.samples {
		x := (s[0] - offset.X) / half.X
		y := (s[1] - offset.Y) / half.Y
		z := (s[2] - offset.Z) / half.Z
		norms = append(norms, math.Sqrt(x*x+y*y+z*z))
	}
	mean, sd := meanStd(norms)
	if mean <= 0 {
		return confFloor
	}
	return clamp01(1.0 - (sd/mean)/0.5)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func meanStd(xs []float64) (mean float64, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var s float64
	for _, v := range xs {
		d := v - mean
		s += d * d
	}
	return mean, math.Sqrt(s / float64(len(xs)))
}

func std3(a, b, c float64) float64 {
	m := (a + b + c) / 3
	return math.Sqrt(((a-m)*(a-m) + (b-m)*(b-m) + (c-m)*(c-m)) / 3)
}
