// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mag

import (
	"math"
	"time"

	"github.com/relabs-tech/ak8963/ak8963"
)

// Reading is one magnetometer sample as published over MQTT.
type Reading struct {
	Source string `json:"source"` // "ak8963" or "mock"

	Mx float64 `json:"mx"` // µT
	My float64 `json:"my"`
	Mz float64 `json:"mz"`

	RawX int16 `json:"raw_x"` // register counts
	RawY int16 `json:"raw_y"`
	RawZ int16 `json:"raw_z"`

	Overrun bool    `json:"overrun"`
	Norm    float64 `json:"norm"`    // |B| in µT
	Heading float64 `json:"heading"` // degrees, 0..360, not tilt compensated
	Time    string  `json:"time"`    // RFC3339
}

// Event kinds.
const (
	EventSaturated = "saturated"
	EventBusError  = "bus_error"
)

// Event reports a poll that produced no reading for a reason other than
// data not being ready yet.
type Event struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	Time    string `json:"time"`
}

// FromSample builds a Reading from a decoded sample.
func FromSample(source string, s ak8963.Sample, t time.Time) Reading {
	return Reading{
		Source:  source,
		Mx:      s.Mag[0],
		My:      s.Mag[1],
		Mz:      s.Mag[2],
		RawX:    s.Raw[0],
		RawY:    s.Raw[1],
		RawZ:    s.Raw[2],
		Overrun: s.DataOverrun,
		Norm:    Norm(s.Mag[0], s.Mag[1], s.Mag[2]),
		Heading: Heading(s.Mag[0], s.Mag[1]),
		Time:    t.UTC().Format(time.RFC3339Nano),
	}
}

// Norm computes the magnitude of the magnetic field vector.
func Norm(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

// Heading returns the angle of the horizontal field in degrees clockwise
// from the X axis, assuming the sensor is level.
func Heading(x, y float64) float64 {
	h := math.Atan2(y, x) * 180.0 / math.Pi
	if h < 0 {
		h += 360
	}
	return h
}
