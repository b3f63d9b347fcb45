// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/ak8963/ak8963"
)

// MockSource simulates a level board spinning slowly in the earth's field.
type MockSource struct {
	start time.Time
	now   func() time.Time

	// Horizontal and Vertical are the earth field components in µT.
	Horizontal float64
	Vertical   float64
	// DegPerSec is the spin rate.
	DegPerSec float64
}

// NewMockSource creates a mock source with typical mid-latitude values.
func NewMockSource() *MockSource {
	return &MockSource{
		start:      time.Now(),
		now:        time.Now,
		Horizontal: 20,
		Vertical:   -44,
		DegPerSec:  30,
	}
}

// Pose returns the simulated orientation at the current time.
func (m *MockSource) Pose() Pose {
	elapsed := m.now().Sub(m.start).Seconds()
	return Pose{Yaw: math.Mod(elapsed*m.DegPerSec, 360)}
}

// NextBlock returns ST1 with DRDY set and the block for the current pose.
func (m *MockSource) NextBlock(s ak8963.Sensitivity) (byte, [ak8963.BlockSize]byte) {
	f := FieldAtYaw(m.Pose().Yaw, m.Horizontal, m.Vertical)
	return 0x01, EncodeBlock(f, s, false)
}
