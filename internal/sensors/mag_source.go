// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"github.com/relabs-tech/ak8963/ak8963"
	"github.com/relabs-tech/ak8963/internal/orientation"
)

// magSource provides raw ST1 + data blocks and the parameters needed to
// decode them. *ak8963.Dev satisfies it.
type magSource interface {
	ReadRaw() (byte, [ak8963.BlockSize]byte, error)
	Sensitivity() ak8963.Sensitivity
	FactoryAdjustment() [3]float64
}

var _ magSource = (*ak8963.Dev)(nil)

// mockSource feeds blocks from a simulated spinning board.
type mockSource struct {
	src         orientation.BlockSource
	sensitivity ak8963.Sensitivity
}

func newMockSource(s ak8963.Sensitivity) *mockSource {
	return &mockSource{src: orientation.NewMockSource(), sensitivity: s}
}

func (m *mockSource) ReadRaw() (byte, [ak8963.BlockSize]byte, error) {
	st1, block := m.src.NextBlock(m.sensitivity)
	return st1, block, nil
}

func (m *mockSource) Sensitivity() ak8963.Sensitivity {
	return m.sensitivity
}

func (m *mockSource) FactoryAdjustment() [3]float64 {
	return [3]float64{1, 1, 1}
}
