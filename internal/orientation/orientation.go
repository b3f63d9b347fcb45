// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/relabs-tech/ak8963/ak8963"
)

// Pose is the orientation of the sensor board. Only yaw is driven by the
// magnetometer; roll and pitch stay 0 for a level board.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// BlockSource is anything that can provide raw AK8963 ST1 + data blocks.
type BlockSource interface {
	NextBlock(s ak8963.Sensitivity) (byte, [ak8963.BlockSize]byte)
}

// FieldAtYaw returns the body-frame field of a level board rotated by yaw
// degrees in an earth field with the given horizontal and vertical
// components (µT).
func FieldAtYaw(yaw, horizontal, vertical float64) [3]float64 {
	rad := yaw * math.Pi / 180.0
	return [3]float64{
		horizontal * math.Cos(rad),
		horizontal * math.Sin(rad),
		vertical,
	}
}

// EncodeBlock converts a field in µT back into an HXL..ST2 block as the
// chip would report it with unit factory adjustment. Counts are clamped to
// the int16 range; overflow sets HOFL.
func EncodeBlock(field [3]float64, s ak8963.Sensitivity, overflow bool) [ak8963.BlockSize]byte {
	var block [ak8963.BlockSize]byte
	scalar := s.Scalar()
	for i, v := range field {
		c := math.Round(v / scalar)
		c = math.Max(math.MinInt16, math.Min(math.MaxInt16, c))
		u := uint16(int16(c))
		block[2*i] = byte(u)
		block[2*i+1] = byte(u >> 8)
	}
	if s == ak8963.Sensitivity16Bit {
		block[6] |= 1 << 4 // BITM
	}
	if overflow {
		block[6] |= 1 << 3 // HOFL
	}
	return block
}
