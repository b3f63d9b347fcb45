// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ak8963

import (
	"encoding/binary"
	"fmt"
)

// Sensitivity selects the output bit width.
type Sensitivity uint8

const (
	// Sensitivity14Bit is 0.6 µT/LSB.
	Sensitivity14Bit Sensitivity = iota
	// Sensitivity16Bit is 0.15 µT/LSB.
	Sensitivity16Bit
)

// Scalar returns the µT per LSB for s.
func (s Sensitivity) Scalar() float64 {
	switch s {
	case Sensitivity16Bit:
		return measRange / 32768.0
	default:
		return measRange / 8192.0
	}
}

func (s Sensitivity) valid() bool {
	return s == Sensitivity14Bit || s == Sensitivity16Bit
}

func (s Sensitivity) String() string {
	switch s {
	case Sensitivity14Bit:
		return "14bit"
	case Sensitivity16Bit:
		return "16bit"
	default:
		return fmt.Sprintf("Sensitivity(%d)", uint8(s))
	}
}

// SampleRate selects one of the two continuous measurement modes.
type SampleRate uint8

const (
	// Rate8Hz is continuous measurement mode 1.
	Rate8Hz SampleRate = iota
	// Rate100Hz is continuous measurement mode 2.
	Rate100Hz
)

// Code returns the CNTL1 mode bits for r.
func (r SampleRate) Code() byte {
	if r == Rate100Hz {
		return modeCont2
	}
	return modeCont1
}

func (r SampleRate) valid() bool {
	return r == Rate8Hz || r == Rate100Hz
}

func (r SampleRate) String() string {
	switch r {
	case Rate8Hz:
		return "8Hz"
	case Rate100Hz:
		return "100Hz"
	default:
		return fmt.Sprintf("SampleRate(%d)", uint8(r))
	}
}

// ControlByte returns the CNTL1 value that starts continuous measurement
// with the given output width and rate.
func ControlByte(s Sensitivity, r SampleRate) byte {
	b := r.Code()
	if s == Sensitivity16Bit {
		b |= bit16
	}
	return b
}

// FactoryAdjust converts one ASA fuse ROM byte to its axis multiplier.
func FactoryAdjust(b byte) float64 {
	return (float64(b)-128)/256 + 1
}

// Sample is one calibrated measurement.
type Sample struct {
	// Mag is in µT.
	Mag [3]float64
	// Raw holds the register values for X, Y, Z.
	Raw [3]int16
	// DataOverrun is set when a previous sample was overwritten without
	// being read.
	DataOverrun bool
}

// Decode turns a HXL..ST2 block into a Sample. ok is false when ST2 reports
// magnetic sensor overflow; the field is then out of range and no values are
// parsed. DataOverrun is always false in the result.
func Decode(block [BlockSize]byte, s Sensitivity, adj [3]float64) (Sample, bool) {
	if block[6]&st2HOFL != 0 {
		return Sample{}, false
	}
	var out Sample
	scalar := s.Scalar()
	for i := 0; i < 3; i++ {
		out.Raw[i] = int16(binary.LittleEndian.Uint16(block[2*i:]))
		out.Mag[i] = scalar * adj[i] * float64(out.Raw[i])
	}
	return out, true
}

// DecodeStatus is Decode plus the DOR flag from an ST1 value read before the
// block.
func DecodeStatus(st1 byte, block [BlockSize]byte, s Sensitivity, adj [3]float64) (Sample, bool) {
	out, ok := Decode(block, s, adj)
	if ok && st1&st1DOR != 0 {
		out.DataOverrun = true
	}
	return out, ok
}
