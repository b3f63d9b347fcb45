// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ak8963

// I2C register map for AK8963.
const (
	RegWIA   = 0x00 // device ID, reads 0x48
	RegINFO  = 0x01
	RegST1   = 0x02 // DRDY, DOR
	RegHXL   = 0x03 // HXL, HXH, HYL, HYH, HZL, HZH, ST2
	RegST2   = 0x09 // HOFL, BITM
	RegCNTL1 = 0x0A // mode + output bit width
	RegCNTL2 = 0x0B // soft reset
	RegASTC  = 0x0C // self-test control
	RegASAX  = 0x10 // ASAX, ASAY, ASAZ (fuse ROM)
)

// DeviceID is the value of WIA.
const DeviceID = 0x48

// CNTL1 values.
const (
	modePowerDown = 0x00
	modeCont1     = 0x02 // 8Hz
	modeCont2     = 0x06 // 100Hz
	modeFuseROM   = 0x0F
	bit16         = 1 << 4
)

// CNTL2 bits.
const cntl2SRST = 1 << 0

// Status bits.
const (
	st1DRDY = 1 << 0
	st1DOR  = 1 << 1
	st2HOFL = 1 << 3
)

// BlockSize is the length of the HXL..ST2 block read per sample.
const BlockSize = 7

// DefaultAddr is the default I2C address.
const DefaultAddr = 0x0C

const measRange = 4912.0 // µT
