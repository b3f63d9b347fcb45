// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/ak8963/ak8963"
)

// BitField describes a bit range inside a register.
type BitField struct {
	Bits        string `json:"bits"` // "7:0", "4", ...
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is the debug metadata for one register.
type RegisterInfo struct {
	Reg         byte       `json:"-"`
	Address     string     `json:"address"` // "0x0A"
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	FuseROMOnly bool       `json:"fuse_rom_only,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Writable reports whether the register accepts writes.
func (r RegisterInfo) Writable() bool {
	return strings.Contains(r.Access, "W")
}

func reg(addr byte, name, access, def, desc string, fields ...BitField) RegisterInfo {
	return RegisterInfo{
		Reg:         addr,
		Address:     fmt.Sprintf("0x%02X", addr),
		Name:        name,
		Description: desc,
		Access:      access,
		Default:     def,
		BitFields:   fields,
	}
}

func dataReg(addr byte, axis string, high bool) RegisterInfo {
	name, bits, desc := "H"+axis+"L", "7:0", " low byte"
	if high {
		name, bits, desc = "H"+axis+"H", "15:8", " high byte"
	}
	return reg(addr, name, "R", "0x00", axis+"-axis measurement"+desc,
		BitField{Bits: "7:0", Name: "H" + axis + "[" + bits + "]", Description: "two's complement, little endian"})
}

func asaReg(addr byte, axis string) RegisterInfo {
	r := reg(addr, "ASA"+axis, "R", "", axis+"-axis sensitivity adjustment (fuse ROM)",
		BitField{Bits: "7:0", Name: "ASA" + axis, Description: "factory trim", Values: "adj = (ASA-128)/256 + 1"})
	r.FuseROMOnly = true
	return r
}

var ak8963Registers = []RegisterInfo{
	reg(ak8963.RegWIA, "WIA", "R", "0x48", "Device ID",
		BitField{Bits: "7:0", Name: "WIA", Description: "Device ID", Values: "0x48"}),
	reg(ak8963.RegINFO, "INFO", "R", "", "Device information",
		BitField{Bits: "7:0", Name: "INFO", Description: "AKM internal use"}),
	reg(ak8963.RegST1, "ST1", "R", "0x00", "Status 1",
		BitField{Bits: "0", Name: "DRDY", Description: "Data ready", Values: "1=new sample in HXL..HZH"},
		BitField{Bits: "1", Name: "DOR", Description: "Data overrun", Values: "1=a sample was skipped"}),
	dataReg(ak8963.RegHXL, "X", false),
	dataReg(ak8963.RegHXL+1, "X", true),
	dataReg(ak8963.RegHXL+2, "Y", false),
	dataReg(ak8963.RegHXL+3, "Y", true),
	dataReg(ak8963.RegHXL+4, "Z", false),
	dataReg(ak8963.RegHXL+5, "Z", true),
	reg(ak8963.RegST2, "ST2", "R", "0x00", "Status 2, reading it ends the data read cycle",
		BitField{Bits: "3", Name: "HOFL", Description: "Magnetic sensor overflow", Values: "1=|X|+|Y|+|Z| > 4912µT"},
		BitField{Bits: "4", Name: "BITM", Description: "Output bit width mirror", Values: "0=14-bit, 1=16-bit"}),
	reg(ak8963.RegCNTL1, "CNTL1", "RW", "0x00", "Control 1: mode and output width",
		BitField{Bits: "3:0", Name: "MODE", Description: "Operation mode",
			Values: "0x0=power-down, 0x1=single, 0x2=continuous 8Hz, 0x6=continuous 100Hz, 0x4=ext trigger, 0x8=self-test, 0xF=fuse ROM"},
		BitField{Bits: "4", Name: "BIT", Description: "Output width", Values: "0=14-bit, 1=16-bit"}),
	reg(ak8963.RegCNTL2, "CNTL2", "RW", "0x00", "Control 2: soft reset",
		BitField{Bits: "0", Name: "SRST", Description: "Soft reset", Values: "1=reset, self-clearing"}),
	reg(ak8963.RegASTC, "ASTC", "RW", "0x00", "Self-test control",
		BitField{Bits: "6", Name: "SELF", Description: "Self-test field", Values: "1=generate field"}),
	asaReg(ak8963.RegASAX, "X"),
	asaReg(ak8963.RegASAX+1, "Y"),
	asaReg(ak8963.RegASAX+2, "Z"),
}

// AK8963RegisterMap returns metadata for all AK8963 registers.
func AK8963RegisterMap() []RegisterInfo {
	out := make([]RegisterInfo, len(ak8963Registers))
	copy(out, ak8963Registers)
	return out
}

// LookupRegister returns the metadata for addr.
func LookupRegister(addr byte) (RegisterInfo, bool) {
	for _, r := range ak8963Registers {
		if r.Reg == addr {
			return r, true
		}
	}
	return RegisterInfo{}, false
}
