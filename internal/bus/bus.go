// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bus opens an I²C bus through one of the supported transports and
// returns it as a periph i2c.BusCloser.
//
//   - periph:  Linux sysfs via periph.io host drivers (ak8963.OpenBus).
//   - smbus:   /dev/i2c-N directly via go-daq/smbus.
//   - mcp2221: Microchip MCP2221A USB-to-I²C bridge.
package bus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/ak8963/ak8963"
)

// Driver names accepted by Open.
const (
	DriverPeriph  = "periph"
	DriverSMBus   = "smbus"
	DriverMCP2221 = "mcp2221"
)

// Opts holds transport specific options.
type Opts struct {
	// MCP2221Index selects among attached MCP2221A bridges.
	MCP2221Index byte
	// MCP2221Baud is the I²C clock in Hz.
	MCP2221Baud uint32
}

// Open opens bus number busID with the named driver. busID is ignored by
// the mcp2221 driver.
func Open(driver string, busID int, opts Opts) (i2c.BusCloser, error) {
	switch driver {
	case DriverPeriph, "":
		return ak8963.OpenBus(busID)
	case DriverSMBus:
		return openSMBus(busID)
	case DriverMCP2221:
		return openMCP2221(opts.MCP2221Index, opts.MCP2221Baud)
	default:
		return nil, fmt.Errorf("unknown bus driver %q", driver)
	}
}
