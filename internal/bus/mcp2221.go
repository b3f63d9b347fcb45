// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bus

import (
	"fmt"
	"sync"

	mcp "github.com/ardnew/mcp2221a"
	"periph.io/x/conn/v3/physic"
)

// mcpBridge is the subset of *mcp.MCP2221A used here.
type mcpBridge interface {
	I2CWrite(stop bool, addr uint8, out []byte, cnt uint16) error
	I2CRead(rep bool, addr uint8, cnt uint16) ([]byte, error)
	I2CSetConfig(baud uint32) error
	Close() error
}

type mcp2221Bus struct {
	mu  sync.Mutex
	idx byte
	dev mcpBridge
}

func openMCP2221(idx byte, baud uint32) (*mcp2221Bus, error) {
	m, err := mcp.New(idx, mcp.VID, mcp.PID)
	if err != nil {
		return nil, fmt.Errorf("mcp2221 open #%d: %w", idx, err)
	}
	if baud == 0 {
		baud = mcp.I2CBaudRate
	}
	if err := m.I2CSetConfig(baud); err != nil {
		m.Close()
		return nil, fmt.Errorf("mcp2221 set baud %d: %w", baud, err)
	}
	return &mcp2221Bus{idx: idx, dev: m}, nil
}

func (b *mcp2221Bus) String() string {
	return fmt.Sprintf("mcp2221#%d", b.idx)
}

// Tx writes w without STOP when a read follows, then reads r with a
// repeated START.
func (b *mcp2221Bus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("mcp2221: 10-bit address 0x%X not supported", addr)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(w) > 0 {
		if err := b.dev.I2CWrite(len(r) == 0, uint8(addr), w, uint16(len(w))); err != nil {
			return fmt.Errorf("mcp2221: write: %w", err)
		}
	}
	if len(r) > 0 {
		data, err := b.dev.I2CRead(len(w) > 0, uint8(addr), uint16(len(r)))
		if err != nil {
			return fmt.Errorf("mcp2221: read: %w", err)
		}
		if len(data) != len(r) {
			return fmt.Errorf("mcp2221: short read %d/%d", len(data), len(r))
		}
		copy(r, data)
	}
	return nil
}

func (b *mcp2221Bus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.I2CSetConfig(uint32(f / physic.Hertz))
}

func (b *mcp2221Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.Close()
}
