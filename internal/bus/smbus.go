// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-daq/smbus"
	"periph.io/x/conn/v3/physic"
)

// smbusConn is the subset of *smbus.Conn used here.
type smbusConn interface {
	SetAddr(addr uint8) error
	Write(buf []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// smbusBus runs each Tx as a plain write followed by a plain read on the
// /dev/i2c-N character device.
type smbusBus struct {
	mu   sync.Mutex
	id   int
	conn smbusConn
	addr int // last address set on the fd, -1 when none
}

func openSMBus(busID int) (*smbusBus, error) {
	c, err := smbus.OpenFile(busID)
	if err != nil {
		return nil, fmt.Errorf("smbus open %d: %w", busID, err)
	}
	return newSMBus(busID, c), nil
}

func newSMBus(id int, c smbusConn) *smbusBus {
	return &smbusBus{id: id, conn: c, addr: -1}
}

func (b *smbusBus) String() string {
	return fmt.Sprintf("smbus%d", b.id)
}

func (b *smbusBus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("smbus: 10-bit address 0x%X not supported", addr)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if int(addr) != b.addr {
		if err := b.conn.SetAddr(uint8(addr)); err != nil {
			return fmt.Errorf("smbus: set addr 0x%02X: %w", addr, err)
		}
		b.addr = int(addr)
	}
	if len(w) > 0 {
		n, err := b.conn.Write(w)
		if err != nil {
			return fmt.Errorf("smbus: write: %w", err)
		}
		if n != len(w) {
			return fmt.Errorf("smbus: short write %d/%d", n, len(w))
		}
	}
	if len(r) > 0 {
		n, err := b.conn.Read(r)
		if err != nil {
			return fmt.Errorf("smbus: read: %w", err)
		}
		if n != len(r) {
			return fmt.Errorf("smbus: short read %d/%d", n, len(r))
		}
	}
	return nil
}

func (b *smbusBus) SetSpeed(physic.Frequency) error {
	return errors.New("smbus: bus speed is fixed by the kernel driver")
}

func (b *smbusBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close()
}
