// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"math"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/ak8963/ak8963"
	"github.com/relabs-tech/ak8963/internal/bus"
	"github.com/relabs-tech/ak8963/internal/config"
)

const addr = ak8963.DefaultAddr

// startupOps is New with unit factory adjustment at 16 bit / 100Hz, then
// the WIA check done by Init.
func startupOps() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{ak8963.RegCNTL1, 0x00}},
		{Addr: addr, W: []byte{ak8963.RegCNTL1, 0x0F}},
		{Addr: addr, W: []byte{ak8963.RegASAX}, R: []byte{128, 128, 128}},
		{Addr: addr, W: []byte{ak8963.RegCNTL1, 0x00}},
		{Addr: addr, W: []byte{ak8963.RegCNTL1, 0x16}},
		{Addr: addr, W: []byte{ak8963.RegWIA}, R: []byte{ak8963.DeviceID}},
	}
}

var haltOp = i2ctest.IO{Addr: addr, W: []byte{ak8963.RegCNTL1, 0x00}}

func newTestManager(t *testing.T, ops ...i2ctest.IO) (*MagManager, *i2ctest.Playback) {
	t.Helper()
	p := &i2ctest.Playback{Ops: append(startupOps(), ops...), DontPanic: true}
	cfg := config.Default()
	cfg.AK8963Bus = 1
	m := NewMagManager(cfg)
	m.openBus = func(driver string, busID int, opts bus.Opts) (i2c.BusCloser, error) {
		if driver != "periph" || busID != 1 {
			t.Errorf("unexpected bus %s/%d", driver, busID)
		}
		return p, nil
	}
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, p
}

func TestMagManagerRead(t *testing.T) {
	t.Run("Reading", func(t *testing.T) {
		m, p := newTestManager(t,
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegST1}, R: []byte{0x03}},
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegHXL}, R: []byte{0x64, 0x00, 0xC8, 0x00, 0x2C, 0x01, 0x10}},
			haltOp,
		)
		r, err := m.ReadReading()
		if err != nil {
			t.Fatal(err)
		}
		if r.Source != SourceAK8963 || !r.Overrun || r.RawY != 200 {
			t.Errorf("unexpected reading %+v", r)
		}
		if math.Abs(r.Mx-15.0) > 0.05 || math.Abs(r.Mz-45.0) > 0.05 {
			t.Errorf("unexpected field %+v", r)
		}
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		if p.Count != len(p.Ops) {
			t.Errorf("consumed %d of %d ops", p.Count, len(p.Ops))
		}
	})

	t.Run("NotReady", func(t *testing.T) {
		m, _ := newTestManager(t,
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegST1}, R: []byte{0x00}},
			haltOp,
		)
		if _, err := m.ReadReading(); !errors.Is(err, ak8963.ErrNotReady) {
			t.Errorf("expected ErrNotReady, got %v", err)
		}
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	t.Run("Saturated", func(t *testing.T) {
		block := []byte{1, 2, 3, 4, 5, 6, 0x18}
		m, _ := newTestManager(t,
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegST1}, R: []byte{0x01}},
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegHXL}, R: block},
		)
		f, err := m.Read()
		if !errors.Is(err, ErrSaturated) {
			t.Fatalf("expected ErrSaturated, got %v", err)
		}
		if f.ST1 != 0x01 || f.Block[6] != 0x18 {
			t.Errorf("raw bytes not kept: %+v", f)
		}
	})

	t.Run("BusError", func(t *testing.T) {
		// No ops left after startup: the ST1 read fails.
		m, _ := newTestManager(t)
		_, err := m.ReadReading()
		var be *ak8963.BusError
		if !errors.As(err, &be) {
			t.Errorf("expected *ak8963.BusError, got %v", err)
		}
	})
}

func TestMagManagerRegisters(t *testing.T) {
	t.Run("WriteChecks", func(t *testing.T) {
		m, _ := newTestManager(t,
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegCNTL2, 0x01}},
		)
		if err := m.WriteRegister(ak8963.RegST1, 0x00); err == nil {
			t.Error("expected read-only error")
		}
		if err := m.WriteRegister(0x40, 0x00); err == nil {
			t.Error("expected unknown register error")
		}
		if err := m.WriteRegister(ak8963.RegCNTL2, 0x01); err != nil {
			t.Errorf("WriteRegister: %v", err)
		}
	})

	t.Run("CNTL1ChangesDecodeScale", func(t *testing.T) {
		cntl1 := ak8963.ControlByte(ak8963.Sensitivity14Bit, ak8963.Rate100Hz)
		m, _ := newTestManager(t,
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegCNTL1, cntl1}},
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegST1}, R: []byte{0x01}},
			i2ctest.IO{Addr: addr, W: []byte{ak8963.RegHXL}, R: []byte{0x64, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		)
		if err := m.WriteRegister(ak8963.RegCNTL1, cntl1); err != nil {
			t.Fatal(err)
		}
		sens, _, err := m.DecodeParams()
		if err != nil || sens != ak8963.Sensitivity14Bit {
			t.Fatalf("DecodeParams: %s %v", sens, err)
		}
		r, err := m.ReadReading()
		if err != nil {
			t.Fatal(err)
		}
		if want := 100 * 4912.0 / 8192; math.Abs(r.Mx-want) > 1e-9 {
			t.Errorf("Mx = %v, want %v", r.Mx, want)
		}
	})

	t.Run("ReadAllSkipsFuseROM", func(t *testing.T) {
		var ops []i2ctest.IO
		for _, r := range AK8963RegisterMap() {
			if r.FuseROMOnly {
				continue
			}
			ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{r.Reg}, R: []byte{r.Reg + 0x40}})
		}
		m, p := newTestManager(t, ops...)
		regs, err := m.ReadAllRegisters()
		if err != nil {
			t.Fatal(err)
		}
		if len(regs) != len(ops) {
			t.Errorf("expected %d registers, got %d", len(ops), len(regs))
		}
		if regs[ak8963.RegCNTL1] != ak8963.RegCNTL1+0x40 {
			t.Errorf("unexpected CNTL1 0x%02X", regs[ak8963.RegCNTL1])
		}
		if p.Count != len(p.Ops) {
			t.Errorf("consumed %d of %d ops", p.Count, len(p.Ops))
		}
	})
}

func TestMagManagerMock(t *testing.T) {
	cfg := config.Default()
	cfg.MagMock = true
	m := NewMagManager(cfg)
	m.openBus = func(string, int, bus.Opts) (i2c.BusCloser, error) {
		t.Fatal("mock mode must not open a bus")
		return nil, nil
	}
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	r, err := m.ReadReading()
	if err != nil {
		t.Fatal(err)
	}
	if r.Source != SourceMock {
		t.Errorf("unexpected source %q", r.Source)
	}
	if r.Norm < 40 || r.Norm > 55 {
		t.Errorf("unexpected |B| %v", r.Norm)
	}
	if _, err := m.ReadRegister(ak8963.RegWIA); !errors.Is(err, ErrMock) {
		t.Errorf("expected ErrMock, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestRegisterMap(t *testing.T) {
	seen := map[byte]bool{}
	for _, r := range AK8963RegisterMap() {
		if seen[r.Reg] {
			t.Errorf("duplicate register 0x%02X", r.Reg)
		}
		seen[r.Reg] = true
	}
	for _, want := range []byte{ak8963.RegWIA, ak8963.RegST1, ak8963.RegST2, ak8963.RegCNTL1, ak8963.RegASAX + 2} {
		if !seen[want] {
			t.Errorf("register 0x%02X missing", want)
		}
	}
	if info, _ := LookupRegister(ak8963.RegCNTL1); !info.Writable() || info.Address != "0x0A" {
		t.Errorf("unexpected CNTL1 info %+v", info)
	}
	if info, _ := LookupRegister(ak8963.RegHXL); info.Writable() || info.Name != "HXL" {
		t.Errorf("unexpected HXL info %+v", info)
	}
}
