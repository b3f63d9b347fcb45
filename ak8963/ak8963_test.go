// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ak8963

import (
	"errors"
	"math"
	"os"
	"os/user"
	"strconv"
	"testing"

	"github.com/l0nax/go-spew/spew"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

var pprint = spew.ConfigState{
	Indent:                  "\t",
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// initOps is the bus traffic of New with the given ASA bytes and CNTL1 value.
func initOps(addr uint16, asa [3]byte, cntl1 byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{RegCNTL1, modePowerDown}},
		{Addr: addr, W: []byte{RegCNTL1, modeFuseROM}},
		{Addr: addr, W: []byte{RegASAX}, R: asa[:]},
		{Addr: addr, W: []byte{RegCNTL1, modePowerDown}},
		{Addr: addr, W: []byte{RegCNTL1, cntl1}},
	}
}

func newPlayback(ops ...[]i2ctest.IO) *i2ctest.Playback {
	p := &i2ctest.Playback{DontPanic: true}
	for _, o := range ops {
		p.Ops = append(p.Ops, o...)
	}
	return p
}

// failBus fails the Tx with index failAt (0-based) and succeeds otherwise.
type failBus struct {
	failAt int
	count  int
	err    error
}

func (f *failBus) String() string { return "failBus" }

func (f *failBus) Tx(addr uint16, w, r []byte) error {
	defer func() { f.count++ }()
	if f.count == f.failAt {
		return f.err
	}
	for i := range r {
		r[i] = 0x01
	}
	return nil
}

func (f *failBus) SetSpeed(physic.Frequency) error { return nil }

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNew(t *testing.T) {
	t.Run("DefaultAddrAndProtocol", func(t *testing.T) {
		bus := newPlayback(initOps(DefaultAddr, [3]byte{128, 0, 255}, 0x16))
		d, err := New(bus, &Opts{Sensitivity: Sensitivity16Bit, SampleRate: Rate100Hz})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := bus.Close(); err != nil {
			t.Fatalf("unconsumed ops: %v", err)
		}
		adj := d.FactoryAdjustment()
		if adj[0] != 1.0 || adj[1] != 0.5 || !near(adj[2], 1+127.0/256) {
			t.Errorf("unexpected factory adjustment %v", adj)
		}
		if d.Addr() != DefaultAddr {
			t.Errorf("expected addr 0x0C, got 0x%02X", d.Addr())
		}
		if d.Sensitivity() != Sensitivity16Bit {
			t.Errorf("expected 16bit, got %v", d.Sensitivity())
		}
	})

	t.Run("CustomAddr14Bit8Hz", func(t *testing.T) {
		bus := newPlayback(initOps(0x0D, [3]byte{128, 128, 128}, 0x02))
		if _, err := New(bus, &Opts{Addr: 0x0D, Sensitivity: Sensitivity14Bit, SampleRate: Rate8Hz}); err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := bus.Close(); err != nil {
			t.Fatalf("unconsumed ops: %v", err)
		}
	})

	t.Run("NilOpts", func(t *testing.T) {
		bus := newPlayback(initOps(DefaultAddr, [3]byte{128, 128, 128}, 0x16))
		if _, err := New(bus, nil); err != nil {
			t.Fatalf("New: %v", err)
		}
	})

	t.Run("InvalidOpts", func(t *testing.T) {
		bus := newPlayback()
		if _, err := New(bus, &Opts{Sensitivity: 7, SampleRate: Rate8Hz}); err == nil {
			t.Error("expected error for invalid sensitivity")
		}
		if _, err := New(bus, &Opts{Sensitivity: Sensitivity14Bit, SampleRate: 9}); err == nil {
			t.Error("expected error for invalid sample rate")
		}
	})

	t.Run("BusErrorAtEachStep", func(t *testing.T) {
		injected := errors.New("nack")
		for step := 0; step < 5; step++ {
			bus := &failBus{failAt: step, err: injected}
			d, err := New(bus, &DefaultOpts)
			if d != nil {
				t.Errorf("step %d: expected no device", step)
			}
			var be *BusError
			if !errors.As(err, &be) || !errors.Is(err, injected) {
				t.Errorf("step %d: expected BusError wrapping injected error, got %v", step, err)
			}
			if bus.count != step+1 {
				t.Errorf("step %d: expected %d transactions, got %d", step, step+1, bus.count)
			}
		}
	})
}

func newTestDev(t *testing.T, s Sensitivity, extra []i2ctest.IO) (*Dev, *i2ctest.Playback) {
	t.Helper()
	cntl1 := ControlByte(s, Rate100Hz)
	bus := newPlayback(initOps(DefaultAddr, [3]byte{128, 128, 128}, cntl1), extra)
	d, err := New(bus, &Opts{Sensitivity: s, SampleRate: Rate100Hz})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, bus
}

func TestReadSample(t *testing.T) {
	block := []byte{0x64, 0x00, 0xC8, 0x00, 0x2C, 0x01, 0x10}

	t.Run("NotReady", func(t *testing.T) {
		d, bus := newTestDev(t, Sensitivity16Bit, []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegST1}, R: []byte{0x00}},
		})
		_, ok, err := d.ReadSample()
		if !errors.Is(err, ErrNotReady) {
			t.Fatalf("expected ErrNotReady, got %v", err)
		}
		if ok {
			t.Error("expected ok=false")
		}
		var be *BusError
		if errors.As(err, &be) {
			t.Error("not ready must not be a bus error")
		}
		// No data block read: every op consumed, nothing extra.
		if err := bus.Close(); err != nil {
			t.Fatalf("unexpected bus traffic: %v", err)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		d, bus := newTestDev(t, Sensitivity16Bit, []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegST1}, R: []byte{0x01}},
			{Addr: DefaultAddr, W: []byte{RegHXL}, R: block},
		})
		s, ok, err := d.ReadSample()
		if err != nil || !ok {
			t.Fatalf("ReadSample: ok=%v err=%v", ok, err)
		}
		if s.Raw != [3]int16{100, 200, 300} {
			t.Errorf("unexpected raw %v", s.Raw)
		}
		if s.DataOverrun {
			t.Error("unexpected overrun")
		}
		if err := bus.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("Overrun", func(t *testing.T) {
		d, _ := newTestDev(t, Sensitivity16Bit, []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegST1}, R: []byte{0x03}},
			{Addr: DefaultAddr, W: []byte{RegHXL}, R: block},
		})
		s, ok, err := d.ReadSample()
		if err != nil || !ok {
			t.Fatalf("ReadSample: ok=%v err=%v", ok, err)
		}
		if !s.DataOverrun {
			t.Errorf("expected overrun, got %s", pprint.Sdump(s))
		}
	})

	t.Run("Saturated", func(t *testing.T) {
		sat := []byte{0x64, 0x00, 0xC8, 0x00, 0x2C, 0x01, 0x08}
		d, _ := newTestDev(t, Sensitivity16Bit, []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegST1}, R: []byte{0x03}},
			{Addr: DefaultAddr, W: []byte{RegHXL}, R: sat},
		})
		s, ok, err := d.ReadSample()
		if err != nil {
			t.Fatalf("saturation is not an error: %v", err)
		}
		if ok {
			t.Errorf("expected no sample, got %s", pprint.Sdump(s))
		}
	})

	t.Run("BusErrors", func(t *testing.T) {
		injected := errors.New("arbitration lost")
		for _, failAt := range []int{5, 6} {
			bus := &failBus{failAt: failAt, err: injected}
			d, err := New(bus, &DefaultOpts)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, _, err = d.ReadSample()
			if errors.Is(err, ErrNotReady) {
				t.Errorf("failAt %d: bus error reported as not ready", failAt)
			}
			if !errors.Is(err, injected) {
				t.Errorf("failAt %d: expected injected error, got %v", failAt, err)
			}
		}
	})
}

func TestParseSample(t *testing.T) {
	d, _ := newTestDev(t, Sensitivity16Bit, nil)

	t.Run("EndToEnd", func(t *testing.T) {
		s, ok, err := d.ParseSample([]byte{0x64, 0x00, 0xC8, 0x00, 0x2C, 0x01, 0x00})
		if err != nil || !ok {
			t.Fatalf("ParseSample: ok=%v err=%v", ok, err)
		}
		want := [3]float64{15.0, 30.0, 45.0}
		for i := range want {
			if math.Abs(s.Mag[i]-want[i]) > 0.05 {
				t.Errorf("axis %d: expected ≈%.1f, got %f", i, want[i], s.Mag[i])
			}
		}
	})

	t.Run("WrongLength", func(t *testing.T) {
		if _, _, err := d.ParseSample([]byte{1, 2, 3}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		data := []byte{0x01, 0x80, 0xFF, 0x7F, 0x34, 0x12, 0x10}
		a, okA, _ := d.ParseSample(data)
		b, okB, _ := d.ParseSample(data)
		if a != b || okA != okB {
			t.Errorf("results differ:\n%s\n%s", pprint.Sdump(a), pprint.Sdump(b))
		}
	})
}

func TestClose(t *testing.T) {
	d, bus := newTestDev(t, Sensitivity14Bit, []i2ctest.IO{
		{Addr: DefaultAddr, W: []byte{RegCNTL1, modePowerDown}},
	})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteRegisterSensitivity(t *testing.T) {
	block := []byte{0x64, 0x00, 0xC8, 0x00, 0x2C, 0x01, 0x00}
	readOps := []i2ctest.IO{
		{Addr: DefaultAddr, W: []byte{RegST1}, R: []byte{0x01}},
		{Addr: DefaultAddr, W: []byte{RegHXL}, R: block},
	}

	t.Run("CNTL1To14Bit", func(t *testing.T) {
		cntl1 := ControlByte(Sensitivity14Bit, Rate100Hz)
		d, bus := newTestDev(t, Sensitivity16Bit, append([]i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegCNTL1, cntl1}},
		}, readOps...))
		if err := d.WriteRegister(RegCNTL1, cntl1); err != nil {
			t.Fatal(err)
		}
		if d.Sensitivity() != Sensitivity14Bit {
			t.Fatalf("expected 14bit, got %s", d.Sensitivity())
		}
		s, ok, err := d.ReadSample()
		if err != nil || !ok {
			t.Fatalf("ReadSample: ok=%v err=%v", ok, err)
		}
		if want := 100 * 4912.0 / 8192; !near(s.Mag[0], want) {
			t.Errorf("X = %v, want %v\n%s", s.Mag[0], want, pprint.Sdump(s))
		}
		p, _, _ := d.ParseSample(block)
		if p.Mag != s.Mag {
			t.Errorf("offline decode disagrees: %v vs %v", p.Mag, s.Mag)
		}
		if err := bus.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("CNTL1To16Bit", func(t *testing.T) {
		cntl1 := ControlByte(Sensitivity16Bit, Rate8Hz)
		d, _ := newTestDev(t, Sensitivity14Bit, []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegCNTL1, cntl1}},
		})
		if err := d.WriteRegister(RegCNTL1, cntl1); err != nil {
			t.Fatal(err)
		}
		if d.Sensitivity() != Sensitivity16Bit {
			t.Errorf("expected 16bit, got %s", d.Sensitivity())
		}
	})

	t.Run("SoftReset", func(t *testing.T) {
		d, _ := newTestDev(t, Sensitivity16Bit, []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegCNTL2, 0x01}},
		})
		if err := d.WriteRegister(RegCNTL2, 0x01); err != nil {
			t.Fatal(err)
		}
		if d.Sensitivity() != Sensitivity14Bit {
			t.Errorf("expected 14bit after reset, got %s", d.Sensitivity())
		}
	})

	t.Run("OtherRegister", func(t *testing.T) {
		d, _ := newTestDev(t, Sensitivity16Bit, []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{RegASTC, 0x00}},
		})
		if err := d.WriteRegister(RegASTC, 0x00); err != nil {
			t.Fatal(err)
		}
		if d.Sensitivity() != Sensitivity16Bit {
			t.Errorf("sensitivity changed to %s", d.Sensitivity())
		}
	})

	t.Run("FailedWriteKeepsSensitivity", func(t *testing.T) {
		d, _ := newTestDev(t, Sensitivity16Bit, nil)
		if err := d.WriteRegister(RegCNTL1, modeCont2); err == nil {
			t.Fatal("expected bus error")
		}
		if d.Sensitivity() != Sensitivity16Bit {
			t.Errorf("sensitivity changed to %s", d.Sensitivity())
		}
	})
}

func TestOpenErrors(t *testing.T) {
	defer func(h func() (*driverreg.State, error), o func(string) (i2c.BusCloser, error)) {
		hostInit, i2cOpen = h, o
	}(hostInit, i2cOpen)
	injected := errors.New("no such bus")

	t.Run("HostInit", func(t *testing.T) {
		hostInit = func() (*driverreg.State, error) { return nil, injected }
		i2cOpen = func(string) (i2c.BusCloser, error) {
			t.Fatal("bus opened after host init failure")
			return nil, nil
		}
		d, err := Open(1, nil)
		var be *BusError
		if d != nil || !errors.As(err, &be) || !errors.Is(err, injected) {
			t.Fatalf("expected *BusError wrapping %v, got %v", injected, err)
		}
	})

	t.Run("OpenBus", func(t *testing.T) {
		hostInit = func() (*driverreg.State, error) { return &driverreg.State{}, nil }
		var name string
		i2cOpen = func(n string) (i2c.BusCloser, error) {
			name = n
			return nil, injected
		}
		d, err := Open(3, nil)
		var be *BusError
		if d != nil || !errors.As(err, &be) || !errors.Is(err, injected) {
			t.Fatalf("expected *BusError wrapping %v, got %v", injected, err)
		}
		if name != "3" {
			t.Errorf("opened bus %q, want \"3\"", name)
		}
	})

	t.Run("InitFailureClosesBus", func(t *testing.T) {
		hostInit = func() (*driverreg.State, error) { return &driverreg.State{}, nil }
		p := &i2ctest.Playback{DontPanic: true}
		i2cOpen = func(string) (i2c.BusCloser, error) { return p, nil }
		d, err := Open(1, nil)
		var be *BusError
		if d != nil || !errors.As(err, &be) {
			t.Fatalf("expected *BusError, got %v", err)
		}
	})
}

func TestID(t *testing.T) {
	d, _ := newTestDev(t, Sensitivity16Bit, []i2ctest.IO{
		{Addr: DefaultAddr, W: []byte{RegWIA}, R: []byte{DeviceID}},
	})
	id, err := d.ID()
	if err != nil {
		t.Fatal(err)
	}
	if id != DeviceID {
		t.Errorf("expected 0x48, got 0x%02X", id)
	}
}

func TestOpenHardware(t *testing.T) {
	usr, err := user.Current()
	if err != nil {
		t.Fatalf("os/user: %v\n", err)
	}
	if usr.Uid != "0" {
		t.Skip("need root access")
	}
	busStr := os.Getenv("AK8963_I2C_BUS")
	if busStr == "" {
		t.Skip("AK8963_I2C_BUS not set")
	}
	busID, err := strconv.Atoi(busStr)
	if err != nil {
		t.Fatalf("AK8963_I2C_BUS: %v", err)
	}
	opts := DefaultOpts
	if a := os.Getenv("AK8963_I2C_ADDR"); a != "" {
		v, err := strconv.ParseUint(a, 0, 16)
		if err != nil {
			t.Fatalf("AK8963_I2C_ADDR: %v", err)
		}
		opts.Addr = uint16(v)
	}
	d, err := Open(busID, &opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()
	if _, _, err := d.ReadSample(); err != nil && !errors.Is(err, ErrNotReady) {
		t.Fatalf("ReadSample: %v", err)
	}
}
