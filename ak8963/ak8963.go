// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ak8963 controls an AKM AK8963 3-axis magnetometer over I²C.
//
// The device is brought from power-on to continuous measurement by New, which
// also reads the factory sensitivity adjustment from fuse ROM. ReadSample
// then polls ST1 and reads one data block per call.
//
// A Dev is not safe for concurrent use.
//
// Known limitation: DOR is taken from the ST1 value read before the data
// block, so an overrun that happens between the two transactions is reported
// on the next sample instead.
package ak8963

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// ErrNotReady is returned by ReadSample when DRDY is not set. Poll again.
var ErrNotReady = errors.New("ak8963: data not ready")

// BusError wraps a transport failure.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return "ak8963: " + e.Op + ": " + e.Err.Error()
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Opts holds initialization options.
//
// Addr: I2C address, DefaultAddr when 0.
type Opts struct {
	Addr        uint16
	Sensitivity Sensitivity
	SampleRate  SampleRate
}

// DefaultOpts is 16 bit output at 100Hz on the default address.
var DefaultOpts = Opts{
	Addr:        DefaultAddr,
	Sensitivity: Sensitivity16Bit,
	SampleRate:  Rate100Hz,
}

// Dev is a handle to an initialized AK8963.
type Dev struct {
	dev         i2c.Dev
	bus         i2c.BusCloser // non-nil when Dev owns the bus
	sensitivity Sensitivity
	adj         [3]float64
}

// Hooks for tests.
var (
	hostInit = host.Init
	i2cOpen  = i2creg.Open
)

// OpenBus initializes the periph host and opens I2C bus busID. Both
// failures are returned as *BusError.
func OpenBus(busID int) (i2c.BusCloser, error) {
	if _, err := hostInit(); err != nil {
		return nil, &BusError{Op: "host init", Err: err}
	}
	bus, err := i2cOpen(strconv.Itoa(busID))
	if err != nil {
		return nil, &BusError{Op: "open bus " + strconv.Itoa(busID), Err: err}
	}
	return bus, nil
}

// Open opens the I2C bus by number with OpenBus and initializes the device
// on it. Close releases the bus.
func Open(busID int, opts *Opts) (*Dev, error) {
	bus, err := OpenBus(busID)
	if err != nil {
		return nil, err
	}
	d, err := New(bus, opts)
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.bus = bus
	return d, nil
}

// New initializes the device on an already opened bus. The caller keeps
// ownership of bus.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if !opts.Sensitivity.valid() {
		return nil, fmt.Errorf("ak8963: invalid sensitivity %v", opts.Sensitivity)
	}
	if !opts.SampleRate.valid() {
		return nil, fmt.Errorf("ak8963: invalid sample rate %v", opts.SampleRate)
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	d := &Dev{
		dev:         i2c.Dev{Addr: addr, Bus: bus},
		sensitivity: opts.Sensitivity,
	}
	adj, err := d.readFactoryAdjust()
	if err != nil {
		return nil, err
	}
	d.adj = adj
	if err := d.writeReg(RegCNTL1, ControlByte(opts.Sensitivity, opts.SampleRate)); err != nil {
		return nil, err
	}
	time.Sleep(100 * time.Microsecond)
	return d, nil
}

// readFactoryAdjust reads ASAX..ASAZ through fuse ROM mode and leaves the
// chip powered down.
func (d *Dev) readFactoryAdjust() ([3]float64, error) {
	var adj [3]float64
	if err := d.writeReg(RegCNTL1, modePowerDown); err != nil {
		return adj, err
	}
	time.Sleep(time.Millisecond)
	if err := d.writeReg(RegCNTL1, modeFuseROM); err != nil {
		return adj, err
	}
	time.Sleep(time.Millisecond)

	var asa [3]byte
	if err := d.readRegBlock(RegASAX, asa[:]); err != nil {
		return adj, err
	}
	for i, b := range asa {
		adj[i] = FactoryAdjust(b)
	}

	if err := d.writeReg(RegCNTL1, modePowerDown); err != nil {
		return adj, err
	}
	time.Sleep(100 * time.Microsecond)
	return adj, nil
}

// ReadRaw reads ST1 and, when DRDY is set, the HXL..ST2 block. It returns
// ErrNotReady without touching the data registers when DRDY is clear.
func (d *Dev) ReadRaw() (byte, [BlockSize]byte, error) {
	var block [BlockSize]byte
	var st1 [1]byte
	if err := d.readRegBlock(RegST1, st1[:]); err != nil {
		return 0, block, err
	}
	if st1[0]&st1DRDY == 0 {
		return st1[0], block, ErrNotReady
	}
	if err := d.readRegBlock(RegHXL, block[:]); err != nil {
		return st1[0], block, err
	}
	return st1[0], block, nil
}

// ReadSample reads one sample.
//
// The outcomes are distinct: ErrNotReady when no new data is available, a
// *BusError on transport failure, and ok == false with a nil error when the
// chip reports magnetic field saturation.
func (d *Dev) ReadSample() (Sample, bool, error) {
	st1, block, err := d.ReadRaw()
	if err != nil {
		return Sample{}, false, err
	}
	s, ok := DecodeStatus(st1, block, d.sensitivity, d.adj)
	return s, ok, nil
}

// ParseSample decodes a previously captured HXL..ST2 block with the current
// sensitivity and factory adjustment. It does no I/O.
func (d *Dev) ParseSample(data []byte) (Sample, bool, error) {
	if len(data) != BlockSize {
		return Sample{}, false, fmt.Errorf("ak8963: sample block is %d bytes, want %d", len(data), BlockSize)
	}
	var block [BlockSize]byte
	copy(block[:], data)
	s, ok := Decode(block, d.sensitivity, d.adj)
	return s, ok, nil
}

// ID returns WIA, expected DeviceID.
func (d *Dev) ID() (byte, error) {
	var b [1]byte
	if err := d.readRegBlock(RegWIA, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadRegisters reads len(buf) consecutive registers starting at reg.
func (d *Dev) ReadRegisters(reg byte, buf []byte) error {
	return d.readRegBlock(reg, buf)
}

// WriteRegister writes a single register. Writes to CNTL1 update the
// sensitivity used for decoding from BIT; a soft reset through CNTL2 sets
// it back to the power-on 14 bit output.
func (d *Dev) WriteRegister(reg, v byte) error {
	if err := d.writeReg(reg, v); err != nil {
		return err
	}
	switch {
	case reg == RegCNTL1 && v&bit16 != 0:
		d.sensitivity = Sensitivity16Bit
	case reg == RegCNTL1:
		d.sensitivity = Sensitivity14Bit
	case reg == RegCNTL2 && v&cntl2SRST != 0:
		d.sensitivity = Sensitivity14Bit
	}
	return nil
}

// Sensitivity returns the output width set at initialization.
func (d *Dev) Sensitivity() Sensitivity {
	return d.sensitivity
}

// FactoryAdjustment returns the per-axis multipliers read from fuse ROM.
func (d *Dev) FactoryAdjustment() [3]float64 {
	return d.adj
}

// Addr returns the I2C address in use.
func (d *Dev) Addr() uint16 {
	return d.dev.Addr
}

func (d *Dev) String() string {
	return fmt.Sprintf("AK8963{%s, addr=0x%02X, %s}", d.dev.Bus, d.dev.Addr, d.sensitivity)
}

// Halt powers the chip down.
func (d *Dev) Halt() error {
	return d.writeReg(RegCNTL1, modePowerDown)
}

// Close powers the chip down and closes the bus when it was opened by Open.
func (d *Dev) Close() error {
	err := d.Halt()
	if d.bus != nil {
		err = multierr.Append(err, d.bus.Close())
		d.bus = nil
	}
	return err
}

func (d *Dev) writeReg(reg, v byte) error {
	if err := d.dev.Tx([]byte{reg, v}, nil); err != nil {
		return &BusError{Op: fmt.Sprintf("write 0x%02X", reg), Err: err}
	}
	return nil
}

func (d *Dev) readRegBlock(reg byte, out []byte) error {
	if len(out) == 0 {
		return errors.New("ak8963: readRegBlock: empty buffer")
	}
	if err := d.dev.Tx([]byte{reg}, out); err != nil {
		return &BusError{Op: fmt.Sprintf("read 0x%02X", reg), Err: err}
	}
	return nil
}
