// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/ak8963/ak8963"
	"github.com/relabs-tech/ak8963/internal/bus"
	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/mag"
)

// ErrSaturated is returned by ReadReading when the chip reports magnetic
// sensor overflow.
var ErrSaturated = errors.New("magnetometer saturated")

// ErrMock is returned by register access while running on the mock source.
var ErrMock = errors.New("register access not available in mock mode")

// Source names used in readings.
const (
	SourceAK8963 = "ak8963"
	SourceMock   = "mock"
)

// Frame is one poll: the raw bytes and, unless saturated, the reading.
type Frame struct {
	ST1     byte
	Block   [ak8963.BlockSize]byte
	Reading mag.Reading
}

// MagManager owns the AK8963 and serializes every access to it.
type MagManager struct {
	mu      sync.Mutex
	cfg     *config.Config
	openBus func(driver string, busID int, opts bus.Opts) (i2c.BusCloser, error)
	now     func() time.Time

	bus    i2c.BusCloser
	dev    *ak8963.Dev
	src    magSource
	source string
}

var (
	magManager     *MagManager
	magManagerOnce sync.Once
)

// GetMagManager returns the process wide manager built from config.Get().
func GetMagManager() *MagManager {
	magManagerOnce.Do(func() {
		magManager = NewMagManager(config.Get())
	})
	return magManager
}

// NewMagManager creates a manager. Init must be called before use.
func NewMagManager(cfg *config.Config) *MagManager {
	return &MagManager{
		cfg:     cfg,
		openBus: bus.Open,
		now:     time.Now,
	}
}

// Init opens the bus and brings the chip to continuous measurement, or
// starts the mock source when MAG_MOCK is set. Calling Init on an
// initialized manager is a no-op.
func (m *MagManager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src != nil {
		return nil
	}
	return m.initLocked()
}

func (m *MagManager) initLocked() error {
	cfg := m.cfg
	if cfg.MagMock {
		m.src = newMockSource(cfg.AK8963Sensitivity)
		m.source = SourceMock
		log.Printf("AK8963: using mock field source (%s)", cfg.AK8963Sensitivity)
		return nil
	}

	b, err := m.openBus(cfg.BusDriver, cfg.AK8963Bus, bus.Opts{
		MCP2221Index: cfg.MCP2221Index,
		MCP2221Baud:  cfg.MCP2221Baud,
	})
	if err != nil {
		return fmt.Errorf("AK8963: open bus: %w", err)
	}

	opts := cfg.AK8963Opts()
	dev, err := ak8963.New(b, &opts)
	if err != nil {
		return multierr.Append(fmt.Errorf("AK8963: init: %w", err), b.Close())
	}

	if id, err := dev.ID(); err != nil {
		log.Printf("AK8963: WARNING: failed to read WIA: %v", err)
	} else if id != ak8963.DeviceID {
		log.Printf("AK8963: WARNING: WIA = 0x%02X, expected 0x%02X", id, ak8963.DeviceID)
	}

	adj := dev.FactoryAdjustment()
	log.Printf("AK8963: %s @ %s", dev, opts.SampleRate)
	log.Printf("AK8963: sensitivity adj: X=%.4f Y=%.4f Z=%.4f", adj[0], adj[1], adj[2])

	m.bus = b
	m.dev = dev
	m.src = dev
	m.source = SourceAK8963
	return nil
}

// Source returns "ak8963" or "mock".
func (m *MagManager) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// DecodeParams returns the sensitivity and factory adjustment in use.
func (m *MagManager) DecodeParams() (ak8963.Sensitivity, [3]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src == nil {
		return 0, [3]float64{}, errors.New("AK8963 not initialized")
	}
	return m.src.Sensitivity(), m.src.FactoryAdjustment(), nil
}

// Read polls the chip once. It returns ak8963.ErrNotReady when there is no
// new sample, ErrSaturated with the raw bytes filled in when the field is
// out of range, and an *ak8963.BusError on transport failure.
func (m *MagManager) Read() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src == nil {
		return Frame{}, errors.New("AK8963 not initialized")
	}

	st1, block, err := m.src.ReadRaw()
	if err != nil {
		return Frame{}, err
	}
	f := Frame{ST1: st1, Block: block}
	s, ok := ak8963.DecodeStatus(st1, block, m.src.Sensitivity(), m.src.FactoryAdjustment())
	if !ok {
		return f, ErrSaturated
	}
	f.Reading = mag.FromSample(m.source, s, m.now())
	return f, nil
}

// ReadReading polls the chip once and returns only the reading.
func (m *MagManager) ReadReading() (mag.Reading, error) {
	f, err := m.Read()
	if err != nil {
		return mag.Reading{}, err
	}
	return f.Reading, nil
}

func (m *MagManager) device() (*ak8963.Dev, error) {
	if m.dev == nil {
		if m.source == SourceMock {
			return nil, ErrMock
		}
		return nil, errors.New("AK8963 not initialized")
	}
	return m.dev, nil
}

// ReadRegister reads a single register.
func (m *MagManager) ReadRegister(addr byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, err := m.device()
	if err != nil {
		return 0, err
	}
	var b [1]byte
	if err := dev.ReadRegisters(addr, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadAllRegisters reads every register in the map that is readable in the
// current mode. Fuse ROM registers are skipped. Reading ST2 ends the current
// data read cycle.
func (m *MagManager) ReadAllRegisters() (map[byte]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, err := m.device()
	if err != nil {
		return nil, err
	}
	out := make(map[byte]byte)
	var errs error
	for _, r := range ak8963Registers {
		if r.FuseROMOnly {
			continue
		}
		var b [1]byte
		if err := dev.ReadRegisters(r.Reg, b[:]); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out[r.Reg] = b[0]
	}
	return out, errs
}

// WriteRegister writes v to addr. Only registers marked writable in the
// register map are accepted.
func (m *MagManager) WriteRegister(addr, v byte) error {
	info, ok := LookupRegister(addr)
	if !ok {
		return fmt.Errorf("unknown register 0x%02X", addr)
	}
	if !info.Writable() {
		return fmt.Errorf("register 0x%02X (%s) is read-only", addr, info.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, err := m.device()
	if err != nil {
		return err
	}
	return dev.WriteRegister(addr, v)
}

// Reinitialize releases the chip and runs Init again.
func (m *MagManager) Reinitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.closeLocked(); err != nil {
		log.Printf("AK8963: close before reinit: %v", err)
	}
	return m.initLocked()
}

// RegisterMap returns the AK8963 register metadata.
func (m *MagManager) RegisterMap() []RegisterInfo {
	return AK8963RegisterMap()
}

// Close powers the chip down and closes the bus.
func (m *MagManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *MagManager) closeLocked() error {
	var err error
	if m.dev != nil {
		err = multierr.Append(err, m.dev.Halt())
	}
	if m.bus != nil {
		err = multierr.Append(err, m.bus.Close())
	}
	m.dev, m.bus, m.src = nil, nil, nil
	return err
}
