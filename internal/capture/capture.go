// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package capture stores raw AK8963 status and data blocks in a YAML file so
// they can be decoded again later without the chip.
package capture

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/ak8963/ak8963"
)

// Version is the current file format version.
const Version = 1

// Block is one ST1 + HXL..ST2 read. Data is hex encoded.
type Block struct {
	Time time.Time `yaml:"time"`
	ST1  uint8     `yaml:"st1"`
	Data string    `yaml:"data"`
}

// File is a capture: the decode parameters in effect plus the blocks.
type File struct {
	Version       int       `yaml:"version"`
	Sensitivity   int       `yaml:"sensitivity"` // output width in bits, 14 or 16
	FactoryAdjust []float64 `yaml:"factory_adjust"`
	Blocks        []Block   `yaml:"blocks"`
}

// Decoded is one replayed block.
type Decoded struct {
	Time   time.Time
	Sample ak8963.Sample
	// OK is false when the block reports saturation.
	OK bool
}

// New starts an empty capture for the given decode parameters.
func New(s ak8963.Sensitivity, adj [3]float64) *File {
	bits := 14
	if s == ak8963.Sensitivity16Bit {
		bits = 16
	}
	return &File{
		Version:       Version,
		Sensitivity:   bits,
		FactoryAdjust: adj[:],
	}
}

// Append adds one block.
func (f *File) Append(t time.Time, st1 byte, block [ak8963.BlockSize]byte) {
	f.Blocks = append(f.Blocks, Block{
		Time: t.UTC(),
		ST1:  st1,
		Data: hex.EncodeToString(block[:]),
	})
}

// Params returns the sensitivity and factory adjustment recorded in f.
func (f *File) Params() (ak8963.Sensitivity, [3]float64, error) {
	var adj [3]float64
	var s ak8963.Sensitivity
	switch f.Sensitivity {
	case 14:
		s = ak8963.Sensitivity14Bit
	case 16:
		s = ak8963.Sensitivity16Bit
	default:
		return s, adj, fmt.Errorf("capture: sensitivity must be 14 or 16, got %d", f.Sensitivity)
	}
	if len(f.FactoryAdjust) != 3 {
		return s, adj, fmt.Errorf("capture: factory_adjust needs 3 values, got %d", len(f.FactoryAdjust))
	}
	copy(adj[:], f.FactoryAdjust)
	return s, adj, nil
}

// Raw returns the decoded data bytes of b.
func (b Block) Raw() ([ak8963.BlockSize]byte, error) {
	var block [ak8963.BlockSize]byte
	data, err := hex.DecodeString(b.Data)
	if err != nil {
		return block, fmt.Errorf("capture: block data: %w", err)
	}
	if len(data) != ak8963.BlockSize {
		return block, fmt.Errorf("capture: block is %d bytes, want %d", len(data), ak8963.BlockSize)
	}
	copy(block[:], data)
	return block, nil
}

// Decode replays every block through ak8963.DecodeStatus. It has no side
// effects; calling it twice gives the same result.
func (f *File) Decode() ([]Decoded, error) {
	s, adj, err := f.Params()
	if err != nil {
		return nil, err
	}
	out := make([]Decoded, 0, len(f.Blocks))
	for i, b := range f.Blocks {
		block, err := b.Raw()
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		sample, ok := ak8963.DecodeStatus(b.ST1, block, s, adj)
		out = append(out, Decoded{Time: b.Time, Sample: sample, OK: ok})
	}
	return out, nil
}

// Encode writes f as YAML.
func (f *File) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("capture: encode: %w", err)
	}
	return enc.Close()
}

// Read parses and checks a capture.
func Read(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("capture: decode: %w", err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("capture: unsupported version %d", f.Version)
	}
	if _, _, err := f.Params(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Save writes f to path.
func (f *File) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := f.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Load reads a capture from path.
func Load(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer file.Close()
	return Read(file)
}
