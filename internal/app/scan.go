// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"github.com/relabs-tech/ak8963/ak8963"
	"github.com/relabs-tech/ak8963/internal/bus"
	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/mag"
)

// sampleReader is the part of *ak8963.Dev the scan loop uses.
type sampleReader interface {
	ReadSample() (ak8963.Sample, bool, error)
}

// scanOnce reads one sample and writes its outcome. Only bus errors are
// returned.
func scanOnce(dev sampleReader, w io.Writer, t time.Time) error {
	s, ok, err := dev.ReadSample()
	switch {
	case errors.Is(err, ak8963.ErrNotReady):
		fmt.Fprintln(w, "not ready")
		return nil
	case err != nil:
		fmt.Fprintf(w, "bus error: %v\n", err)
		return err
	case !ok:
		fmt.Fprintln(w, "saturated")
		return nil
	}
	fmt.Fprintln(w, describeReading(mag.FromSample("ak8963", s, t)))
	return nil
}

// RunScan opens the AK8963 selected by config and prints every sample
// outcome until stop is closed.
func RunScan(w io.Writer, stop <-chan struct{}) (err error) {
	cfg := config.Get()
	b, err := bus.Open(cfg.BusDriver, cfg.AK8963Bus, bus.Opts{
		MCP2221Index: cfg.MCP2221Index,
		MCP2221Baud:  cfg.MCP2221Baud,
	})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, b.Close())
	}()

	opts := cfg.AK8963Opts()
	dev, err := ak8963.New(b, &opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dev.Halt())
	}()
	adj := dev.FactoryAdjustment()
	fmt.Fprintf(w, "%s adj X=%.4f Y=%.4f Z=%.4f\n", dev, adj[0], adj[1], adj[2])

	ticker := time.NewTicker(time.Duration(cfg.AK8963PollInterval) * time.Millisecond)
	defer ticker.Stop()
	scanLoop(dev, w, ticker.C, stop)
	return nil
}

// scanLoop calls scanOnce on every tick until stop is closed, then prints
// the poll and bus error counts. It returns the number of bus errors.
func scanLoop(dev sampleReader, w io.Writer, ticks <-chan time.Time, stop <-chan struct{}) int {
	polls, busErrors := 0, 0
	for {
		select {
		case <-stop:
			fmt.Fprintf(w, "polls=%d bus_errors=%d\n", polls, busErrors)
			return busErrors
		case t := <-ticks:
			polls++
			if err := scanOnce(dev, w, t); err != nil {
				busErrors++
			}
		}
	}
}
