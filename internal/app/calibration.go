// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/ak8963/ak8963"
	"github.com/relabs-tech/ak8963/internal/calib"
	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/mag"
	"github.com/relabs-tech/ak8963/internal/sensors"
)

// calibrationProgress is reported about once per second while collecting.
type calibrationProgress struct {
	Samples   int        `json:"samples"`
	HalfRange calib.Vec3 `json:"half_range"`
	Progress  float64    `json:"progress"` // 0..1
}

// collectCalibration feeds readings into a MinMax until dur elapses, stop
// is closed or readings is closed.
func collectCalibration(readings <-chan mag.Reading, dur time.Duration, stop <-chan struct{}, progress func(calibrationProgress)) *calib.MinMax {
	m := calib.NewMinMax()
	start := time.Now()
	deadline := time.NewTimer(dur)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case r, ok := <-readings:
			if !ok {
				return m
			}
			m.Add([3]float64{r.Mx, r.My, r.Mz})
		case <-tick.C:
			if progress != nil {
				progress(calibrationProgress{
					Samples:   m.Count(),
					HalfRange: m.HalfRange(),
					Progress:  min(time.Since(start).Seconds()/dur.Seconds(), 1),
				})
			}
		case <-deadline.C:
			return m
		case <-stop:
			return m
		}
	}
}

// pollReadings reads the manager every interval and sends readings until
// stop is closed. Not-ready and saturated polls are dropped.
func pollReadings(mgr *sensors.MagManager, interval time.Duration, stop <-chan struct{}) <-chan mag.Reading {
	out := make(chan mag.Reading, 64)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				r, err := mgr.ReadReading()
				if err != nil {
					if !errors.Is(err, ak8963.ErrNotReady) && !errors.Is(err, sensors.ErrSaturated) {
						log.Printf("calibration: read error: %v", err)
					}
					continue
				}
				select {
				case out <- r:
				default:
				}
			}
		}
	}()
	return out
}

// writeCalibration stores res as JSON next to the working directory and
// returns the file name.
func writeCalibration(res calib.Result) (string, error) {
	name := fmt.Sprintf("%s_%s_mag_calibration.json", res.Source, res.Timestamp.Format("2006-01-02T15-04-05Z07-00"))
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// RunCalibration runs the guided terminal calibration: ENTER starts the
// capture, ENTER again (or maxDur) stops it. The result is written as JSON.
func RunCalibration(in io.Reader, out io.Writer, maxDur time.Duration) error {
	cfg := config.Get()
	mgr := sensors.GetMagManager()
	if err := mgr.Init(); err != nil {
		return err
	}
	defer mgr.Close()

	rd := bufio.NewReader(in)
	fmt.Fprintln(out, "=== Guided Magnetometer Calibration (hard + soft iron, min/max) ===")
	fmt.Fprintln(out, "Rotate the device through all orientations (3D).")
	fmt.Fprintln(out, "Move away from large metal objects and power cables if possible.")
	fmt.Fprintf(out, "Press ENTER to start (max %s, ENTER to stop earlier)...", maxDur)
	if _, err := rd.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	stop := make(chan struct{})
	go func() {
		rd.ReadString('\n')
		close(stop)
	}()

	done := make(chan struct{})
	readings := pollReadings(mgr, time.Duration(cfg.AK8963PollInterval)*time.Millisecond, done)
	m := collectCalibration(readings, maxDur, stop, func(p calibrationProgress) {
		fmt.Fprintf(out, "\r  %4d samples  half-range X=%6.1f Y=%6.1f Z=%6.1f µT  %3.0f%%",
			p.Samples, p.HalfRange.X, p.HalfRange.Y, p.HalfRange.Z, p.Progress*100)
	})
	close(done)
	for range readings {
	}
	fmt.Fprintln(out)

	res := m.Result()
	res.Source = mgr.Source()
	res.Timestamp = time.Now().UTC()

	fmt.Fprintf(out, "Mag offset (µT): X=%.2f Y=%.2f Z=%.2f\n", res.Offset.X, res.Offset.Y, res.Offset.Z)
	fmt.Fprintf(out, "Mag scale:       X=%.3f Y=%.3f Z=%.3f | confidence=%.2f\n",
		res.Scale.X, res.Scale.Y, res.Scale.Z, res.Confidence)
	for _, n := range res.Notes {
		fmt.Fprintf(out, "note: %s\n", n)
	}

	name, err := writeCalibration(res)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote: %s\n", name)
	return nil
}
