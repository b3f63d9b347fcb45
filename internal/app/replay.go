// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"

	"github.com/relabs-tech/ak8963/internal/capture"
	"github.com/relabs-tech/ak8963/internal/mag"
)

// ReplaySummary counts the outcomes of a replay.
type ReplaySummary struct {
	Readings  int
	Saturated int
	Overruns  int
}

// replayFile writes one line per block of f to w.
func replayFile(f *capture.File, w io.Writer) (ReplaySummary, error) {
	var sum ReplaySummary
	decoded, err := f.Decode()
	if err != nil {
		return sum, err
	}
	for _, d := range decoded {
		if !d.OK {
			sum.Saturated++
			fmt.Fprintf(w, "%s [SAT] magnetic sensor overflow\n", d.Time.Format("15:04:05.000"))
			continue
		}
		sum.Readings++
		if d.Sample.DataOverrun {
			sum.Overruns++
		}
		r := mag.FromSample("replay", d.Sample, d.Time)
		fmt.Fprintf(w, "%s %s\n", d.Time.Format("15:04:05.000"), describeReading(r))
	}
	return sum, nil
}

// RunReplay decodes a capture file offline and prints it.
func RunReplay(path string, w io.Writer) error {
	f, err := capture.Load(path)
	if err != nil {
		return err
	}
	s, adj, err := f.Params()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "capture %s: %d blocks, %s, adj X=%.4f Y=%.4f Z=%.4f\n",
		path, len(f.Blocks), s, adj[0], adj[1], adj[2])
	sum, err := replayFile(f, w)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "readings=%d saturated=%d overruns=%d\n", sum.Readings, sum.Saturated, sum.Overruns)
	return nil
}
