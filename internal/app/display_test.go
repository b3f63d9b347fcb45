// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"image"
	"testing"
	"time"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/ak8963/internal/mag"
)

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestRenderDisplay(t *testing.T) {
	waiting := renderDisplay(displaySnapshot{})
	if waiting.Bounds() != image.Rect(0, 0, displayW, displayH) {
		t.Fatalf("unexpected bounds %v", waiting.Bounds())
	}
	if litPixels(waiting) == 0 {
		t.Error("waiting screen is blank")
	}

	s := displaySnapshot{reading: mag.Reading{Mx: 15, My: 30, Mz: 45, Norm: 56.1, Heading: 63.4}, haveReading: true}
	full := renderDisplay(s)
	if litPixels(full) <= litPixels(waiting) {
		t.Error("reading screen should draw more than the waiting screen")
	}

	s.showEvent = true
	s.event = mag.Event{Kind: mag.EventSaturated}
	if litPixels(renderDisplay(s)) == litPixels(full) {
		t.Error("event line not drawn")
	}
}

func TestDisplaySnapshotEventHold(t *testing.T) {
	now := time.Now()
	d := &DisplayData{haveEvent: true, eventAt: now}
	if !d.snapshot(now.Add(eventHold / 2)).showEvent {
		t.Error("event should show while held")
	}
	if d.snapshot(now.Add(eventHold * 2)).showEvent {
		t.Error("event should expire")
	}
}
