// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/ak8963/internal/bus"
	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/mag"
)

const (
	displayW = 128
	displayH = 64

	ssd1306DefaultAddr = 0x3C

	// eventHold is how long an event replaces the heading line.
	eventHold = 2 * time.Second
)

// DisplayData holds the latest data for display
type DisplayData struct {
	mu sync.RWMutex

	reading     mag.Reading
	haveReading bool

	event     mag.Event
	eventAt   time.Time
	haveEvent bool
}

type displaySnapshot struct {
	reading     mag.Reading
	haveReading bool
	event       mag.Event
	showEvent   bool
}

func (d *DisplayData) snapshot(now time.Time) displaySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return displaySnapshot{
		reading:     d.reading,
		haveReading: d.haveReading,
		event:       d.event,
		showEvent:   d.haveEvent && now.Sub(d.eventAt) < eventHold,
	}
}

// addrBus sends every transaction to addr. ssd1306.NewI2C always talks to
// 0x3C; this moves it to the configured address.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// renderDisplay draws the field readout into a 128x64 1-bit image.
func renderDisplay(s displaySnapshot) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayW, displayH))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	line := func(y int, text string) {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawString(text)
	}

	if !s.haveReading {
		line(26, "AK8963")
		line(39, "Waiting...")
		return img
	}
	r := s.reading
	line(13, fmt.Sprintf("X:%7.1f uT", r.Mx))
	line(26, fmt.Sprintf("Y:%7.1f uT", r.My))
	line(39, fmt.Sprintf("Z:%7.1f uT", r.Mz))
	if s.showEvent {
		line(52, "! "+s.event.Kind)
	} else {
		line(52, fmt.Sprintf("|B|%5.1f H%5.1f", r.Norm, r.Heading))
	}
	return img
}

// RunDisplay shows the latest magnetometer reading on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	b, err := bus.Open(cfg.BusDriver, cfg.DisplayI2CBus, bus.Opts{
		MCP2221Index: cfg.MCP2221Index,
		MCP2221Baud:  cfg.MCP2221Baud,
	})
	if err != nil {
		return fmt.Errorf("failed to open display I2C bus: %w", err)
	}
	defer b.Close()

	var db i2c.Bus = b
	if cfg.DisplayI2CAddr != ssd1306DefaultAddr {
		db = &addrBus{Bus: b, addr: cfg.DisplayI2CAddr}
	}
	dev, err := ssd1306.NewI2C(db, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized at 0x%02X on %s", cfg.DisplayI2CAddr, b)

	data := &DisplayData{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, cfg.TopicMag, func(_ mqtt.Client, msg mqtt.Message) {
		var r mag.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("display: reading unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.reading = r
		data.haveReading = true
		data.mu.Unlock()
	}); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicMagEvent, func(_ mqtt.Client, msg mqtt.Message) {
		var e mag.Event
		if err := json.Unmarshal(msg.Payload(), &e); err != nil {
			log.Printf("display: event unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.event = e
		data.eventAt = time.Now()
		data.haveEvent = true
		data.mu.Unlock()
	}); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case t := <-ticker.C:
			img := renderDisplay(data.snapshot(t))
			if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		case <-sigCh:
			log.Println("display: shutting down")
			return nil
		}
	}
}
