// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/relabs-tech/ak8963/ak8963"
	"github.com/relabs-tech/ak8963/internal/capture"
	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/mag"
	"github.com/relabs-tech/ak8963/internal/sensors"
)

// frameReader is the part of sensors.MagManager the producer polls.
type frameReader interface {
	Read() (sensors.Frame, error)
	Source() string
}

type producerStats struct {
	Readings  int
	NotReady  int
	Saturated int
	BusErrors int
}

// magProducer turns each poll outcome into MQTT traffic.
type magProducer struct {
	reader     frameReader
	pub        publisher
	topic      string
	eventTopic string
	rec        *capture.File // nil when not capturing
	stats      producerStats
}

// poll reads once. Not-ready polls are skipped silently; saturation and bus
// errors are published as events and the loop carries on.
func (p *magProducer) poll(t time.Time) {
	f, err := p.reader.Read()
	switch {
	case err == nil:
		p.stats.Readings++
		p.record(t, f)
		p.publishJSON(p.topic, true, f.Reading)
	case errors.Is(err, ak8963.ErrNotReady):
		p.stats.NotReady++
	case errors.Is(err, sensors.ErrSaturated):
		p.stats.Saturated++
		p.record(t, f)
		p.publishJSON(p.eventTopic, false, newEvent(p.reader.Source(), mag.EventSaturated, err, t))
	default:
		p.stats.BusErrors++
		log.Printf("AK8963 read error: %v", err)
		p.publishJSON(p.eventTopic, false, newEvent(p.reader.Source(), mag.EventBusError, err, t))
	}
}

func (p *magProducer) record(t time.Time, f sensors.Frame) {
	if p.rec != nil {
		p.rec.Append(t, f.ST1, f.Block)
	}
}

func (p *magProducer) publishJSON(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("json marshal error (%s): %v", topic, err)
		return
	}
	if err := p.pub.Publish(topic, retained, payload); err != nil {
		log.Printf("MQTT publish error (%s): %v", topic, err)
	}
}

func newEvent(source, kind string, err error, t time.Time) mag.Event {
	return mag.Event{
		Source:  source,
		Kind:    kind,
		Message: err.Error(),
		Time:    t.UTC().Format(time.RFC3339Nano),
	}
}

// RunMagProducer polls the AK8963 at AK8963_POLL_INTERVAL and publishes
// readings to TOPIC_MAG until SIGINT or SIGTERM.
func RunMagProducer() (err error) {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	mgr := sensors.GetMagManager()
	if err := mgr.Init(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, mgr.Close())
	}()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := &magProducer{
		reader:     mgr,
		pub:        mqttPublisher{client: client},
		topic:      cfg.TopicMag,
		eventTopic: cfg.TopicMagEvent,
	}
	if cfg.CaptureFile != "" {
		sens, adj, perr := mgr.DecodeParams()
		if perr != nil {
			return perr
		}
		p.rec = capture.New(sens, adj)
		log.Printf("capturing raw blocks to %s", cfg.CaptureFile)
		defer func() {
			if saveErr := p.rec.Save(cfg.CaptureFile); saveErr != nil {
				err = multierr.Append(err, saveErr)
				return
			}
			log.Printf("saved %d blocks to %s", len(p.rec.Blocks), cfg.CaptureFile)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(cfg.AK8963PollInterval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	status := time.NewTicker(10 * time.Second)
	defer status.Stop()

	log.Printf("publishing %s readings to %s every %s", mgr.Source(), cfg.TopicMag, interval)
	for {
		select {
		case t := <-ticker.C:
			p.poll(t)
		case <-status.C:
			s := p.stats
			log.Printf("status: readings=%d not_ready=%d saturated=%d bus_errors=%d",
				s.Readings, s.NotReady, s.Saturated, s.BusErrors)
		case sig := <-sigCh:
			log.Printf("received %v, shutting down", sig)
			return nil
		}
	}
}

// describeReading is the one-line form used by console and scan output.
func describeReading(r mag.Reading) string {
	ovr := ""
	if r.Overrun {
		ovr = " OVERRUN"
	}
	return fmt.Sprintf("[MAG] X=%8.2f Y=%8.2f Z=%8.2f µT  |B|=%6.2f  hdg=%6.1f°  raw=(%d,%d,%d)%s",
		r.Mx, r.My, r.Mz, r.Norm, r.Heading, r.RawX, r.RawY, r.RawZ, ovr)
}
