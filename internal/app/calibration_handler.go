// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ak8963/internal/calib"
)

const (
	defaultCalibrationDuration = 60 * time.Second
	maxCalibrationDuration     = 5 * time.Minute
)

// CalibrationCmd is sent by the browser: "start" (with optional duration)
// and "stop".
type CalibrationCmd struct {
	Action      string  `json:"action"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// CalibrationMsg is sent to the browser.
type CalibrationMsg struct {
	Type     string               `json:"type"` // "progress", "result", "error"
	Progress *calibrationProgress `json:"progress,omitempty"`
	Result   *calib.Result        `json:"result,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// CalibrationSession is one browser driven calibration run.
type CalibrationSession struct {
	Conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (s *CalibrationSession) send(m CalibrationMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.Conn.WriteJSON(m); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}

func calibrationDuration(sec float64) time.Duration {
	if sec <= 0 {
		return defaultCalibrationDuration
	}
	return min(time.Duration(sec*float64(time.Second)), maxCalibrationDuration)
}

// handleCalibrationWS runs a min/max calibration over the readings the web
// server receives from MQTT. The producer must be running.
func (h *readingHub) handleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	s := &CalibrationSession{Conn: conn}

	for {
		var cmd CalibrationCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if cmd.Action != "start" {
			s.send(CalibrationMsg{Type: "error", Message: "expected action start, got " + cmd.Action})
			continue
		}

		stop := make(chan struct{})
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				var c CalibrationCmd
				if err := conn.ReadJSON(&c); err != nil || c.Action == "stop" {
					close(stop)
					return
				}
			}
		}()

		readings, cancel := h.subscribe()
		m := collectCalibration(readings, calibrationDuration(cmd.DurationSec), stop, func(p calibrationProgress) {
			s.send(CalibrationMsg{Type: "progress", Progress: &p})
		})
		cancel()

		res := m.Result()
		res.Source = "ak8963"
		res.Timestamp = time.Now().UTC()
		s.send(CalibrationMsg{Type: "result", Result: &res})
		log.Printf("calibration: %d samples, offset=%+v scale=%+v confidence=%.2f",
			res.Samples, res.Offset, res.Scale, res.Confidence)

		// One run per connection; wait for the reader to finish.
		conn.Close()
		<-gone
		return
	}
}
