// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/mag"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const wsWriteTimeout = 2 * time.Second

// readingHub keeps the latest reading and event and fans readings out to
// WebSocket clients. Slow clients miss readings rather than block MQTT.
type readingHub struct {
	mu        sync.RWMutex
	last      mag.Reading
	have      bool
	lastEvent mag.Event
	haveEvent bool
	subs      map[chan mag.Reading]struct{}
}

func newReadingHub() *readingHub {
	return &readingHub{subs: make(map[chan mag.Reading]struct{})}
}

func (h *readingHub) update(r mag.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = r
	h.have = true
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

func (h *readingHub) setEvent(e mag.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastEvent = e
	h.haveEvent = true
}

func (h *readingHub) latest() (mag.Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.have
}

// subscribe returns a channel of new readings and a function that ends the
// subscription.
func (h *readingHub) subscribe() (<-chan mag.Reading, func()) {
	ch := make(chan mag.Reading, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *readingHub) ingestReading(payload []byte) error {
	var r mag.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return err
	}
	h.update(r)
	return nil
}

func (h *readingHub) ingestEvent(payload []byte) error {
	var e mag.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return err
	}
	h.setEvent(e)
	return nil
}

// handleLatest serves GET /api/mag.
func (h *readingHub) handleLatest(w http.ResponseWriter, r *http.Request) {
	last, ok := h.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(last); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// handleEvent serves GET /api/mag/event.
func (h *readingHub) handleEvent(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	e, ok := h.lastEvent, h.haveEvent
	h.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(e); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// handleStream streams every new reading over a WebSocket.
func (h *readingHub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	readings, cancel := h.subscribe()
	defer cancel()

	// The client sends nothing; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case rd := <-readings:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(rd); err != nil {
				return
			}
		}
	}
}

func newWebMux(h *readingHub, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/mag", h.handleLatest)
	mux.HandleFunc("/api/mag/event", h.handleEvent)
	mux.HandleFunc("/ws", h.handleStream)
	mux.HandleFunc("/ws/calibration", h.handleCalibrationWS)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// RunWeb subscribes to the magnetometer topics and serves them over HTTP.
func RunWeb() error {
	cfg := config.Get()
	hub := newReadingHub()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, cfg.TopicMag, func(_ mqtt.Client, msg mqtt.Message) {
		if err := hub.ingestReading(msg.Payload()); err != nil {
			log.Printf("MQTT payload unmarshal error: %v", err)
		}
	}); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicMagEvent, func(_ mqtt.Client, msg mqtt.Message) {
		if err := hub.ingestEvent(msg.Payload()); err != nil {
			log.Printf("MQTT event unmarshal error: %v", err)
		}
	}); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, newWebMux(hub, "web"))
}
