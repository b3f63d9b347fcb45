// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/mag"
)

func describeEvent(e mag.Event) string {
	return fmt.Sprintf("[EVT] %s %s: %s", e.Time, e.Kind, e.Message)
}

// RunConsoleMQTT prints every reading and event until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	if err := subscribe(client, cfg.TopicMag, func(_ mqtt.Client, msg mqtt.Message) {
		var r mag.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: reading unmarshal error: %v", err)
			return
		}
		fmt.Println(describeReading(r))
	}); err != nil {
		return err
	}

	if err := subscribe(client, cfg.TopicMagEvent, func(_ mqtt.Client, msg mqtt.Message) {
		var e mag.Event
		if err := json.Unmarshal(msg.Payload(), &e); err != nil {
			log.Printf("console: event unmarshal error: %v", err)
			return
		}
		fmt.Println(describeEvent(e))
	}); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
