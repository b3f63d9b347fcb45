// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/ak8963/internal/app"
	"github.com/relabs-tech/ak8963/internal/config"
)

func main() {
	configPath := flag.String("config", "./ak8963_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting AK8963 magnetometer producer (AK8963 → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMagProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
