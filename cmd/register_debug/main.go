// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/relabs-tech/ak8963/internal/app"
	"github.com/relabs-tech/ak8963/internal/config"
	"github.com/relabs-tech/ak8963/internal/sensors"
)

func main() {
	configPath := flag.String("config", "./ak8963_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting AK8963 register debug tool (standalone)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	log.Println("Initializing AK8963...")
	mgr := sensors.GetMagManager()
	if err := mgr.Init(); err != nil {
		log.Printf("Warning: AK8963 initialization failed: %v", err)
		log.Println("Continuing anyway - use the init action to retry")
	}
	defer mgr.Close()

	http.HandleFunc("/ws", app.HandleRegisterDebugWS)
	http.HandleFunc("/api/registers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sensors.AK8963RegisterMap())
	})

	addr := fmt.Sprintf(":%d", cfg.RegisterDebugPort)
	log.Printf("Register debug tool listening on %s", addr)
	log.Printf("Connect to ws://localhost%s/ws", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
