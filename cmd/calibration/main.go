// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command calibration runs the guided magnetometer calibration and writes a
// <source>_<time>_mag_calibration.json file.
//
// The result is the min/max approximation: hard-iron offset plus a diagonal
// soft-iron scale. Corrected = (field - offset) * scale.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relabs-tech/ak8963/internal/app"
	"github.com/relabs-tech/ak8963/internal/config"
)

func main() {
	configPath := flag.String("config", "ak8963_config.txt", "Path to configuration file")
	duration := flag.Duration("duration", time.Minute, "Maximum capture duration")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	if err := app.RunCalibration(os.Stdin, os.Stdout, *duration); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Calibration complete.")
}
