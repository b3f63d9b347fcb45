// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command replay decodes a capture file written by mag_producer.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/ak8963/internal/app"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: %s <capture.yaml>", os.Args[0])
	}
	if err := app.RunReplay(flag.Arg(0), os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
