// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"os"

	"github.com/relabs-tech/pantilt/internal/app"
	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/log"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "pantilt.conf", "Path to configuration file (KEY=VALUE or .yaml)")
	flag.Parse()

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	log.Init(config.Get().LogLevel)
	log.Info("starting pan/tilt web server (MQTT subscriber)")

	if err := app.RunWeb(); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}
