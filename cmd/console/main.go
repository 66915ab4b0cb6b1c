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
	// The mock console runs on defaults unless a config is given.
	configPath := flag.String("config", "", "Optional configuration file for loop tuning")
	flag.Parse()

	level := "info"
	if *configPath != "" {
		if err := config.InitGlobal(*configPath); err != nil {
			log.Error("failed to load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		level = config.Get().LogLevel
	}
	log.Init(level)
	log.Info("starting pan/tilt (mock console)")

	if err := app.RunMockConsole(); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}
