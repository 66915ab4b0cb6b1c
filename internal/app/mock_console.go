// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"os"

	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/rig"
	"github.com/relabs-tech/pantilt/internal/status"
)

// RunMockConsole runs the positioning loop on an in-memory rig: the
// synthetic target source drives recording actuators and every status is
// printed. Loop tuning comes from the loaded config, or defaults.
func RunMockConsole() error {
	base := config.Get()
	if base == nil {
		base = config.Default()
	}
	cfg := *base
	cfg.Source = config.SourceMock
	cfg.ActuatorBackend = config.BackendMock

	r := rig.Mock()
	defer closeRig(r)

	rep := status.NewConsole(os.Stdout, config.Ms(cfg.ConsoleLogInterval), nil)
	return runLoop(context.Background(), &cfg, r, rep)
}
