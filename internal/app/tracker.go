// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/display"
	"github.com/relabs-tech/pantilt/internal/log"
	"github.com/relabs-tech/pantilt/internal/rig"
	"github.com/relabs-tech/pantilt/internal/status"
	"github.com/relabs-tech/pantilt/internal/tracking"
)

// RunTracker runs the positioning loop on the real rig until SIGINT or
// SIGTERM. SIGUSR1 requests a centring.
func RunTracker() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	r, err := rig.Open()
	if err != nil {
		return err
	}
	defer closeRig(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep, stop, err := reporters(ctx, cfg, r)
	if err != nil {
		return err
	}
	defer stop()

	return runLoop(ctx, cfg, r, rep)
}

func closeRig(r *rig.Rig) {
	if err := r.Close(); err != nil {
		log.Error("rig release failed", "err", err)
		return
	}
	log.Info("rig released")
}

// reporters builds the status fan-out: console, MQTT when a broker is set
// and the OLED when enabled. stop disconnects and waits for the display.
func reporters(ctx context.Context, cfg *config.Config, r *rig.Rig) (status.Multi, func(), error) {
	rep := status.Multi{status.NewConsole(os.Stdout, config.Ms(cfg.ConsoleLogInterval), nil)}
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if cfg.MQTTBroker != "" {
		client, err := status.Connect(cfg.MQTTBroker, cfg.MQTTClientIDTracker)
		if err != nil {
			return nil, stop, fmt.Errorf("mqtt: %w", err)
		}
		log.Info("connected to MQTT broker", "broker", cfg.MQTTBroker, "topic", cfg.TopicStatus)
		rep = append(rep, status.NewPublisher(client, cfg.TopicStatus))
		stops = append(stops, func() { client.Disconnect(250) })
	}

	if cfg.DisplayEnabled {
		bus, err := r.I2C(cfg.DisplayI2CBus)
		if err != nil {
			stop()
			return nil, func() {}, err
		}
		dev, err := display.Open(bus)
		if err != nil {
			stop()
			return nil, func() {}, err
		}
		if err := display.Splash(dev); err != nil {
			log.Warn("display splash failed", "err", err)
		}
		d := display.New(dev)
		rep = append(rep, d)

		dctx, dcancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Run(dctx, config.Ms(cfg.DisplayUpdateInterval)); err != nil {
				log.Warn("display halt failed", "err", err)
			}
		}()
		stops = append(stops, func() {
			dcancel()
			wg.Wait()
		})
	}
	return rep, stop, nil
}

// runLoop builds the configured source and actuators on r and runs the
// positioning loop until ctx ends, a termination signal arrives or the loop
// fails. The actuators are released before it returns.
func runLoop(ctx context.Context, cfg *config.Config, r *rig.Rig, rep status.Reporter) error {
	src, err := openSource(cfg, r)
	if err != nil {
		return err
	}
	drivers, err := openActuators(cfg, r)
	if err != nil {
		return err
	}
	lc, err := loopConfig(cfg)
	if err != nil {
		return err
	}
	loop, err := tracking.New(src, drivers[0], drivers[1], lc,
		tracking.WithReporter(rep),
		tracking.WithCalibrator(newCalibrator(cfg)),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := watchSignals(ctx, cancel, loop.RequestCenter)
	defer stop()

	log.Info("positioning loop starting",
		"source", src.Name(),
		"mode", tracking.ModeFor(src.Kind()).String(),
		"backend", cfg.ActuatorBackend,
		"smoothing", lc.Smoothing,
	)
	if err := loop.Run(ctx); err != nil {
		return err
	}
	log.Info("positioning loop stopped")
	return nil
}

// watchSignals cancels on SIGINT/SIGTERM and calls center on SIGUSR1.
func watchSignals(ctx context.Context, cancel context.CancelFunc, center func()) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-sigCh:
				if s == syscall.SIGUSR1 {
					log.Info("centre requested by signal")
					center()
					continue
				}
				log.Info("shutting down", "signal", s.String())
				cancel()
				return
			}
		}
	}()
	return func() { signal.Stop(sigCh) }
}
