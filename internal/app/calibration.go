// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/rig"
	"github.com/relabs-tech/pantilt/internal/source"
)

// RunCalibration samples the configured analog source at rest and prints
// the baseline and spread per axis as JSON. Nothing is stored; the tracker
// calibrates again on every start.
func RunCalibration() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	r, err := rig.Open()
	if err != nil {
		return err
	}
	defer closeRig(r)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return calibrate(ctx, cfg, r, os.Stdin, os.Stdout)
}

func calibrate(ctx context.Context, cfg *config.Config, r *rig.Rig, in io.Reader, out io.Writer) error {
	src, err := openSource(cfg, r)
	if err != nil {
		return err
	}
	if src.Kind() != source.Analog {
		return fmt.Errorf("source %s reads %s values; only analog sources are calibrated", src.Name(), src.Kind())
	}
	if !source.NeedsCalibration(src) {
		fmt.Fprintf(out, "note: %s has a fixed neutral; the tracker does not calibrate it\n", src.Name())
	}

	fmt.Fprintf(out, "Centre the %s and let go, then press Enter...\n", src.Name())
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && err != io.EOF {
		return err
	}

	cal := newCalibrator(cfg)
	fmt.Fprintf(out, "sampling %d readings, %v apart\n", cal.Samples, cal.Settle)
	res, calErr := cal.Run(ctx, src)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return calErr
}
