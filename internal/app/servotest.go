// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/pantilt/internal/angle"
	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/rig"
)

// RunServoTest drives the configured actuators from typed commands:
//
//	pan 120     move pan to 120°
//	tilt 45     move tilt to 45°
//	center      both axes to neutral
//	quit        release and exit
func RunServoTest() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	var r *rig.Rig
	if cfg.ActuatorBackend == config.BackendMock {
		r = rig.Mock()
	} else {
		var err error
		if r, err = rig.Open(); err != nil {
			return err
		}
	}
	defer closeRig(r)
	return servoTest(cfg, r, os.Stdin, os.Stdout)
}

func servoTest(cfg *config.Config, r *rig.Rig, in io.Reader, out io.Writer) (err error) {
	drivers, err := openActuators(cfg, r)
	if err != nil {
		return err
	}
	defer func() {
		for _, d := range drivers {
			err = errors.Join(err, d.Release())
		}
	}()

	drive := func(ax angle.Axis, a float64) {
		d := drivers[ax]
		lim := d.Limits()
		if cerr := lim.Check(a); cerr != nil {
			fmt.Fprintf(out, "%s: %v, clamped to %.2f°\n", ax, cerr, lim.Clamp(a))
		}
		if derr := d.Drive(a); derr != nil {
			fmt.Fprintf(out, "%s: %v\n", ax, derr)
			return
		}
		last, _ := d.Last()
		fmt.Fprintf(out, "%s -> %.2f° (pulse %v)\n", ax, last, pulseMap(cfg, ax).Width(last))
	}

	fmt.Fprintln(out, "commands: pan <deg>, tilt <deg>, center, quit")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch cmd := strings.ToLower(fields[0]); cmd {
		case "quit", "q", "exit":
			return nil
		case "center", "c":
			for _, ax := range angle.Axes {
				drive(ax, drivers[ax].Limits().Neutral())
			}
		case "pan", "tilt":
			if len(fields) != 2 {
				fmt.Fprintf(out, "usage: %s <degrees>\n", cmd)
				continue
			}
			a, perr := strconv.ParseFloat(fields[1], 64)
			if perr != nil {
				fmt.Fprintf(out, "invalid angle %q\n", fields[1])
				continue
			}
			ax := angle.Horizontal
			if cmd == "tilt" {
				ax = angle.Vertical
			}
			drive(ax, a)
		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
	return scanner.Err()
}
