// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/pantilt/internal/clock"
	"github.com/relabs-tech/pantilt/internal/rig"
)

const (
	DefaultRCTimeout   = 100 * time.Millisecond
	DefaultRCDischarge = 5 * time.Millisecond
	DefaultRCPoll      = 10 * time.Microsecond
)

// RCConfig tunes the RC-timing measurement.
type RCConfig struct {
	// Timeout bounds the wait for one axis to charge.
	Timeout time.Duration
	// Discharge is how long the capacitor is shorted before a measurement.
	Discharge time.Duration
	// Poll is the line polling interval.
	Poll time.Duration
}

// DefaultRCConfig returns the default timings.
func DefaultRCConfig() RCConfig {
	return RCConfig{Timeout: DefaultRCTimeout, Discharge: DefaultRCDischarge, Poll: DefaultRCPoll}
}

// RCJoystick reads an analog joystick whose potentiometers charge a
// capacitor on each line. The reading of an axis is the time, in
// microseconds, from releasing the discharged line until it reads high.
type RCJoystick struct {
	x, y   rig.Line
	center rig.Line
	cfg    RCConfig
	clock  clock.Clock
}

// NewRCJoystick returns a joystick on lines x and y. center may be nil.
func NewRCJoystick(x, y, center rig.Line, cfg RCConfig, c clock.Clock) (*RCJoystick, error) {
	if x == nil || y == nil {
		return nil, errors.New("rc joystick: x and y lines are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRCTimeout
	}
	if cfg.Discharge <= 0 {
		cfg.Discharge = DefaultRCDischarge
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultRCPoll
	}
	if c == nil {
		c = clock.Real{}
	}
	if center != nil {
		if err := center.Configure(rig.Input, rig.PullUp); err != nil {
			return nil, fmt.Errorf("rc joystick: %w", err)
		}
	}
	return &RCJoystick{x: x, y: y, center: center, cfg: cfg, clock: c}, nil
}

func (j *RCJoystick) Name() string { return "rc_joystick" }
func (j *RCJoystick) Kind() Kind   { return Analog }

// Max is the count reached at the timeout.
func (j *RCJoystick) Max() int { return int(j.cfg.Timeout / time.Microsecond) }

// measure discharges l and times its charge. The wait is bounded by the
// configured timeout.
func (j *RCJoystick) measure(l rig.Line) (int, error) {
	if err := l.Configure(rig.Output, rig.PullNone); err != nil {
		return 0, err
	}
	j.clock.Sleep(j.cfg.Discharge)
	if err := l.Configure(rig.Input, rig.PullNone); err != nil {
		return 0, err
	}
	elapsed, ok := clock.WaitUntil(j.clock, j.cfg.Timeout, j.cfg.Poll, l.Read)
	if !ok {
		return 0, fmt.Errorf("%w: line %s still low after %v", ErrTimeout, l.Name(), elapsed)
	}
	return floorReading(int(elapsed / time.Microsecond)), nil
}

func (j *RCJoystick) Acquire(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	r := Reading{Kind: Analog, Max: j.Max()}
	if j.center != nil {
		r.Center = rig.Pressed(j.center)
	}
	x, err := j.measure(j.x)
	if err != nil {
		return r, fmt.Errorf("rc joystick x: %w", err)
	}
	y, err := j.measure(j.y)
	if err != nil {
		return r, fmt.Errorf("rc joystick y: %w", err)
	}
	r.X, r.Y = x, y
	return r, nil
}

func (j *RCJoystick) Close() error { return nil }
