// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tracking

import (
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/pantilt/internal/filter"
	"github.com/relabs-tech/pantilt/internal/mapping"
	"github.com/relabs-tech/pantilt/internal/source"
)

// ErrActuatorFailed is returned when an axis keeps failing to drive for
// MaxFailures consecutive ticks.
var ErrActuatorFailed = errors.New("tracking: actuator failed persistently")

// State of the positioning loop.
type State int

const (
	Idle State = iota
	Calibrating
	Tracking
	Centering
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case Tracking:
		return "tracking"
	case Centering:
		return "centering"
	case ShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultTickInterval = 50 * time.Millisecond
	DefaultCenterHold   = 500 * time.Millisecond
	DefaultMaxFailures  = 5
)

// Config tunes the loop.
type Config struct {
	Mapper   *mapping.Mapper
	Deadzone float64

	Smoothing filter.Family
	Window    int
	Factor    float64

	TickInterval time.Duration
	CenterHold   time.Duration
	// MaxFailures is the number of consecutive failed drives of one axis
	// after which the loop gives up.
	MaxFailures int
}

// Validate checks the loop configuration.
func (c Config) Validate() error {
	if c.Mapper == nil {
		return errors.New("tracking: mapper is required")
	}
	if err := c.Mapper.Validate(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}
	if c.Deadzone < 0 || c.Deadzone >= 1 {
		return fmt.Errorf("tracking: deadzone must be in [0, 1), got %v", c.Deadzone)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tracking: tick interval must be positive, got %v", c.TickInterval)
	}
	if c.CenterHold < 0 {
		return fmt.Errorf("tracking: centre hold must not be negative, got %v", c.CenterHold)
	}
	if c.MaxFailures < 1 {
		return fmt.Errorf("tracking: max failures must be >= 1, got %d", c.MaxFailures)
	}
	if _, err := filter.New(c.Smoothing, c.Window, c.Factor); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}
	return nil
}

// ModeFor returns the mapping mode fixed by a source kind.
func ModeFor(k source.Kind) mapping.Mode {
	switch k {
	case source.Analog:
		return mapping.Proportional
	case source.Pixel:
		return mapping.Absolute
	default:
		return mapping.Step
	}
}
