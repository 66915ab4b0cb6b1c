// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package source provides the signal acquirers that feed the positioning
// loop: directional buttons, analog joysticks (RC timing, ADC, gamepad),
// vision centroids and a synthetic source for bench runs.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/relabs-tech/pantilt/internal/angle"
)

// ErrTimeout reports an acquisition that did not complete within its bound.
// It is recoverable: the loop falls back to the last or neutral reading.
var ErrTimeout = errors.New("source: acquisition timeout")

// Kind is the meaning of a source's readings.
type Kind int

const (
	// Directional readings are step intents in {-1, 0, +1}.
	Directional Kind = iota
	// Analog readings are positive counts around a calibrated baseline.
	Analog
	// Pixel readings are absolute frame coordinates.
	Pixel
)

func (k Kind) String() string {
	switch k {
	case Directional:
		return "directional"
	case Analog:
		return "analog"
	case Pixel:
		return "pixel"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MinReading is the smallest valid analog reading. Zero counts are floored
// to it so a reading is never a divisor of zero downstream.
const MinReading = 1

// Reading is one sample of both axes.
type Reading struct {
	Kind Kind `json:"kind"`
	X    int  `json:"x"`
	Y    int  `json:"y"`
	// Max is the source-declared upper bound of X and Y (analog sources).
	Max int `json:"max,omitempty"`

	// Pixel sources: Detected is false when the frame held no target, in
	// which case X and Y carry no position.
	Detected    bool `json:"detected"`
	FrameWidth  int  `json:"frame_width,omitempty"`
	FrameHeight int  `json:"frame_height,omitempty"`

	// Center is the level of the source's centre-request input.
	Center bool `json:"center"`
}

// Axis returns the raw value for ax.
func (r Reading) Axis(ax angle.Axis) int {
	if ax == angle.Vertical {
		return r.Y
	}
	return r.X
}

// FrameDim returns the frame dimension along ax.
func (r Reading) FrameDim(ax angle.Axis) int {
	if ax == angle.Vertical {
		return r.FrameHeight
	}
	return r.FrameWidth
}

// Source is a polymorphic signal acquirer. Acquire blocks for a bounded time.
type Source interface {
	Name() string
	Kind() Kind
	Acquire(ctx context.Context) (Reading, error)
	Close() error
}

// Neutral is implemented by analog sources whose centre reading is fixed by
// construction and needs no sampling calibration.
type Neutral interface {
	Neutral() (x, y float64)
}

// NeedsCalibration reports whether s must be calibrated before tracking.
func NeedsCalibration(s Source) bool {
	if s.Kind() != Analog {
		return false
	}
	_, fixed := s.(Neutral)
	return !fixed
}

func floorReading(v int) int {
	if v < MinReading {
		return MinReading
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
