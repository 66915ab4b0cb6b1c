// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package angle holds the shared angle types of the pan/tilt rig.
package angle

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is reported when a command falls outside the mechanical limits.
var ErrOutOfRange = errors.New("angle: command out of range")

// Axis is one independently actuated rotational degree of freedom.
type Axis int

const (
	Horizontal Axis = iota // pan
	Vertical               // tilt
)

// Axes lists both axes in drive order.
var Axes = [2]Axis{Horizontal, Vertical}

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "pan"
	case Vertical:
		return "tilt"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

const (
	DefaultMin = 0.0
	DefaultMax = 180.0

	// Neutral is the rig's centred position on both axes.
	Neutral = 90.0
)

// Limits is the mechanical range of an axis in degrees.
type Limits struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// DefaultLimits is the 0-180° range of a standard hobby servo.
var DefaultLimits = Limits{Min: DefaultMin, Max: DefaultMax}

// Span returns Max-Min.
func (l Limits) Span() float64 {
	return l.Max - l.Min
}

// Neutral returns the rig neutral clamped into the limits.
func (l Limits) Neutral() float64 {
	return l.Clamp(Neutral)
}

// Clamp forces a into [Min, Max]. NaN maps to the neutral position and
// infinities to the nearest bound, so the result is always finite.
func (l Limits) Clamp(a float64) float64 {
	if math.IsNaN(a) {
		a = Neutral
	}
	if a < l.Min {
		return l.Min
	}
	if a > l.Max {
		return l.Max
	}
	return a
}

// Check returns ErrOutOfRange when a is not a finite angle inside the limits.
func (l Limits) Check(a float64) error {
	if math.IsNaN(a) || a < l.Min || a > l.Max {
		return fmt.Errorf("%w: %.2f not in [%.1f, %.1f]", ErrOutOfRange, a, l.Min, l.Max)
	}
	return nil
}

// Validate reports whether the limits describe a usable range.
func (l Limits) Validate() error {
	if math.IsNaN(l.Min) || math.IsNaN(l.Max) || math.IsInf(l.Min, 0) || math.IsInf(l.Max, 0) {
		return fmt.Errorf("angle limits must be finite, got [%v, %v]", l.Min, l.Max)
	}
	if l.Min >= l.Max {
		return fmt.Errorf("angle limits must satisfy min < max, got [%v, %v]", l.Min, l.Max)
	}
	return nil
}

// State is the per-axis angle state owned by the positioning loop.
type State struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}
