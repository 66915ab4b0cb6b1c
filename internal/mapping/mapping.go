// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mapping turns normalized offsets and pixel coordinates into
// target angles. Every result is clamped into the axis limits.
package mapping

import (
	"fmt"

	"github.com/relabs-tech/pantilt/internal/angle"
	"github.com/relabs-tech/pantilt/internal/filter"
)

// Mode is how a source's readings become angles. It is fixed per source.
type Mode int

const (
	// Step moves the target by StepSize in the direction of the intent.
	Step Mode = iota
	// Proportional maps offset [-1, 1] across the full range around neutral.
	Proportional
	// Absolute rescales a pixel coordinate onto the angle range.
	Absolute
)

func (m Mode) String() string {
	switch m {
	case Step:
		return "step"
	case Proportional:
		return "proportional"
	case Absolute:
		return "absolute"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const (
	DefaultStepSize    = 2.0
	DefaultSensitivity = 1.0
)

// Mapper holds the per-axis mapping parameters.
type Mapper struct {
	Limits      [2]angle.Limits
	StepSize    float64
	Sensitivity float64
	// Invert negates the offset (relative modes) or mirrors the pixel
	// (absolute mode) of an axis.
	Invert [2]bool
}

// New returns a mapper with default step and sensitivity.
func New(limits [2]angle.Limits) *Mapper {
	return &Mapper{
		Limits:      limits,
		StepSize:    DefaultStepSize,
		Sensitivity: DefaultSensitivity,
	}
}

// Validate checks the mapper parameters.
func (m *Mapper) Validate() error {
	for _, ax := range angle.Axes {
		if err := m.Limits[ax].Validate(); err != nil {
			return fmt.Errorf("%s: %w", ax, err)
		}
	}
	if m.StepSize <= 0 {
		return fmt.Errorf("step size must be positive, got %v", m.StepSize)
	}
	if m.Sensitivity <= 0 {
		return fmt.Errorf("sensitivity must be positive, got %v", m.Sensitivity)
	}
	return nil
}

func (m *Mapper) sign(ax angle.Axis) float64 {
	if m.Invert[ax] {
		return -1
	}
	return 1
}

// Step returns current moved one StepSize in the direction of offset.
func (m *Mapper) Step(ax angle.Axis, current, offset float64) float64 {
	l := m.Limits[ax]
	return l.Clamp(l.Clamp(current) + m.sign(ax)*filter.Intent(offset)*m.StepSize)
}

// Proportional returns neutral + offset*halfSpan*Sensitivity; for the default
// range that is 90 + offset*90.
func (m *Mapper) Proportional(ax angle.Axis, offset float64) float64 {
	l := m.Limits[ax]
	return l.Clamp(l.Neutral() + m.sign(ax)*offset*(l.Span()/2)*m.Sensitivity)
}

// Absolute rescales pixel in a frame dimension of dim onto the range:
// pixel/dim*(Max-Min)+Min. A non-positive dim gives neutral.
func (m *Mapper) Absolute(ax angle.Axis, pixel float64, dim int) float64 {
	l := m.Limits[ax]
	if dim <= 0 {
		return l.Neutral()
	}
	if m.Invert[ax] {
		pixel = float64(dim) - pixel
	}
	return l.Clamp(pixel/float64(dim)*l.Span() + l.Min)
}
