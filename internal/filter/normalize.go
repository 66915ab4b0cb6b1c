// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter conditions raw readings: normalization against a baseline,
// deadzone suppression and smoothing.
package filter

import "math"

// DefaultDeadzone suppresses offsets below 15% of full deflection.
const DefaultDeadzone = 0.15

// Normalize returns the signed offset of reading from baseline:
// (baseline - reading) / baseline. A reading below the baseline gives a
// positive offset, which the rig treats as pan right / tilt up.
// A baseline at or below zero yields 0.
func Normalize(reading, baseline float64) float64 {
	if baseline <= 0 || math.IsNaN(reading) || math.IsNaN(baseline) {
		return 0
	}
	return (baseline - reading) / baseline
}

// ApplyDeadzone forces offsets with |offset| < deadzone to exactly 0.
func ApplyDeadzone(offset, deadzone float64) float64 {
	if math.Abs(offset) < deadzone {
		return 0
	}
	return offset
}

// Intent reduces a directional offset to its step intent in {-1, 0, +1}.
func Intent(offset float64) float64 {
	switch {
	case offset > 0:
		return 1
	case offset < 0:
		return -1
	default:
		return 0
	}
}
