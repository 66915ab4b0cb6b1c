// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"context"
	"math"
)

// Mock is a synthetic pixel source: a target tracing a slow ellipse across
// a 640x480 frame, with an occasional empty frame.
type Mock struct {
	Width, Height int
	// Steps per revolution.
	Steps int
	// Dropout, when positive, makes every Dropout-th frame empty.
	Dropout int

	n int
}

// NewMock returns the default bench source.
func NewMock() *Mock {
	return &Mock{Width: 640, Height: 480, Steps: 200, Dropout: 50}
}

func (m *Mock) Name() string { return "mock" }
func (m *Mock) Kind() Kind   { return Pixel }

func (m *Mock) Acquire(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	m.n++
	r := Reading{Kind: Pixel, FrameWidth: m.Width, FrameHeight: m.Height}
	if m.Dropout > 0 && m.n%m.Dropout == 0 {
		return r, nil
	}
	steps := m.Steps
	if steps <= 0 {
		steps = 200
	}
	phase := 2 * math.Pi * float64(m.n%steps) / float64(steps)
	r.Detected = true
	r.X = int(float64(m.Width)/2 + 0.4*float64(m.Width)*math.Cos(phase))
	r.Y = int(float64(m.Height)/2 + 0.3*float64(m.Height)*math.Sin(phase))
	return r, nil
}

func (m *Mock) Close() error { return nil }
