// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"fmt"
	"strings"
)

// Family selects the smoothing filter. Families are never composed.
type Family string

const (
	None          Family = "none"
	MovingAverage Family = "moving_average"
	Exponential   Family = "exponential"
)

// ParseFamily accepts the config spellings of a family ("ma" and "ema"
// are short forms).
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return None, nil
	case "moving_average", "ma":
		return MovingAverage, nil
	case "exponential", "ema":
		return Exponential, nil
	default:
		return None, fmt.Errorf("unknown smoothing family %q (want none, moving_average or exponential)", s)
	}
}

// Smoother low-pass filters one axis.
type Smoother interface {
	// Update feeds a sample and returns the smoothed value.
	Update(v float64) float64
	// Reset discards history; the next Update starts fresh.
	Reset()
}

// New builds one smoother of the given family. window applies to moving
// average, factor to exponential.
func New(f Family, window int, factor float64) (Smoother, error) {
	switch f {
	case None, "":
		return Passthrough{}, nil
	case MovingAverage:
		return NewMovingAverage(window)
	case Exponential:
		return NewExponential(factor)
	default:
		return nil, fmt.Errorf("unknown smoothing family %q", f)
	}
}

// Passthrough returns every sample unchanged.
type Passthrough struct{}

func (Passthrough) Update(v float64) float64 { return v }
func (Passthrough) Reset()                   {}

// MovingAverageFilter is the mean of the last N samples, held in a
// fixed-capacity FIFO. Until N samples have been seen the mean is taken
// over the samples present.
type MovingAverageFilter struct {
	buf  []float64
	next int
	n    int
}

// NewMovingAverage returns a moving average over window samples.
func NewMovingAverage(window int) (*MovingAverageFilter, error) {
	if window < 1 {
		return nil, fmt.Errorf("moving average window must be >= 1, got %d", window)
	}
	return &MovingAverageFilter{buf: make([]float64, window)}, nil
}

func (m *MovingAverageFilter) Update(v float64) float64 {
	if m.n < len(m.buf) {
		m.n++
	}
	m.buf[m.next] = v
	m.next = (m.next + 1) % len(m.buf)
	return m.mean()
}

// mean is taken relative to a held sample, so a window of equal samples
// yields that sample exactly.
func (m *MovingAverageFilter) mean() float64 {
	ref := m.buf[0]
	var d float64
	for _, s := range m.buf[:m.n] {
		d += s - ref
	}
	return ref + d/float64(m.n)
}

func (m *MovingAverageFilter) Reset() {
	m.next, m.n = 0, 0
}

// Len returns the number of samples held.
func (m *MovingAverageFilter) Len() int { return m.n }

// ExponentialFilter moves toward each sample by a fixed fraction:
// current += (target - current) * factor.
type ExponentialFilter struct {
	factor  float64
	current float64
	primed  bool
}

// NewExponential returns an exponential filter; factor must be in (0, 1].
func NewExponential(factor float64) (*ExponentialFilter, error) {
	if !(factor > 0 && factor <= 1) {
		return nil, fmt.Errorf("exponential factor must be in (0, 1], got %v", factor)
	}
	return &ExponentialFilter{factor: factor}, nil
}

// Seed sets the current value without filtering, e.g. to the neutral angle
// at loop start.
func (e *ExponentialFilter) Seed(v float64) {
	e.current = v
	e.primed = true
}

func (e *ExponentialFilter) Update(target float64) float64 {
	if !e.primed {
		e.Seed(target)
		return e.current
	}
	e.current += (target - e.current) * e.factor
	return e.current
}

func (e *ExponentialFilter) Reset() {
	e.current, e.primed = 0, false
}
