// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration establishes the neutral reading of analog sources.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/relabs-tech/pantilt/internal/angle"
	"github.com/relabs-tech/pantilt/internal/clock"
	"github.com/relabs-tech/pantilt/internal/log"
	"github.com/relabs-tech/pantilt/internal/source"
)

const (
	DefaultSamples = 8
	DefaultSettle  = 50 * time.Millisecond
)

// Error reports an unusable baseline: the sensor is disconnected or dead.
type Error struct {
	Axis     angle.Axis
	Baseline float64
}

func (e *Error) Error() string {
	return fmt.Sprintf("calibration: %s baseline %.2f at or below minimum reading %d (sensor disconnected?)",
		e.Axis, e.Baseline, source.MinReading)
}

// Baseline is the centred reading per axis. It is immutable once computed.
type Baseline struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Axis returns the baseline of ax.
func (b Baseline) Axis(ax angle.Axis) float64 {
	if ax == angle.Vertical {
		return b.Y
	}
	return b.X
}

// AxisStats summarizes the samples of one axis.
type AxisStats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// Result is the outcome of a calibration run.
type Result struct {
	Baseline Baseline  `json:"baseline"`
	Samples  int       `json:"samples"`
	Timeouts int       `json:"timeouts"`
	X        AxisStats `json:"x"`
	Y        AxisStats `json:"y"`
}

// Calibrator samples a source at rest and averages the readings.
type Calibrator struct {
	Samples int
	Settle  time.Duration
	Clock   clock.Clock
	Log     *slog.Logger
}

// New returns a calibrator with default sample count and settle delay.
func New() *Calibrator {
	return &Calibrator{Samples: DefaultSamples, Settle: DefaultSettle}
}

// Run takes Samples readings spaced by Settle and returns their mean as the
// baseline. A timed-out sample counts as MinReading, so a dead sensor fails
// the run instead of stalling it. Any axis whose mean is at or below
// MinReading yields an *Error.
func (c *Calibrator) Run(ctx context.Context, src source.Source) (Result, error) {
	if src.Kind() != source.Analog {
		return Result{}, fmt.Errorf("calibration: %s source (%s) has no neutral reading to calibrate", src.Name(), src.Kind())
	}
	n := c.Samples
	if n <= 0 {
		n = DefaultSamples
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	lg := log.Or(c.Log).With("component", "calibration", "source", src.Name())

	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	timeouts := 0
	for i := 0; i < n; i++ {
		if i > 0 {
			clk.Sleep(c.Settle)
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		r, err := src.Acquire(ctx)
		switch {
		case errors.Is(err, source.ErrTimeout):
			timeouts++
			r.X, r.Y = source.MinReading, source.MinReading
		case err != nil:
			return Result{}, fmt.Errorf("calibration sample %d: %w", i, err)
		}
		xs = append(xs, float64(r.X))
		ys = append(ys, float64(r.Y))
		lg.Debug("calibration sample", "n", i, "x", r.X, "y", r.Y)
	}

	res := Result{Samples: n, Timeouts: timeouts, X: stats(xs), Y: stats(ys)}
	res.Baseline = Baseline{X: res.X.Mean, Y: res.Y.Mean}

	var errs []error
	for _, ax := range angle.Axes {
		if b := res.Baseline.Axis(ax); b <= source.MinReading {
			errs = append(errs, &Error{Axis: ax, Baseline: b})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return res, err
	}
	lg.Info("calibration complete", "baseline_x", res.Baseline.X, "baseline_y", res.Baseline.Y, "timeouts", timeouts)
	return res, nil
}

func stats(v []float64) AxisStats {
	if len(v) == 0 {
		return AxisStats{}
	}
	s := AxisStats{Min: v[0], Max: v[0]}
	sum := 0.0
	for _, x := range v {
		sum += x
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
	s.Mean = sum / float64(len(v))
	ss := 0.0
	for _, x := range v {
		ss += (x - s.Mean) * (x - s.Mean)
	}
	s.StdDev = math.Sqrt(ss / float64(len(v)))
	return s
}
