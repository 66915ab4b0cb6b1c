// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package tracking runs the positioning loop: acquire a reading, normalize
// it, smooth it, map it to target angles and drive both axes, once per tick.
//
// The loop owns the angle state, the calibration baseline and the smoothing
// state; nothing else mutates them. Every exit from Run releases the
// actuators.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/pantilt/internal/angle"
	"github.com/relabs-tech/pantilt/internal/calibration"
	"github.com/relabs-tech/pantilt/internal/clock"
	"github.com/relabs-tech/pantilt/internal/filter"
	"github.com/relabs-tech/pantilt/internal/log"
	"github.com/relabs-tech/pantilt/internal/mapping"
	"github.com/relabs-tech/pantilt/internal/source"
	"github.com/relabs-tech/pantilt/internal/status"
)

// Actuator drives one axis. *actuator.Driver implements it.
type Actuator interface {
	Drive(a float64) error
	Release() error
}

// Loop is the positioning loop of one pan/tilt rig.
type Loop struct {
	cfg   Config
	src   source.Source
	act   [2]Actuator
	cal   *calibration.Calibrator
	rep   status.Reporter
	clock clock.Clock
	log   *slog.Logger

	mode     mapping.Mode
	baseline calibration.Baseline
	smooth   [2]filter.Smoother
	ema      [2]*filter.ExponentialFilter
	failures [2]int
	last     source.Reading
	haveLast bool
	offsets  [2]float64
	holdEnd  time.Time
	tick     uint64

	centerReq atomic.Bool

	mu     sync.RWMutex
	state  State
	angles [2]angle.State

	shutdown sync.Once
	relErr   error
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock used for centring holds.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithReporter sets the status observer.
func WithReporter(r status.Reporter) Option {
	return func(l *Loop) { l.rep = r }
}

// WithCalibrator sets the calibrator used for analog sources.
func WithCalibrator(c *calibration.Calibrator) Option {
	return func(l *Loop) { l.cal = c }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Loop) { l.log = lg }
}

// New builds a loop reading src and driving pan and tilt.
func New(src source.Source, pan, tilt Actuator, cfg Config, opts ...Option) (*Loop, error) {
	if src == nil || pan == nil || tilt == nil {
		return nil, errors.New("tracking: source and both actuators are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loop{
		cfg:   cfg,
		src:   src,
		act:   [2]Actuator{pan, tilt},
		clock: clock.Real{},
		mode:  ModeFor(src.Kind()),
		state: Idle,
	}
	for _, o := range opts {
		o(l)
	}
	if l.cal == nil {
		l.cal = calibration.New()
	}
	if l.rep == nil {
		l.rep = status.Multi{}
	}
	l.log = log.Or(l.log).With("component", "tracking", "source", src.Name())

	for _, ax := range angle.Axes {
		if cfg.Smoothing == filter.Exponential {
			e, err := filter.NewExponential(cfg.Factor)
			if err != nil {
				return nil, fmt.Errorf("tracking: %w", err)
			}
			l.ema[ax] = e
			l.smooth[ax] = filter.Passthrough{}
			continue
		}
		s, err := filter.New(cfg.Smoothing, cfg.Window, cfg.Factor)
		if err != nil {
			return nil, fmt.Errorf("tracking: %w", err)
		}
		l.smooth[ax] = s
	}
	return l, nil
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Angles returns the angle state of both axes.
func (l *Loop) Angles() [2]angle.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.angles
}

// Baseline returns the calibration baseline in use.
func (l *Loop) Baseline() calibration.Baseline { return l.baseline }

// RequestCenter latches a one-shot centre request for the next tick.
func (l *Loop) RequestCenter() {
	l.centerReq.Store(true)
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()
	if prev != s {
		l.log.Info("state change", "from", prev.String(), "to", s.String())
	}
}

// Start calibrates the source if it needs it, then moves both axes to
// neutral and enters Tracking. A calibration failure moves the loop to
// ShuttingDown and releases the actuators.
func (l *Loop) Start(ctx context.Context) error {
	if l.State() != Idle {
		return fmt.Errorf("tracking: Start in state %s", l.State())
	}
	switch {
	case source.NeedsCalibration(l.src):
		l.setState(Calibrating)
		res, err := l.cal.Run(ctx, l.src)
		if err != nil {
			l.log.Error("calibration failed", "err", err)
			return errors.Join(err, l.Shutdown())
		}
		l.baseline = res.Baseline
	case l.src.Kind() == source.Analog:
		x, y := l.src.(source.Neutral).Neutral()
		l.baseline = calibration.Baseline{X: x, Y: y}
	}

	targets := l.neutral()
	l.resetSmoothing(targets)
	l.mu.Lock()
	for _, ax := range angle.Axes {
		l.angles[ax] = angle.State{Current: targets[ax], Target: targets[ax]}
	}
	l.mu.Unlock()
	if err := l.drive(targets, targets, [2]bool{true, true}); err != nil {
		return errors.Join(err, l.Shutdown())
	}
	l.setState(Tracking)
	l.log.Info("tracking started", "mode", l.mode.String(), "baseline_x", l.baseline.X, "baseline_y", l.baseline.Y)
	return nil
}

func (l *Loop) neutral() [2]float64 {
	var n [2]float64
	for _, ax := range angle.Axes {
		n[ax] = l.cfg.Mapper.Limits[ax].Neutral()
	}
	return n
}

func (l *Loop) resetSmoothing(neutral [2]float64) {
	for _, ax := range angle.Axes {
		l.smooth[ax].Reset()
		if l.ema[ax] != nil {
			l.ema[ax].Seed(neutral[ax])
		}
	}
}

// acquire returns a reading, falling back to the last good one (or a
// neutral one) when the source times out or fails. fresh is false for a
// fallback reading.
func (l *Loop) acquire(ctx context.Context) (r source.Reading, fresh bool, err error) {
	r, err = l.src.Acquire(ctx)
	if err == nil {
		l.last, l.haveLast = r, true
		return r, true, nil
	}
	if ctx.Err() != nil {
		return source.Reading{}, false, ctx.Err()
	}
	if errors.Is(err, source.ErrTimeout) {
		l.log.Debug("acquisition timeout, using fallback reading", "err", err)
	} else {
		l.log.Warn("acquisition failed, using fallback reading", "err", err)
	}
	if l.haveLast {
		r = l.last
		r.Center = false
		return r, false, nil
	}
	return l.neutralReading(), false, nil
}

func (l *Loop) neutralReading() source.Reading {
	r := source.Reading{Kind: l.src.Kind()}
	if r.Kind == source.Analog {
		r.X = int(math.Round(l.baseline.X))
		r.Y = int(math.Round(l.baseline.Y))
	}
	return r
}

// Tick runs one iteration of the loop. It returns an error only when the
// loop must stop: cancellation or persistent actuator failure.
func (l *Loop) Tick(ctx context.Context) error {
	st := l.State()
	if st != Tracking && st != Centering {
		return fmt.Errorf("tracking: Tick in state %s", st)
	}
	l.tick++

	r, fresh, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	now := l.clock.Now()
	center := l.centerReq.Swap(false) || r.Center

	if st == Centering && !now.Before(l.holdEnd) {
		st = Tracking
		l.setState(Tracking)
	}

	cur := l.Angles()
	var targets, cmds [2]float64
	var active [2]bool
	switch {
	case st == Tracking && center:
		l.setState(Centering)
		l.holdEnd = now.Add(l.cfg.CenterHold)
		targets = l.neutral()
		l.resetSmoothing(targets)
		cmds, active = targets, [2]bool{true, true}
		l.log.Info("centring", "hold", l.cfg.CenterHold)
	case st == Centering:
		// Acquisition continues but mapped output is ignored.
		targets = l.neutral()
		cmds, active = targets, [2]bool{true, true}
	default:
		targets, cmds, active = l.track(r, fresh, cur)
	}

	driveErr := l.drive(targets, cmds, active)
	l.report(r, center, driveErr)
	return driveErr
}

// track computes this tick's targets from r. An axis is inactive when the
// reading carries nothing to act on (no detection). A fallback reading is
// kept out of a windowed smoother; the axis holds its target instead.
func (l *Loop) track(r source.Reading, fresh bool, cur [2]angle.State) (targets, cmds [2]float64, active [2]bool) {
	m := l.cfg.Mapper
	for _, ax := range angle.Axes {
		raw := float64(r.Axis(ax))
		targets[ax] = cur[ax].Target
		_, windowed := l.smooth[ax].(*filter.MovingAverageFilter)
		hold := !fresh && windowed
		switch l.mode {
		case mapping.Step:
			l.offsets[ax] = raw
			targets[ax] = m.Step(ax, cur[ax].Target, raw)
			active[ax] = true
		case mapping.Proportional:
			if hold {
				active[ax] = true
				break
			}
			off := filter.ApplyDeadzone(filter.Normalize(raw, l.baseline.Axis(ax)), l.cfg.Deadzone)
			off = l.smooth[ax].Update(off)
			l.offsets[ax] = off
			targets[ax] = m.Proportional(ax, off)
			active[ax] = true
		case mapping.Absolute:
			if !r.Detected {
				continue
			}
			if hold {
				active[ax] = true
				break
			}
			px := l.smooth[ax].Update(raw)
			targets[ax] = m.Absolute(ax, px, r.FrameDim(ax))
			active[ax] = true
		}

		cmds[ax] = targets[ax]
		if l.ema[ax] != nil && active[ax] {
			cmds[ax] = m.Limits[ax].Clamp(l.ema[ax].Update(targets[ax]))
		}
	}
	return targets, cmds, active
}

// drive commands the active axes concurrently. The angle state of an axis
// is committed only when its drive succeeds.
func (l *Loop) drive(targets, cmds [2]float64, active [2]bool) error {
	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for _, ax := range angle.Axes {
		if !active[ax] {
			continue
		}
		wg.Add(1)
		go func(ax angle.Axis) {
			defer wg.Done()
			errs[ax] = l.act[ax].Drive(cmds[ax])
		}(ax)
	}
	wg.Wait()

	var fatal []error
	l.mu.Lock()
	for _, ax := range angle.Axes {
		if !active[ax] {
			continue
		}
		if errs[ax] == nil {
			l.angles[ax] = angle.State{Current: cmds[ax], Target: targets[ax]}
			l.failures[ax] = 0
			continue
		}
		l.failures[ax]++
		if l.failures[ax] >= l.cfg.MaxFailures {
			fatal = append(fatal, fmt.Errorf("%w: %s failed %d consecutive ticks: %w",
				ErrActuatorFailed, ax, l.failures[ax], errs[ax]))
		}
	}
	l.mu.Unlock()

	for _, ax := range angle.Axes {
		if errs[ax] != nil {
			l.log.Warn("drive failed, skipping axis this tick", "axis", ax.String(), "failures", l.failures[ax], "err", errs[ax])
		}
	}
	return errors.Join(fatal...)
}

func (l *Loop) report(r source.Reading, center bool, err error) {
	angles := l.Angles()
	s := status.Status{
		Time:     l.clock.Now(),
		Tick:     l.tick,
		State:    l.State().String(),
		Source:   l.src.Name(),
		Mode:     l.mode.String(),
		Detected: r.Detected,
		Center:   center,
	}
	axes := [2]*status.AxisStatus{&s.Pan, &s.Tilt}
	for _, ax := range angle.Axes {
		*axes[ax] = status.AxisStatus{
			Current:  angles[ax].Current,
			Target:   angles[ax].Target,
			Raw:      r.Axis(ax),
			Offset:   l.offsets[ax],
			Failures: l.failures[ax],
		}
	}
	if err != nil {
		s.Error = err.Error()
	}
	l.rep.Report(s)
}

// Shutdown moves the loop to ShuttingDown and releases both actuators. It
// is idempotent and returns the release errors of the first call.
func (l *Loop) Shutdown() error {
	l.shutdown.Do(func() {
		l.setState(ShuttingDown)
		var errs []error
		for _, ax := range angle.Axes {
			if err := l.act[ax].Release(); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", ax, err))
			}
		}
		l.relErr = errors.Join(errs...)
		if l.relErr != nil {
			l.log.Error("actuator release failed", "err", l.relErr)
		} else {
			l.log.Info("actuators released")
		}
	})
	return l.relErr
}

// Run starts the loop and ticks every TickInterval until ctx is cancelled
// or a fatal error occurs. The actuators are released on every return path.
// Cancellation is a clean exit and returns nil.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		if rerr := l.Shutdown(); rerr != nil && !errors.Is(err, rerr) {
			err = errors.Join(err, rerr)
		}
	}()

	if err := l.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
