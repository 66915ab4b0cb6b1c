// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package actuator converts target angles into servo timing signals.
//
// A Driver owns one axis: it clamps the commanded angle, encodes it as a
// Pulse and hands it to an Output backend, then idles until the refresh
// period has elapsed so the servo is never updated faster than it is rated
// for. Backends choose the physical encoding: pulse width on a GPIO line,
// duty cycle on a hardware PWM, 12-bit counts on a PCA9685, or quarter-µs
// targets on a Pololu Maestro.
package actuator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/pantilt/internal/angle"
	"github.com/relabs-tech/pantilt/internal/clock"
	"github.com/relabs-tech/pantilt/internal/log"
)

const (
	DefaultMinPulse = 500 * time.Microsecond
	DefaultMaxPulse = 2500 * time.Microsecond

	// DefaultPeriod is the 50 Hz refresh rate of a standard hobby servo.
	DefaultPeriod = 20 * time.Millisecond
)

// ErrReleased is returned by Drive after Release.
var ErrReleased = errors.New("actuator: released")

// IOError is a failure of the physical output of one axis.
type IOError struct {
	Axis angle.Axis
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("actuator %s: %s: %v", e.Axis, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// PulseMap is the linear, strictly increasing map from angle to pulse width.
type PulseMap struct {
	Limits   angle.Limits
	MinPulse time.Duration
	MaxPulse time.Duration
}

// DefaultPulseMap maps 0-180° onto 500-2500 µs.
var DefaultPulseMap = PulseMap{
	Limits:   angle.DefaultLimits,
	MinPulse: DefaultMinPulse,
	MaxPulse: DefaultMaxPulse,
}

// Validate checks that the map is strictly increasing.
func (m PulseMap) Validate() error {
	if err := m.Limits.Validate(); err != nil {
		return err
	}
	if m.MinPulse <= 0 || m.MaxPulse <= m.MinPulse {
		return fmt.Errorf("pulse range must satisfy 0 < min < max, got [%v, %v]", m.MinPulse, m.MaxPulse)
	}
	return nil
}

// Width returns the pulse width for a, after clamping a into the limits.
func (m PulseMap) Width(a float64) time.Duration {
	a = m.Limits.Clamp(a)
	frac := (a - m.Limits.Min) / m.Limits.Span()
	span := float64(m.MaxPulse - m.MinPulse)
	return m.MinPulse + time.Duration(math.Round(frac*span))
}

// Pulse is one servo command.
type Pulse struct {
	Angle  float64
	Width  time.Duration
	Period time.Duration
}

// Duty returns the high fraction of the period, in [0, 1].
func (p Pulse) Duty() float64 {
	if p.Period <= 0 {
		return 0
	}
	d := float64(p.Width) / float64(p.Period)
	return math.Max(0, math.Min(1, d))
}

// DutyPercent returns Duty as a percentage.
func (p Pulse) DutyPercent() float64 {
	return p.Duty() * 100
}

// ServoDutyPercent is the classic hobby-servo duty encoding at 50 Hz:
// 2.5% at 0° up to 12.5% at 180°. It equals DutyPercent of the default
// pulse map at the default period.
func ServoDutyPercent(a float64) float64 {
	return 2.5 + a*10/180
}

// Output is the physical backend of one axis.
type Output interface {
	// Emit sends one pulse. Software backends block for the pulse width;
	// hardware backends latch the new setting and return.
	Emit(p Pulse) error
	// Release leaves the line unpowered (low, full-off or target 0).
	Release() error
}

// Driver drives a single axis. Drive and Release are safe to call from
// different goroutines, but one axis is normally driven by one caller.
type Driver struct {
	axis   angle.Axis
	out    Output
	pulses PulseMap
	period time.Duration
	clock  clock.Clock
	log    *slog.Logger

	mu       sync.Mutex
	nextSlot time.Time
	last     float64
	emitted  bool
	released bool
}

// Option customizes a Driver.
type Option func(*Driver)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithPeriod sets the refresh period.
func WithPeriod(p time.Duration) Option {
	return func(d *Driver) { d.period = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// NewDriver returns a driver for axis writing to out.
func NewDriver(axis angle.Axis, out Output, pulses PulseMap, opts ...Option) (*Driver, error) {
	if out == nil {
		return nil, fmt.Errorf("actuator %s: nil output", axis)
	}
	if err := pulses.Validate(); err != nil {
		return nil, fmt.Errorf("actuator %s: %w", axis, err)
	}
	d := &Driver{
		axis:   axis,
		out:    out,
		pulses: pulses,
		period: DefaultPeriod,
		clock:  clock.Real{},
	}
	for _, o := range opts {
		o(d)
	}
	if d.period < pulses.MaxPulse {
		return nil, fmt.Errorf("actuator %s: refresh period %v shorter than max pulse %v", axis, d.period, pulses.MaxPulse)
	}
	d.log = log.Or(d.log).With("component", "actuator", "axis", axis.String())
	return d, nil
}

// Axis returns the driven axis.
func (d *Driver) Axis() angle.Axis { return d.axis }

// Limits returns the angle limits of the driver.
func (d *Driver) Limits() angle.Limits { return d.pulses.Limits }

// Last returns the last angle emitted successfully.
func (d *Driver) Last() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.emitted
}

// Drive emits exactly one pulse for a and returns once the refresh period
// that started with the pulse has elapsed. Out-of-range angles are a caller
// bug; they are clamped and logged rather than sent to the servo.
func (d *Driver) Drive(a float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return &IOError{Axis: d.axis, Op: "drive", Err: ErrReleased}
	}

	if err := d.pulses.Limits.Check(a); err != nil {
		d.log.Debug("clamping command", "err", err)
		a = d.pulses.Limits.Clamp(a)
	}

	clock.SleepUntil(d.clock, d.nextSlot)
	start := d.clock.Now()
	d.nextSlot = start.Add(d.period)

	p := Pulse{Angle: a, Width: d.pulses.Width(a), Period: d.period}
	if err := d.out.Emit(p); err != nil {
		return &IOError{Axis: d.axis, Op: "emit", Err: err}
	}
	d.last = a
	d.emitted = true

	clock.SleepUntil(d.clock, d.nextSlot)
	return nil
}

// Release leaves the output unpowered. Further Drive calls fail.
func (d *Driver) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	if err := d.out.Release(); err != nil {
		return &IOError{Axis: d.axis, Op: "release", Err: err}
	}
	d.log.Debug("released")
	return nil
}
