// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package rig owns the process-wide hardware handles of the pan/tilt rig:
// the periph host, GPIO lines and I2C buses. Everything opened through a Rig
// is released by Rig.Close, which every exit path must reach.
package rig

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/pantilt/internal/log"
)

// ErrClosed is returned when a handle is requested after Close.
var ErrClosed = errors.New("rig: closed")

// Rig is an explicitly constructed, explicitly torn-down hardware handle.
type Rig struct {
	mock bool
	log  *slog.Logger

	mu      sync.Mutex
	closed  bool
	lines   map[string]Line
	pins    []*pinLine
	raw     map[string]gpio.PinIO
	buses   map[string]i2c.BusCloser
	closers []io.Closer
}

// Open initializes the periph host drivers and returns a rig backed by real
// hardware.
func Open() (*Rig, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	r := newRig(false)
	r.log.Info("periph host initialized", "drivers", len(state.Loaded), "failed", len(state.Failed))
	return r, nil
}

// Mock returns a rig whose lines are in-memory MemLines. It has no buses.
func Mock() *Rig {
	return newRig(true)
}

func newRig(mock bool) *Rig {
	return &Rig{
		mock:  mock,
		log:   log.With("component", "rig"),
		lines: map[string]Line{},
		raw:   map[string]gpio.PinIO{},
		buses: map[string]i2c.BusCloser{},
	}
}

// IsMock reports whether the rig is in-memory.
func (r *Rig) IsMock() bool { return r.mock }

// Line returns the digital line with the given periph pin name (e.g. "GPIO17").
// Repeated calls return the same line.
func (r *Rig) Line(name string) (Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if l, ok := r.lines[name]; ok {
		return l, nil
	}
	if r.mock {
		l := NewMemLine(name, true)
		r.lines[name] = l
		return l, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("rig: pin %q not found", name)
	}
	l := &pinLine{pin: p}
	r.lines[name] = l
	r.pins = append(r.pins, l)
	return l, nil
}

// Pin returns the raw periph pin, for backends that need more than Line
// (hardware PWM). The pin is halted on Close.
func (r *Rig) Pin(name string) (gpio.PinIO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.mock {
		return nil, fmt.Errorf("rig: raw pin %q unavailable on mock rig", name)
	}
	if p, ok := r.raw[name]; ok {
		return p, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("rig: pin %q not found", name)
	}
	r.raw[name] = p
	return p, nil
}

// I2C opens (once) the named I2C bus; "" selects the default bus.
func (r *Rig) I2C(name string) (i2c.Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.mock {
		return nil, fmt.Errorf("rig: I2C bus %q unavailable on mock rig", name)
	}
	if b, ok := r.buses[name]; ok {
		return b, nil
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("rig: open I2C bus %q: %w", name, err)
	}
	r.buses[name] = b
	return b, nil
}

// Track registers c to be closed by Close, before lines and buses.
func (r *Rig) Track(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, c)
}

// Close releases everything opened through the rig: tracked closers in
// reverse order, then GPIO lines (outputs left low), raw pins, and buses.
// It is safe to call more than once.
func (r *Rig) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, l := range r.pins {
		if err := l.release(); err != nil {
			errs = append(errs, err)
		}
	}
	for name, p := range r.raw {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("pin %s: halt: %w", name, err))
		}
	}
	for name, b := range r.buses {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("I2C bus %q: close: %w", name, err))
		}
	}
	if r.mock {
		for _, l := range r.lines {
			if m, ok := l.(*MemLine); ok && m.Direction() == Output {
				_ = m.Write(false)
			}
		}
	}
	r.log.Info("rig released", "lines", len(r.lines), "buses", len(r.buses), "errors", len(errs))
	return errors.Join(errs...)
}
