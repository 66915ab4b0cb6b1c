// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package rig

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Direction of a digital line.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "out"
	}
	return "in"
}

// Pull is the input bias of a digital line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Line is one digital I/O line. Buttons and switches are wired active-low:
// Read() == false means pressed.
type Line interface {
	Name() string
	Configure(dir Direction, pull Pull) error
	Read() bool
	Write(high bool) error
}

// Pressed reads an active-low input.
func Pressed(l Line) bool {
	return !l.Read()
}

// pinLine adapts a periph GPIO pin to Line.
type pinLine struct {
	pin gpio.PinIO

	mu  sync.Mutex
	dir Direction
}

func (l *pinLine) Name() string { return l.pin.Name() }

func (l *pinLine) Configure(dir Direction, pull Pull) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	switch dir {
	case Output:
		err = l.pin.Out(gpio.Low)
	default:
		err = l.pin.In(toPeriphPull(pull), gpio.NoEdge)
	}
	if err != nil {
		return fmt.Errorf("line %s: configure %s: %w", l.pin.Name(), dir, err)
	}
	l.dir = dir
	return nil
}

func (l *pinLine) Read() bool {
	return l.pin.Read() == gpio.High
}

func (l *pinLine) Write(high bool) error {
	if err := l.pin.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("line %s: write: %w", l.pin.Name(), err)
	}
	return nil
}

// release leaves output lines driven low and halts the pin.
func (l *pinLine) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dir == Output {
		if err := l.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("line %s: drive low: %w", l.pin.Name(), err)
		}
	}
	if err := l.pin.Halt(); err != nil {
		return fmt.Errorf("line %s: halt: %w", l.pin.Name(), err)
	}
	return nil
}

func toPeriphPull(p Pull) gpio.Pull {
	switch p {
	case PullUp:
		return gpio.PullUp
	case PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

// MemLine is an in-memory Line used by the mock rig and tests.
// Inputs idle high as if pulled up.
type MemLine struct {
	name string

	mu     sync.Mutex
	level  bool
	dir    Direction
	pull   Pull
	writes []bool

	// ReadFunc, when set, replaces the stored level on Read.
	ReadFunc func() bool
}

// NewMemLine returns a line resting at the given level.
func NewMemLine(name string, level bool) *MemLine {
	return &MemLine{name: name, level: level}
}

func (m *MemLine) Name() string { return m.name }

func (m *MemLine) Configure(dir Direction, pull Pull) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dir = dir
	m.pull = pull
	if dir == Output {
		m.level = false
	}
	return nil
}

func (m *MemLine) Read() bool {
	m.mu.Lock()
	fn := m.ReadFunc
	level := m.level
	m.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return level
}

func (m *MemLine) Write(high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = high
	m.writes = append(m.writes, high)
	return nil
}

// Set drives the line from outside, e.g. a simulated button.
func (m *MemLine) Set(high bool) {
	m.mu.Lock()
	m.level = high
	m.mu.Unlock()
}

// Level returns the last level written or set.
func (m *MemLine) Level() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Direction returns the configured direction.
func (m *MemLine) Direction() Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dir
}

// Writes returns every level written so far.
func (m *MemLine) Writes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.writes...)
}
