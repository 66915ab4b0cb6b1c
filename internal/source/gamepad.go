// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/relabs-tech/pantilt/internal/log"
)

// Linux joystick API event types (linux/joystick.h).
const (
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80
)

// GamepadNeutral is the reading of a centred stick. Raw stick values in
// [-32767, 32767] are re-expressed around it so readings stay positive.
const GamepadNeutral = 32768

// jsEvent is the 8-byte record read from /dev/input/js*.
type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

// GamepadConfig maps gamepad controls onto the rig.
type GamepadConfig struct {
	Device       string
	AxisX        uint8 // stick left/right
	AxisY        uint8 // stick up/down
	CenterButton uint8
}

// Gamepad is a Linux joystick-API device read in the background. Readings
// follow the rig convention: pushing right or up gives a reading below
// GamepadNeutral.
type Gamepad struct {
	cfg GamepadConfig
	dev io.ReadCloser
	log *slog.Logger

	mu     sync.Mutex
	x, y   int16
	center bool
	err    error

	done chan struct{}
}

// OpenGamepad opens cfg.Device and starts reading events.
func OpenGamepad(cfg GamepadConfig) (*Gamepad, error) {
	f, err := os.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("gamepad: %w", err)
	}
	return NewGamepad(f, cfg), nil
}

// NewGamepad reads joystick events from dev until it is closed.
func NewGamepad(dev io.ReadCloser, cfg GamepadConfig) *Gamepad {
	g := &Gamepad{
		cfg:  cfg,
		dev:  dev,
		log:  log.With("component", "gamepad", "device", cfg.Device),
		done: make(chan struct{}),
	}
	go g.readLoop()
	return g
}

func (g *Gamepad) readLoop() {
	defer close(g.done)
	for {
		var ev jsEvent
		if err := binary.Read(g.dev, binary.LittleEndian, &ev); err != nil {
			g.mu.Lock()
			g.err = err
			g.mu.Unlock()
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.EOF) {
				g.log.Warn("gamepad read failed", "err", err)
			}
			return
		}
		g.apply(ev)
	}
}

func (g *Gamepad) apply(ev jsEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch ev.Type &^ jsEventInit {
	case jsEventAxis:
		switch ev.Number {
		case g.cfg.AxisX:
			g.x = ev.Value
		case g.cfg.AxisY:
			g.y = ev.Value
		}
	case jsEventButton:
		if ev.Number == g.cfg.CenterButton {
			g.center = ev.Value != 0
		}
	}
}

func (g *Gamepad) Name() string { return "gamepad" }
func (g *Gamepad) Kind() Kind   { return Analog }

// Neutral returns the fixed centre; a gamepad needs no sampling calibration.
func (g *Gamepad) Neutral() (x, y float64) {
	return GamepadNeutral, GamepadNeutral
}

// Acquire returns the latest stick state. It fails once the device is gone.
func (g *Gamepad) Acquire(ctx context.Context) (Reading, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return Reading{}, fmt.Errorf("gamepad: %w", g.err)
	}
	// Right is positive on the device; up is negative.
	return Reading{
		Kind:   Analog,
		X:      floorReading(GamepadNeutral - int(g.x)),
		Y:      floorReading(GamepadNeutral + int(g.y)),
		Max:    2 * GamepadNeutral,
		Center: g.center,
	}, nil
}

// Close closes the device and waits for the reader to stop.
func (g *Gamepad) Close() error {
	err := g.dev.Close()
	<-g.done
	return err
}
