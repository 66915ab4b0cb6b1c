// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"context"
	"fmt"

	"github.com/relabs-tech/pantilt/internal/rig"
)

// ButtonLines are the active-low inputs of a digital joystick. Center may
// be nil.
type ButtonLines struct {
	Up, Down, Left, Right rig.Line
	Center                rig.Line
}

// Buttons reads a four-way digital joystick as step intents:
// X = right - left, Y = up - down.
type Buttons struct {
	lines ButtonLines
}

// NewButtons configures the lines as pulled-up inputs.
func NewButtons(lines ButtonLines) (*Buttons, error) {
	for _, l := range []rig.Line{lines.Up, lines.Down, lines.Left, lines.Right} {
		if l == nil {
			return nil, fmt.Errorf("buttons: all four direction lines are required")
		}
	}
	for _, l := range []rig.Line{lines.Up, lines.Down, lines.Left, lines.Right, lines.Center} {
		if l == nil {
			continue
		}
		if err := l.Configure(rig.Input, rig.PullUp); err != nil {
			return nil, fmt.Errorf("buttons: %w", err)
		}
	}
	return &Buttons{lines: lines}, nil
}

func (b *Buttons) Name() string { return "buttons" }
func (b *Buttons) Kind() Kind   { return Directional }

func (b *Buttons) Acquire(ctx context.Context) (Reading, error) {
	l := b.lines
	r := Reading{
		Kind: Directional,
		X:    boolToInt(rig.Pressed(l.Right)) - boolToInt(rig.Pressed(l.Left)),
		Y:    boolToInt(rig.Pressed(l.Up)) - boolToInt(rig.Pressed(l.Down)),
	}
	if l.Center != nil {
		r.Center = rig.Pressed(l.Center)
	}
	return r, nil
}

// Close is a no-op; the lines belong to the rig.
func (b *Buttons) Close() error { return nil }
