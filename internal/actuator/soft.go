// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"

	"github.com/relabs-tech/pantilt/internal/clock"
	"github.com/relabs-tech/pantilt/internal/rig"
)

// SoftPulse generates the pulse in software on a plain GPIO line: high for
// the pulse width, then low. The Driver provides the idle part of the period.
type SoftPulse struct {
	line  rig.Line
	clock clock.Clock
}

// NewSoftPulse configures line as an output (initially low).
func NewSoftPulse(line rig.Line, c clock.Clock) (*SoftPulse, error) {
	if c == nil {
		c = clock.Real{}
	}
	if err := line.Configure(rig.Output, rig.PullNone); err != nil {
		return nil, fmt.Errorf("soft pulse: %w", err)
	}
	return &SoftPulse{line: line, clock: c}, nil
}

func (s *SoftPulse) Emit(p Pulse) error {
	if err := s.line.Write(true); err != nil {
		return err
	}
	s.clock.Sleep(p.Width)
	return s.line.Write(false)
}

func (s *SoftPulse) Release() error {
	return s.line.Write(false)
}
