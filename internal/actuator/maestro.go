// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

// cmdSetTarget is the Maestro compact-protocol "set target" command.
const cmdSetTarget = 0x84

// Maestro is a Pololu Maestro servo controller on a serial port. Several
// channels share one port.
type Maestro struct {
	mu   sync.Mutex
	port io.Writer
	c    io.Closer
}

// OpenMaestro opens the controller's command port (e.g. /dev/ttyACM0).
func OpenMaestro(portName string, baud uint) (*Maestro, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("maestro: open %s: %w", portName, err)
	}
	return &Maestro{port: port, c: port}, nil
}

// NewMaestro wraps an already open port.
func NewMaestro(w io.Writer) *Maestro {
	m := &Maestro{port: w}
	if c, ok := w.(io.Closer); ok {
		m.c = c
	}
	return m
}

// SetTarget sends a target in quarter-microseconds. Zero stops pulses.
func (m *Maestro) SetTarget(channel uint8, quarterMicros uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := []byte{cmdSetTarget, channel, byte(quarterMicros & 0x7F), byte((quarterMicros >> 7) & 0x7F)}
	if _, err := m.port.Write(cmd); err != nil {
		return fmt.Errorf("maestro: channel %d: %w", channel, err)
	}
	return nil
}

// Channel returns the actuator backend for one Maestro channel.
func (m *Maestro) Channel(ch uint8) *MaestroChannel {
	return &MaestroChannel{m: m, channel: ch}
}

func (m *Maestro) Close() error {
	if m.c == nil {
		return nil
	}
	return m.c.Close()
}

// MaestroChannel encodes the pulse width as a Maestro target.
type MaestroChannel struct {
	m       *Maestro
	channel uint8
}

func (c *MaestroChannel) Emit(p Pulse) error {
	q := p.Width.Microseconds() * 4
	if q > 0x3FFF {
		q = 0x3FFF
	}
	return c.m.SetTarget(c.channel, uint16(q))
}

func (c *MaestroChannel) Release() error {
	return c.m.SetTarget(c.channel, 0)
}
