// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
)

// pcaSteps is the resolution of one PCA9685 period.
const pcaSteps = 4096

// PWMBoard is the part of a PCA9685 used by the actuator backend.
type PWMBoard interface {
	SetPwm(channel int, on, off gpio.Duty) error
	SetFullOff(channel int) error
}

// OpenPCA9685 opens the board at addr on bus and sets its output frequency
// to the refresh period.
func OpenPCA9685(bus i2c.Bus, addr uint16, period time.Duration) (*pca9685.Dev, error) {
	dev, err := pca9685.NewI2C(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("pca9685 at 0x%02x: %w", addr, err)
	}
	if err := dev.SetPwmFreq(physic.PeriodToFrequency(period)); err != nil {
		return nil, fmt.Errorf("pca9685 set frequency: %w", err)
	}
	return dev, nil
}

// PCA9685Channel encodes a pulse as 12-bit on/off counts on one channel.
type PCA9685Channel struct {
	board   PWMBoard
	channel int
}

// NewPCA9685Channel returns the backend for one board channel (0-15).
func NewPCA9685Channel(board PWMBoard, channel int) (*PCA9685Channel, error) {
	if channel < 0 || channel > 15 {
		return nil, fmt.Errorf("pca9685 channel %d out of range [0, 15]", channel)
	}
	return &PCA9685Channel{board: board, channel: channel}, nil
}

// Counts returns the off count of p: width/period*4096.
func Counts(p Pulse) gpio.Duty {
	c := math.Round(p.Duty() * pcaSteps)
	if c > pcaSteps-1 {
		c = pcaSteps - 1
	}
	return gpio.Duty(c)
}

func (c *PCA9685Channel) Emit(p Pulse) error {
	return c.board.SetPwm(c.channel, 0, Counts(p))
}

func (c *PCA9685Channel) Release() error {
	return c.board.SetFullOff(c.channel)
}
