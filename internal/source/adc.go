// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

// ADCChannel is one analog input.
type ADCChannel interface {
	Read() (analog.Sample, error)
}

// ADCConfig selects the ADS1115 channels of the joystick.
type ADCConfig struct {
	Address  uint16
	XChannel int
	YChannel int
	// MaxVoltage is the full-scale range passed to the converter.
	MaxVoltage physic.ElectricPotential
}

var adsChannels = []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

// OpenADS1115 opens the joystick channels of an ADS1115 on bus.
func OpenADS1115(bus i2c.Bus, cfg ADCConfig) (x, y ADCChannel, err error) {
	if cfg.XChannel < 0 || cfg.XChannel > 3 || cfg.YChannel < 0 || cfg.YChannel > 3 {
		return nil, nil, fmt.Errorf("ads1115: channels must be in [0, 3], got x=%d y=%d", cfg.XChannel, cfg.YChannel)
	}
	opts := ads1x15.DefaultOpts
	if cfg.Address != 0 {
		opts.I2cAddress = cfg.Address
	}
	if cfg.MaxVoltage == 0 {
		cfg.MaxVoltage = 5 * physic.Volt
	}
	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		return nil, nil, fmt.Errorf("ads1115 at 0x%02x: %w", opts.I2cAddress, err)
	}
	px, err := adc.PinForChannel(adsChannels[cfg.XChannel], cfg.MaxVoltage, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return nil, nil, fmt.Errorf("ads1115 channel %d: %w", cfg.XChannel, err)
	}
	py, err := adc.PinForChannel(adsChannels[cfg.YChannel], cfg.MaxVoltage, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		_ = px.Halt()
		return nil, nil, fmt.Errorf("ads1115 channel %d: %w", cfg.YChannel, err)
	}
	return px, py, nil
}

// ADC reads an analog joystick through an analog-to-digital converter.
// Raw counts are floored to MinReading.
type ADC struct {
	x, y ADCChannel
	max  int
}

// NewADC returns a joystick on two converter channels whose counts top out
// at maxCount (32767 for a single-ended ADS1115).
func NewADC(x, y ADCChannel, maxCount int) *ADC {
	return &ADC{x: x, y: y, max: maxCount}
}

func (a *ADC) Name() string { return "adc" }
func (a *ADC) Kind() Kind   { return Analog }

func (a *ADC) Acquire(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	sx, err := a.x.Read()
	if err != nil {
		return Reading{}, fmt.Errorf("adc x: %w", err)
	}
	sy, err := a.y.Read()
	if err != nil {
		return Reading{}, fmt.Errorf("adc y: %w", err)
	}
	return Reading{
		Kind: Analog,
		X:    floorReading(int(sx.Raw)),
		Y:    floorReading(int(sy.Raw)),
		Max:  a.max,
	}, nil
}

// Close halts the converter channels.
func (a *ADC) Close() error {
	var errs []error
	for _, ch := range []ADCChannel{a.x, a.y} {
		if h, ok := ch.(interface{ Halt() error }); ok {
			errs = append(errs, h.Halt())
		}
	}
	return errors.Join(errs...)
}
