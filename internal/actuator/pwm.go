// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"errors"
	"math"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// HardwarePWM drives a SoC PWM pin using the duty-cycle encoding
// (Pulse.DutyPercent, i.e. 2.5 + angle*10/180 % for the default range).
type HardwarePWM struct {
	pin  gpio.PinOut
	last gpio.Duty
	on   bool
}

// NewHardwarePWM wraps a PWM-capable pin.
func NewHardwarePWM(pin gpio.PinOut) *HardwarePWM {
	return &HardwarePWM{pin: pin}
}

func (h *HardwarePWM) Emit(p Pulse) error {
	duty := gpio.Duty(math.Round(p.Duty() * float64(gpio.DutyMax)))
	// Reprogramming the PWM restarts the period on some SoCs.
	if h.on && duty == h.last {
		return nil
	}
	if err := h.pin.PWM(duty, physic.PeriodToFrequency(p.Period)); err != nil {
		return err
	}
	h.last = duty
	h.on = true
	return nil
}

func (h *HardwarePWM) Release() error {
	h.on = false
	return errors.Join(h.pin.Halt(), h.pin.Out(gpio.Low))
}
