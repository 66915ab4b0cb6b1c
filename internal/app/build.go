// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/pantilt/internal/actuator"
	"github.com/relabs-tech/pantilt/internal/angle"
	"github.com/relabs-tech/pantilt/internal/calibration"
	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/filter"
	"github.com/relabs-tech/pantilt/internal/mapping"
	"github.com/relabs-tech/pantilt/internal/rig"
	"github.com/relabs-tech/pantilt/internal/source"
	"github.com/relabs-tech/pantilt/internal/tracking"
	"github.com/relabs-tech/pantilt/internal/vision"
)

// recorderHistory bounds the pulse history of mock actuators.
const recorderHistory = 256

func angleLimits(cfg *config.Config) [2]angle.Limits {
	return [2]angle.Limits{
		angle.Horizontal: {Min: cfg.PanMin, Max: cfg.PanMax},
		angle.Vertical:   {Min: cfg.TiltMin, Max: cfg.TiltMax},
	}
}

func pulseMap(cfg *config.Config, ax angle.Axis) actuator.PulseMap {
	return actuator.PulseMap{
		Limits:   angleLimits(cfg)[ax],
		MinPulse: time.Duration(cfg.MinPulseUs) * time.Microsecond,
		MaxPulse: time.Duration(cfg.MaxPulseUs) * time.Microsecond,
	}
}

func loopConfig(cfg *config.Config) (tracking.Config, error) {
	family, err := filter.ParseFamily(cfg.Smoothing)
	if err != nil {
		return tracking.Config{}, err
	}
	m := mapping.New(angleLimits(cfg))
	m.StepSize = cfg.StepSize
	m.Sensitivity = cfg.Sensitivity
	m.Invert = [2]bool{cfg.InvertPan, cfg.InvertTilt}

	lc := tracking.Config{
		Mapper:       m,
		Deadzone:     cfg.Deadzone,
		Smoothing:    family,
		Window:       cfg.SmoothingWindow,
		Factor:       cfg.SmoothingFactor,
		TickInterval: config.Ms(cfg.TickIntervalMs),
		CenterHold:   config.Ms(cfg.CenterHoldMs),
		MaxFailures:  cfg.MaxActuatorFailures,
	}
	return lc, lc.Validate()
}

func newCalibrator(cfg *config.Config) *calibration.Calibrator {
	c := calibration.New()
	c.Samples = cfg.CalibrationSamples
	c.Settle = config.Ms(cfg.CalibrationSettleMs)
	return c
}

// optionalLine returns nil for an unconfigured pin.
func optionalLine(r *rig.Rig, name string) (rig.Line, error) {
	if name == "" {
		return nil, nil
	}
	return r.Line(name)
}

func lines(r *rig.Rig, names ...string) ([]rig.Line, error) {
	out := make([]rig.Line, len(names))
	for i, n := range names {
		l, err := r.Line(n)
		if err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}

// openSource builds the configured signal source. The source is tracked by
// the rig and closed with it.
func openSource(cfg *config.Config, r *rig.Rig) (source.Source, error) {
	src, err := newSource(cfg, r)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Source, err)
	}
	r.Track(src)
	return src, nil
}

func newSource(cfg *config.Config, r *rig.Rig) (source.Source, error) {
	switch cfg.Source {
	case config.SourceButtons:
		ls, err := lines(r, cfg.ButtonUpPin, cfg.ButtonDownPin, cfg.ButtonLeftPin, cfg.ButtonRightPin)
		if err != nil {
			return nil, err
		}
		center, err := optionalLine(r, cfg.CenterPin)
		if err != nil {
			return nil, err
		}
		return source.NewButtons(source.ButtonLines{Up: ls[0], Down: ls[1], Left: ls[2], Right: ls[3], Center: center})

	case config.SourceRCJoystick:
		ls, err := lines(r, cfg.RCXPin, cfg.RCYPin)
		if err != nil {
			return nil, err
		}
		center, err := optionalLine(r, cfg.CenterPin)
		if err != nil {
			return nil, err
		}
		rc := source.RCConfig{
			Timeout:   config.Ms(cfg.RCTimeoutMs),
			Discharge: config.Ms(cfg.RCDischargeMs),
			Poll:      time.Duration(cfg.RCPollUs) * time.Microsecond,
		}
		return source.NewRCJoystick(ls[0], ls[1], center, rc, nil)

	case config.SourceADC:
		bus, err := r.I2C(cfg.ADCI2CBus)
		if err != nil {
			return nil, err
		}
		x, y, err := source.OpenADS1115(bus, source.ADCConfig{
			Address:  cfg.ADCI2CAddr,
			XChannel: cfg.ADCXChannel,
			YChannel: cfg.ADCYChannel,
		})
		if err != nil {
			return nil, err
		}
		return source.NewADC(x, y, cfg.ADCMaxCount), nil

	case config.SourceGamepad:
		return source.OpenGamepad(source.GamepadConfig{
			Device:       cfg.GamepadDevice,
			AxisX:        cfg.GamepadAxisX,
			AxisY:        cfg.GamepadAxisY,
			CenterButton: cfg.GamepadCenterButton,
		})

	case config.SourceVision:
		cam, err := vision.OpenCamera(vision.CameraConfig{
			Device: cfg.CameraDevice,
			Width:  cfg.CameraWidth,
			HueMin: cfg.HueMin, HueMax: cfg.HueMax,
			SatMin: cfg.SatMin, SatMax: cfg.SatMax,
			ValMin: cfg.ValMin, ValMax: cfg.ValMax,
			MinArea: cfg.MinBlobArea,
		})
		if err != nil {
			return nil, err
		}
		return source.NewVisionCentroid(cam), nil

	case config.SourceMock:
		return source.NewMock(), nil

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// outputs builds the pan and tilt outputs of the configured backend.
func outputs(cfg *config.Config, r *rig.Rig) ([2]actuator.Output, error) {
	var out [2]actuator.Output
	switch cfg.ActuatorBackend {
	case config.BackendSoft:
		ls, err := lines(r, cfg.PanPin, cfg.TiltPin)
		if err != nil {
			return out, err
		}
		for i, l := range ls {
			if out[i], err = actuator.NewSoftPulse(l, nil); err != nil {
				return out, err
			}
		}

	case config.BackendPWM:
		for i, name := range []string{cfg.PanPin, cfg.TiltPin} {
			pin, err := r.Pin(name)
			if err != nil {
				return out, err
			}
			out[i] = actuator.NewHardwarePWM(pin)
		}

	case config.BackendPCA9685:
		bus, err := r.I2C(cfg.PCA9685I2CBus)
		if err != nil {
			return out, err
		}
		board, err := actuator.OpenPCA9685(bus, cfg.PCA9685I2CAddr, config.Ms(cfg.RefreshPeriodMs))
		if err != nil {
			return out, err
		}
		for i, ch := range []int{cfg.PanChannel, cfg.TiltChannel} {
			if out[i], err = actuator.NewPCA9685Channel(board, ch); err != nil {
				return out, err
			}
		}

	case config.BackendMaestro:
		m, err := actuator.OpenMaestro(cfg.MaestroSerialPort, uint(cfg.MaestroBaudRate))
		if err != nil {
			return out, err
		}
		r.Track(m)
		out[0] = m.Channel(uint8(cfg.PanChannel))
		out[1] = m.Channel(uint8(cfg.TiltChannel))

	case config.BackendMock:
		for i := range out {
			rec := actuator.NewRecorder(nil)
			rec.Keep(recorderHistory)
			out[i] = rec
		}

	default:
		return out, fmt.Errorf("unknown actuator backend %q", cfg.ActuatorBackend)
	}
	return out, nil
}

// openActuators builds one rate-limited driver per axis.
func openActuators(cfg *config.Config, r *rig.Rig) ([2]*actuator.Driver, error) {
	var drivers [2]*actuator.Driver
	out, err := outputs(cfg, r)
	if err != nil {
		return drivers, fmt.Errorf("actuator backend %s: %w", cfg.ActuatorBackend, err)
	}
	for _, ax := range angle.Axes {
		d, err := actuator.NewDriver(ax, out[ax], pulseMap(cfg, ax), actuator.WithPeriod(config.Ms(cfg.RefreshPeriodMs)))
		if err != nil {
			return drivers, err
		}
		drivers[ax] = d
	}
	return drivers, nil
}
