// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Signal sources.
const (
	SourceButtons    = "buttons"
	SourceRCJoystick = "rc_joystick"
	SourceADC        = "adc"
	SourceGamepad    = "gamepad"
	SourceVision     = "vision"
	SourceMock       = "mock"
)

// Actuator backends.
const (
	BackendSoft    = "soft"
	BackendPWM     = "pwm"
	BackendPCA9685 = "pca9685"
	BackendMaestro = "maestro"
	BackendMock    = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// Source
	Source string

	// Buttons (active low, pulled up)
	ButtonUpPin    string
	ButtonDownPin  string
	ButtonLeftPin  string
	ButtonRightPin string
	// CenterPin is an optional centre button for the button and RC sources.
	CenterPin string

	// RC-timing joystick
	RCXPin        string
	RCYPin        string
	RCTimeoutMs   int
	RCDischargeMs int
	RCPollUs      int

	// ADS1115 joystick
	ADCI2CBus   string
	ADCI2CAddr  uint16
	ADCXChannel int
	ADCYChannel int
	ADCMaxCount int

	// Gamepad
	GamepadDevice       string
	GamepadAxisX        uint8
	GamepadAxisY        uint8
	GamepadCenterButton uint8

	// Camera
	CameraDevice int
	CameraWidth  int // 0 keeps the native width
	HueMin       byte
	HueMax       byte // below HueMin wraps around red
	SatMin       byte
	SatMax       byte
	ValMin       byte
	ValMax       byte
	MinBlobArea  int

	// Actuators
	ActuatorBackend   string
	PanPin            string
	TiltPin           string
	PanChannel        int
	TiltChannel       int
	PCA9685I2CBus     string
	PCA9685I2CAddr    uint16
	MaestroSerialPort string
	MaestroBaudRate   int

	// Angle and pulse limits
	PanMin          float64
	PanMax          float64
	TiltMin         float64
	TiltMax         float64
	MinPulseUs      int
	MaxPulseUs      int
	RefreshPeriodMs int

	// Calibration
	CalibrationSamples  int
	CalibrationSettleMs int

	// Processing
	Deadzone        float64
	StepSize        float64
	Sensitivity     float64
	InvertPan       bool
	InvertTilt      bool
	Smoothing       string // none, moving_average or exponential
	SmoothingWindow int
	SmoothingFactor float64

	// Loop
	TickIntervalMs      int
	CenterHoldMs        int
	MaxActuatorFailures int

	// MQTT (empty broker disables publishing)
	MQTTBroker          string
	MQTTClientIDTracker string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	TopicStatus         string

	// Display
	DisplayEnabled        bool
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	// Web Server
	WebServerPort int

	// Logging
	LogLevel           string
	ConsoleLogInterval int // milliseconds
}

// Default returns a configuration for a bench rig: synthetic source,
// printing actuators and 0-180° servos on 500-2500µs pulses.
func Default() *Config {
	return &Config{
		Source: SourceMock,

		ButtonUpPin:    "GPIO5",
		ButtonDownPin:  "GPIO6",
		ButtonLeftPin:  "GPIO16",
		ButtonRightPin: "GPIO26",

		RCXPin:        "GPIO20",
		RCYPin:        "GPIO21",
		RCTimeoutMs:   100,
		RCDischargeMs: 5,
		RCPollUs:      10,

		ADCI2CBus:   "",
		ADCI2CAddr:  0x48,
		ADCXChannel: 0,
		ADCYChannel: 1,
		ADCMaxCount: 32767,

		GamepadDevice:       "/dev/input/js0",
		GamepadAxisX:        0,
		GamepadAxisY:        1,
		GamepadCenterButton: 0,

		CameraDevice: 0,
		CameraWidth:  640,
		HueMin:       170,
		HueMax:       10,
		SatMin:       120,
		SatMax:       255,
		ValMin:       70,
		ValMax:       255,
		MinBlobArea:  20,

		ActuatorBackend: BackendMock,
		PanPin:          "GPIO18",
		TiltPin:         "GPIO13",
		PanChannel:      0,
		TiltChannel:     1,
		PCA9685I2CAddr:  0x40,
		MaestroBaudRate: 9600,

		PanMin:          0,
		PanMax:          180,
		TiltMin:         0,
		TiltMax:         180,
		MinPulseUs:      500,
		MaxPulseUs:      2500,
		RefreshPeriodMs: 20,

		CalibrationSamples:  8,
		CalibrationSettleMs: 50,

		Deadzone:        0.15,
		StepSize:        2,
		Sensitivity:     1,
		Smoothing:       "none",
		SmoothingWindow: 5,
		SmoothingFactor: 0.3,

		TickIntervalMs:      50,
		CenterHoldMs:        500,
		MaxActuatorFailures: 5,

		MQTTClientIDTracker: "pantilt-tracker",
		MQTTClientIDConsole: "pantilt-console",
		MQTTClientIDWeb:     "pantilt-web",
		TopicStatus:         "pantilt/status",

		DisplayUpdateInterval: 200,

		WebServerPort: 8080,

		LogLevel:           "info",
		ConsoleLogInterval: 500,
	}
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only set through InitGlobal.
//   - configOnce makes InitGlobal run once.
//   - configMu guards reads against initialization.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads a configuration file over Default. Files ending in .yaml or
// .yml are YAML mappings of the same keys; anything else is KEY=VALUE.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = cfg.loadYAML(file)
	default:
		err = cfg.loadKeyValue(file)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadKeyValue(file *os.File) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func (c *Config) loadYAML(file *os.File) error {
	values := map[string]interface{}{}
	if err := yaml.NewDecoder(file).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading config file: %w", err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.setValue(k, fmt.Sprint(values[k])); err != nil {
			return fmt.Errorf("config key %s: %w", k, err)
		}
	}
	return nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return uint16(addr), nil
}

const maxInt = int(^uint(0) >> 1)

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	var n int
	switch key {
	// Source
	case "SOURCE":
		c.Source = value

	// Buttons
	case "BUTTON_UP_PIN":
		c.ButtonUpPin = value
	case "BUTTON_DOWN_PIN":
		c.ButtonDownPin = value
	case "BUTTON_LEFT_PIN":
		c.ButtonLeftPin = value
	case "BUTTON_RIGHT_PIN":
		c.ButtonRightPin = value
	case "CENTER_PIN":
		c.CenterPin = value

	// RC joystick
	case "RC_X_PIN":
		c.RCXPin = value
	case "RC_Y_PIN":
		c.RCYPin = value
	case "RC_TIMEOUT_MS":
		c.RCTimeoutMs, err = parseInt(key, value, 1, 1000)
	case "RC_DISCHARGE_MS":
		c.RCDischargeMs, err = parseInt(key, value, 1, 1000)
	case "RC_POLL_US":
		c.RCPollUs, err = parseInt(key, value, 1, 10000)

	// ADS1115
	case "ADC_I2C_BUS":
		c.ADCI2CBus = value
	case "ADC_I2C_ADDR":
		c.ADCI2CAddr, err = parseAddr(key, value)
	case "ADC_X_CHANNEL":
		c.ADCXChannel, err = parseInt(key, value, 0, 3)
	case "ADC_Y_CHANNEL":
		c.ADCYChannel, err = parseInt(key, value, 0, 3)
	case "ADC_MAX_COUNT":
		c.ADCMaxCount, err = parseInt(key, value, 2, maxInt)

	// Gamepad
	case "GAMEPAD_DEVICE":
		c.GamepadDevice = value
	case "GAMEPAD_AXIS_X":
		n, err = parseInt(key, value, 0, 255)
		c.GamepadAxisX = uint8(n)
	case "GAMEPAD_AXIS_Y":
		n, err = parseInt(key, value, 0, 255)
		c.GamepadAxisY = uint8(n)
	case "GAMEPAD_CENTER_BUTTON":
		n, err = parseInt(key, value, 0, 255)
		c.GamepadCenterButton = uint8(n)

	// Camera
	case "CAMERA_DEVICE":
		c.CameraDevice, err = parseInt(key, value, 0, 63)
	case "CAMERA_WIDTH":
		c.CameraWidth, err = parseInt(key, value, 0, 8192)
	case "HUE_MIN":
		n, err = parseInt(key, value, 0, 180)
		c.HueMin = byte(n)
	case "HUE_MAX":
		n, err = parseInt(key, value, 0, 180)
		c.HueMax = byte(n)
	case "SAT_MIN":
		n, err = parseInt(key, value, 0, 255)
		c.SatMin = byte(n)
	case "SAT_MAX":
		n, err = parseInt(key, value, 0, 255)
		c.SatMax = byte(n)
	case "VAL_MIN":
		n, err = parseInt(key, value, 0, 255)
		c.ValMin = byte(n)
	case "VAL_MAX":
		n, err = parseInt(key, value, 0, 255)
		c.ValMax = byte(n)
	case "MIN_BLOB_AREA":
		c.MinBlobArea, err = parseInt(key, value, 1, maxInt)

	// Actuators
	case "ACTUATOR_BACKEND":
		c.ActuatorBackend = value
	case "PAN_PIN":
		c.PanPin = value
	case "TILT_PIN":
		c.TiltPin = value
	case "PAN_CHANNEL":
		c.PanChannel, err = parseInt(key, value, 0, 23)
	case "TILT_CHANNEL":
		c.TiltChannel, err = parseInt(key, value, 0, 23)
	case "PCA9685_I2C_BUS":
		c.PCA9685I2CBus = value
	case "PCA9685_I2C_ADDR":
		c.PCA9685I2CAddr, err = parseAddr(key, value)
	case "MAESTRO_SERIAL_PORT":
		c.MaestroSerialPort = value
	case "MAESTRO_BAUD_RATE":
		c.MaestroBaudRate, err = parseInt(key, value, 1, 1000000)

	// Limits
	case "PAN_MIN":
		c.PanMin, err = parseFloat(key, value)
	case "PAN_MAX":
		c.PanMax, err = parseFloat(key, value)
	case "TILT_MIN":
		c.TiltMin, err = parseFloat(key, value)
	case "TILT_MAX":
		c.TiltMax, err = parseFloat(key, value)
	case "MIN_PULSE_US":
		c.MinPulseUs, err = parseInt(key, value, 1, 100000)
	case "MAX_PULSE_US":
		c.MaxPulseUs, err = parseInt(key, value, 1, 100000)
	case "REFRESH_PERIOD_MS":
		c.RefreshPeriodMs, err = parseInt(key, value, 1, 1000)

	// Calibration
	case "CALIBRATION_SAMPLES":
		c.CalibrationSamples, err = parseInt(key, value, 1, 10000)
	case "CALIBRATION_SETTLE_MS":
		c.CalibrationSettleMs, err = parseInt(key, value, 0, 60000)

	// Processing
	case "DEADZONE":
		c.Deadzone, err = parseFloat(key, value)
	case "STEP_SIZE":
		c.StepSize, err = parseFloat(key, value)
	case "SENSITIVITY":
		c.Sensitivity, err = parseFloat(key, value)
	case "INVERT_PAN":
		c.InvertPan, err = parseBool(key, value)
	case "INVERT_TILT":
		c.InvertTilt, err = parseBool(key, value)
	case "SMOOTHING":
		c.Smoothing = value
	case "SMOOTHING_WINDOW":
		c.SmoothingWindow, err = parseInt(key, value, 1, 1000)
	case "SMOOTHING_FACTOR":
		c.SmoothingFactor, err = parseFloat(key, value)

	// Loop
	case "TICK_INTERVAL_MS":
		c.TickIntervalMs, err = parseInt(key, value, 1, 60000)
	case "CENTER_HOLD_MS":
		c.CenterHoldMs, err = parseInt(key, value, 0, 60000)
	case "MAX_ACTUATOR_FAILURES":
		c.MaxActuatorFailures, err = parseInt(key, value, 1, 1000)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_TRACKER":
		c.MQTTClientIDTracker = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 1, 60000)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInt(key, value, 0, 3600000)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that the selected source and backend are fully wired and
// that the tuning values are consistent.
func (c *Config) validate() error {
	switch c.Source {
	case SourceButtons:
		if c.ButtonUpPin == "" || c.ButtonDownPin == "" || c.ButtonLeftPin == "" || c.ButtonRightPin == "" {
			return fmt.Errorf("BUTTON_UP_PIN, BUTTON_DOWN_PIN, BUTTON_LEFT_PIN and BUTTON_RIGHT_PIN are required for SOURCE=%s", c.Source)
		}
	case SourceRCJoystick:
		if c.RCXPin == "" || c.RCYPin == "" {
			return fmt.Errorf("RC_X_PIN and RC_Y_PIN are required for SOURCE=%s", c.Source)
		}
	case SourceGamepad:
		if c.GamepadDevice == "" {
			return fmt.Errorf("GAMEPAD_DEVICE is required for SOURCE=%s", c.Source)
		}
	case SourceADC, SourceVision, SourceMock:
	default:
		return fmt.Errorf("SOURCE must be one of buttons, rc_joystick, adc, gamepad, vision, mock, got %q", c.Source)
	}

	switch c.ActuatorBackend {
	case BackendSoft, BackendPWM:
		if c.PanPin == "" || c.TiltPin == "" {
			return fmt.Errorf("PAN_PIN and TILT_PIN are required for ACTUATOR_BACKEND=%s", c.ActuatorBackend)
		}
	case BackendPCA9685:
		if c.PanChannel > 15 || c.TiltChannel > 15 {
			return fmt.Errorf("PCA9685 channels must be 0-15, got pan=%d tilt=%d", c.PanChannel, c.TiltChannel)
		}
	case BackendMaestro:
		if c.MaestroSerialPort == "" {
			return fmt.Errorf("MAESTRO_SERIAL_PORT is required for ACTUATOR_BACKEND=%s", c.ActuatorBackend)
		}
	case BackendMock:
	default:
		return fmt.Errorf("ACTUATOR_BACKEND must be one of soft, pwm, pca9685, maestro, mock, got %q", c.ActuatorBackend)
	}
	if err := c.checkPins(); err != nil {
		return err
	}
	channels := c.ActuatorBackend == BackendPCA9685 || c.ActuatorBackend == BackendMaestro
	if channels && c.PanChannel == c.TiltChannel {
		return fmt.Errorf("PAN_CHANNEL and TILT_CHANNEL must differ, both are %d", c.PanChannel)
	}

	if c.PanMin >= c.PanMax {
		return fmt.Errorf("PAN_MIN must be below PAN_MAX, got %v >= %v", c.PanMin, c.PanMax)
	}
	if c.TiltMin >= c.TiltMax {
		return fmt.Errorf("TILT_MIN must be below TILT_MAX, got %v >= %v", c.TiltMin, c.TiltMax)
	}
	if c.MinPulseUs >= c.MaxPulseUs {
		return fmt.Errorf("MIN_PULSE_US must be below MAX_PULSE_US, got %d >= %d", c.MinPulseUs, c.MaxPulseUs)
	}
	if c.RefreshPeriodMs*1000 < c.MaxPulseUs {
		return fmt.Errorf("REFRESH_PERIOD_MS (%d) is shorter than MAX_PULSE_US (%d)", c.RefreshPeriodMs, c.MaxPulseUs)
	}
	if c.Deadzone < 0 || c.Deadzone >= 1 {
		return fmt.Errorf("DEADZONE must be in [0, 1), got %v", c.Deadzone)
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("STEP_SIZE must be positive, got %v", c.StepSize)
	}
	if c.Sensitivity <= 0 {
		return fmt.Errorf("SENSITIVITY must be positive, got %v", c.Sensitivity)
	}
	switch c.Smoothing {
	case "none", "moving_average", "exponential":
	default:
		return fmt.Errorf("SMOOTHING must be one of none, moving_average, exponential, got %q", c.Smoothing)
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("SMOOTHING_FACTOR must be in (0, 1], got %v", c.SmoothingFactor)
	}
	if c.TopicStatus == "" {
		return fmt.Errorf("TOPIC_STATUS is required")
	}
	return nil
}

// pinKey folds the spellings of one GPIO line ("gpio18", "18") together.
func pinKey(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if _, err := strconv.Atoi(name); err == nil {
		return "GPIO" + name
	}
	return name
}

// checkPins rejects a line claimed by two roles of the selected source and
// backend. A shared line would be driven by both axes, or read as an input
// while a driver pulses it.
func (c *Config) checkPins() error {
	type use struct{ key, pin string }
	var uses []use
	switch c.Source {
	case SourceButtons:
		uses = append(uses,
			use{"BUTTON_UP_PIN", c.ButtonUpPin},
			use{"BUTTON_DOWN_PIN", c.ButtonDownPin},
			use{"BUTTON_LEFT_PIN", c.ButtonLeftPin},
			use{"BUTTON_RIGHT_PIN", c.ButtonRightPin},
			use{"CENTER_PIN", c.CenterPin})
	case SourceRCJoystick:
		uses = append(uses,
			use{"RC_X_PIN", c.RCXPin},
			use{"RC_Y_PIN", c.RCYPin},
			use{"CENTER_PIN", c.CenterPin})
	}
	if c.ActuatorBackend == BackendSoft || c.ActuatorBackend == BackendPWM {
		uses = append(uses, use{"PAN_PIN", c.PanPin}, use{"TILT_PIN", c.TiltPin})
	}

	claimed := make(map[string]string, len(uses))
	for _, u := range uses {
		if u.pin == "" {
			continue
		}
		k := pinKey(u.pin)
		if prev, ok := claimed[k]; ok {
			return fmt.Errorf("%s and %s must differ, both are %s", prev, u.key, u.pin)
		}
		claimed[k] = u.key
	}
	return nil
}

// Ms converts a millisecond setting to a duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads the file.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
