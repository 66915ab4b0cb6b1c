package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func expectError(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", contains)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Fatalf("expected error containing %q, got %v", contains, err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadKeyValue(t *testing.T) {
	path := writeConfig(t, "pantilt.conf", `
# rig on the bench
SOURCE=rc_joystick
RC_X_PIN=GPIO23
RC_Y_PIN = GPIO24
CENTER_PIN=GPIO25
ACTUATOR_BACKEND=pca9685
PCA9685_I2C_ADDR=0x41
PAN_CHANNEL=2
TILT_CHANNEL=3
TILT_MIN=30
TILT_MAX=150
DEADZONE=0.2
INVERT_TILT=true
SMOOTHING=exponential
SMOOTHING_FACTOR=0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != SourceRCJoystick || cfg.RCYPin != "GPIO24" || cfg.CenterPin != "GPIO25" {
		t.Errorf("source wiring = %q %q %q", cfg.Source, cfg.RCYPin, cfg.CenterPin)
	}
	if cfg.PCA9685I2CAddr != 0x41 || cfg.PanChannel != 2 || cfg.TiltChannel != 3 {
		t.Errorf("pca9685 = 0x%x %d %d", cfg.PCA9685I2CAddr, cfg.PanChannel, cfg.TiltChannel)
	}
	if cfg.TiltMin != 30 || cfg.TiltMax != 150 || cfg.Deadzone != 0.2 || !cfg.InvertTilt {
		t.Errorf("tuning = %v %v %v %v", cfg.TiltMin, cfg.TiltMax, cfg.Deadzone, cfg.InvertTilt)
	}
	// untouched keys keep their defaults
	if cfg.MaxPulseUs != 2500 || cfg.TickIntervalMs != 50 {
		t.Errorf("defaults lost: %d %d", cfg.MaxPulseUs, cfg.TickIntervalMs)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "pantilt.yaml", `
SOURCE: vision
CAMERA_WIDTH: 320
HUE_MIN: 0
HUE_MAX: 20
MIN_BLOB_AREA: 50
ADC_I2C_ADDR: 0x49
INVERT_PAN: true
SENSITIVITY: 1.5
MQTT_BROKER: tcp://localhost:1883
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != SourceVision || cfg.CameraWidth != 320 || cfg.HueMax != 20 || cfg.MinBlobArea != 50 {
		t.Errorf("camera = %+v", cfg)
	}
	if cfg.ADCI2CAddr != 0x49 || !cfg.InvertPan || cfg.Sensitivity != 1.5 {
		t.Errorf("values = 0x%x %v %v", cfg.ADCI2CAddr, cfg.InvertPan, cfg.Sensitivity)
	}
	if cfg.MQTTBroker != "tcp://localhost:1883" {
		t.Errorf("broker = %q", cfg.MQTTBroker)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "empty.yml", ""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != SourceMock {
		t.Errorf("source = %q", cfg.Source)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{"unknown key", "FOO=1", `unknown config key: "FOO"`},
		{"missing equals", "SOURCE", "invalid config line 1"},
		{"bad int", "TICK_INTERVAL_MS=fast", "invalid TICK_INTERVAL_MS"},
		{"int range", "ADC_X_CHANNEL=4", "ADC_X_CHANNEL must be 0-3, got 4"},
		{"bad bool", "INVERT_PAN=maybe", "invalid INVERT_PAN"},
		{"unknown source", "SOURCE=mouse", "SOURCE must be one of"},
		{"unknown backend", "ACTUATOR_BACKEND=stepper", "ACTUATOR_BACKEND must be one of"},
		{"maestro port", "ACTUATOR_BACKEND=maestro", "MAESTRO_SERIAL_PORT is required"},
		{"same channel", "ACTUATOR_BACKEND=pca9685\nTILT_CHANNEL=0", "must differ"},
		{"pca channel", "ACTUATOR_BACKEND=pca9685\nPAN_CHANNEL=16", "channels must be 0-15"},
		{"limits", "PAN_MIN=90\nPAN_MAX=90", "PAN_MIN must be below PAN_MAX"},
		{"pulses", "MIN_PULSE_US=2500", "MIN_PULSE_US must be below MAX_PULSE_US"},
		{"period", "REFRESH_PERIOD_MS=2", "shorter than MAX_PULSE_US"},
		{"deadzone", "DEADZONE=1", "DEADZONE must be in [0, 1)"},
		{"smoothing", "SMOOTHING=kalman", "SMOOTHING must be one of"},
		{"factor", "SMOOTHING_FACTOR=0", "SMOOTHING_FACTOR must be in (0, 1]"},
		{"buttons", "SOURCE=buttons\nBUTTON_UP_PIN=", "BUTTON_UP_PIN"},
		{"soft same pin", "ACTUATOR_BACKEND=soft\nPAN_PIN=GPIO18\nTILT_PIN=GPIO18", "PAN_PIN and TILT_PIN must differ"},
		{"pwm same pin", "ACTUATOR_BACKEND=pwm\nPAN_PIN=GPIO13\nTILT_PIN=13", "PAN_PIN and TILT_PIN must differ"},
		{"rc on pan pin", "SOURCE=rc_joystick\nACTUATOR_BACKEND=soft\nRC_X_PIN=GPIO18\nPAN_PIN=GPIO18", "RC_X_PIN and PAN_PIN must differ"},
		{"rc axes same pin", "SOURCE=rc_joystick\nRC_Y_PIN=GPIO20", "RC_X_PIN and RC_Y_PIN must differ"},
		{"center on tilt pin", "SOURCE=buttons\nACTUATOR_BACKEND=pwm\nCENTER_PIN=gpio13", "CENTER_PIN and TILT_PIN must differ"},
		{"center on button", "SOURCE=buttons\nCENTER_PIN=GPIO5", "BUTTON_UP_PIN and CENTER_PIN must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "pantilt.conf", tt.body))
			expectError(t, err, tt.contains)
		})
	}
}

func TestPinsOfUnusedRolesMayOverlap(t *testing.T) {
	// RC pins are ignored when the buttons drive the loop, and actuator pins
	// are ignored by channel backends.
	body := "SOURCE=buttons\nRC_X_PIN=GPIO5\nACTUATOR_BACKEND=pca9685\nPAN_CHANNEL=0\nTILT_CHANNEL=1\nPAN_PIN=GPIO6"
	if _, err := Load(writeConfig(t, "pantilt.conf", body)); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	expectError(t, err, "failed to open config file")
}

func TestMs(t *testing.T) {
	if got := Ms(20).Milliseconds(); got != 20 {
		t.Errorf("Ms(20) = %dms", got)
	}
}

func TestSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "pantilt.conf"))
	if err != nil {
		t.Fatalf("sample config: %v", err)
	}
	if cfg.Source != SourceVision || cfg.ActuatorBackend != BackendPCA9685 {
		t.Errorf("sample wiring = %s/%s", cfg.Source, cfg.ActuatorBackend)
	}
}
