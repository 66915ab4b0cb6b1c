package mapping

import (
	"math"
	"testing"

	"github.com/relabs-tech/pantilt/internal/angle"
)

func defaultMapper() *Mapper {
	return New([2]angle.Limits{angle.DefaultLimits, angle.DefaultLimits})
}

func expectAngle(t *testing.T, what string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func expectInRange(t *testing.T, what string, a float64, l angle.Limits) {
	t.Helper()
	if math.IsNaN(a) || a < l.Min || a > l.Max {
		t.Errorf("%s = %v, outside [%v, %v]", what, a, l.Min, l.Max)
	}
}

func TestAbsolute_FrameCorners(t *testing.T) {
	m := defaultMapper()
	tests := []struct {
		name       string
		x, y       float64
		wantH, wnV float64
	}{
		{"centre", 320, 240, 90, 90},
		{"origin", 0, 0, 0, 0},
		{"far corner", 640, 480, 180, 180},
		{"quarter", 160, 120, 45, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectAngle(t, "pan", m.Absolute(angle.Horizontal, tt.x, 640), tt.wantH)
			expectAngle(t, "tilt", m.Absolute(angle.Vertical, tt.y, 480), tt.wnV)
		})
	}
}

func TestAbsolute_Invert(t *testing.T) {
	m := defaultMapper()
	m.Invert[angle.Horizontal] = true
	expectAngle(t, "inverted pan", m.Absolute(angle.Horizontal, 160, 640), 135)
	expectAngle(t, "tilt", m.Absolute(angle.Vertical, 120, 480), 45)
}

func TestAbsolute_ZeroDimension(t *testing.T) {
	expectAngle(t, "pan", defaultMapper().Absolute(angle.Horizontal, 100, 0), 90)
}

func TestProportional(t *testing.T) {
	m := defaultMapper()
	for _, tt := range []struct{ offset, want float64 }{
		{0, 90}, {1, 180}, {-1, 0}, {0.5, 135}, {-0.25, 67.5},
	} {
		expectAngle(t, "proportional", m.Proportional(angle.Horizontal, tt.offset), tt.want)
	}

	m.Sensitivity = 0.5
	expectAngle(t, "half sensitivity", m.Proportional(angle.Vertical, 1), 135)
}

func TestStep(t *testing.T) {
	m := defaultMapper()
	m.StepSize = 5
	expectAngle(t, "right", m.Step(angle.Horizontal, 90, 1), 95)
	expectAngle(t, "left", m.Step(angle.Horizontal, 90, -1), 85)
	expectAngle(t, "hold", m.Step(angle.Horizontal, 90, 0), 90)
	expectAngle(t, "magnitude ignored", m.Step(angle.Horizontal, 90, 0.01), 95)
	expectAngle(t, "clamped at max", m.Step(angle.Horizontal, 178, 1), 180)
	expectAngle(t, "clamped at min", m.Step(angle.Horizontal, 2, -1), 0)

	m.Invert[angle.Vertical] = true
	expectAngle(t, "inverted", m.Step(angle.Vertical, 90, 1), 85)
}

func TestClampProperty(t *testing.T) {
	limits := angle.Limits{Min: 20, Max: 160}
	m := New([2]angle.Limits{limits, limits})
	m.Sensitivity = 3
	m.StepSize = 50

	inputs := []float64{-1e9, -100, -2, -1, -0.5, 0, 0.5, 1, 2, 100, 1e9, math.Inf(1), math.Inf(-1), math.NaN()}
	for _, ax := range angle.Axes {
		for _, in := range inputs {
			expectInRange(t, "proportional", m.Proportional(ax, in), limits)
			expectInRange(t, "step", m.Step(ax, in, in), limits)
			expectInRange(t, "step from edge", m.Step(ax, limits.Max, in), limits)
			expectInRange(t, "absolute", m.Absolute(ax, in, 640), limits)
			expectInRange(t, "absolute beyond frame", m.Absolute(ax, in*1000, 480), limits)
		}
	}
}

func TestValidate(t *testing.T) {
	m := defaultMapper()
	if err := m.Validate(); err != nil {
		t.Fatalf("default mapper invalid: %v", err)
	}
	m.StepSize = 0
	if err := m.Validate(); err == nil {
		t.Error("expected error for zero step size")
	}
	m = defaultMapper()
	m.Limits[angle.Vertical] = angle.Limits{Min: 100, Max: 10}
	if err := m.Validate(); err == nil {
		t.Error("expected error for inverted limits")
	}
}
