package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"periph.io/x/conn/v3/analog"

	"github.com/relabs-tech/pantilt/internal/clock"
	"github.com/relabs-tech/pantilt/internal/rig"
	"github.com/relabs-tech/pantilt/internal/vision"
)

func expectReading(t *testing.T, got Reading, x, y int) {
	t.Helper()
	if got.X != x || got.Y != y {
		t.Errorf("reading = (%d, %d), want (%d, %d)", got.X, got.Y, x, y)
	}
}

func TestButtons(t *testing.T) {
	up := rig.NewMemLine("up", true)
	down := rig.NewMemLine("down", true)
	left := rig.NewMemLine("left", true)
	right := rig.NewMemLine("right", true)
	center := rig.NewMemLine("center", true)
	b, err := NewButtons(ButtonLines{Up: up, Down: down, Left: left, Right: right, Center: center})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []struct {
		name         string
		pressed      []*rig.MemLine
		wantX, wantY int
		wantCenter   bool
	}{
		{"idle", nil, 0, 0, false},
		{"right", []*rig.MemLine{right}, 1, 0, false},
		{"up left", []*rig.MemLine{up, left}, -1, 1, false},
		{"down", []*rig.MemLine{down}, 0, -1, false},
		{"opposing cancel", []*rig.MemLine{left, right}, 0, 0, false},
		{"center", []*rig.MemLine{center}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, l := range []*rig.MemLine{up, down, left, right, center} {
				l.Set(true)
			}
			for _, l := range tt.pressed {
				l.Set(false) // active low
			}
			r, err := b.Acquire(ctx)
			if err != nil {
				t.Fatal(err)
			}
			expectReading(t, r, tt.wantX, tt.wantY)
			if r.Center != tt.wantCenter {
				t.Errorf("center = %v, want %v", r.Center, tt.wantCenter)
			}
		})
	}
}

func TestButtons_RequiresDirections(t *testing.T) {
	if _, err := NewButtons(ButtonLines{Up: rig.NewMemLine("up", true)}); err == nil {
		t.Error("expected error for missing lines")
	}
}

// chargingLine reads high once it has been polled n times as an input.
func chargingLine(name string, n int) *rig.MemLine {
	l := rig.NewMemLine(name, false)
	polls := 0
	l.ReadFunc = func() bool {
		if l.Direction() != rig.Input {
			return false
		}
		polls++
		if polls > n {
			polls = 0
			return true
		}
		return false
	}
	return l
}

func TestRCJoystick_Counts(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	x := chargingLine("x", 30)
	y := chargingLine("y", 0)
	j, err := NewRCJoystick(x, y, nil, RCConfig{Poll: 10 * time.Microsecond}, c)
	if err != nil {
		t.Fatal(err)
	}
	r, err := j.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// x charges after 30 polls of 10µs; y is high immediately and floors to 1.
	expectReading(t, r, 300, MinReading)
	if r.Kind != Analog || r.Max != 100000 {
		t.Errorf("kind/max = %v/%d", r.Kind, r.Max)
	}
}

func TestRCJoystick_TimeoutIsBounded(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	stuck := rig.NewMemLine("x", false)
	j, err := NewRCJoystick(stuck, chargingLine("y", 1), nil, RCConfig{Timeout: 100 * time.Millisecond}, c)
	if err != nil {
		t.Fatal(err)
	}
	start := c.Now()
	_, err = j.Acquire(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if took := c.Now().Sub(start); took > DefaultRCDischarge+100*time.Millisecond {
		t.Errorf("acquisition took %v, beyond discharge plus timeout", took)
	}
}

type fakeChannel struct {
	raw int32
	err error
}

func (f *fakeChannel) Read() (analog.Sample, error) {
	return analog.Sample{Raw: f.raw}, f.err
}

func TestADC(t *testing.T) {
	x, y := &fakeChannel{raw: 16000}, &fakeChannel{raw: -3}
	a := NewADC(x, y, 32767)
	r, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	expectReading(t, r, 16000, MinReading)

	y.err = errors.New("i2c nack")
	if _, err := a.Acquire(context.Background()); err == nil {
		t.Error("expected error from failing channel")
	}
	if !NeedsCalibration(a) {
		t.Error("ADC joystick should need calibration")
	}
}

type pipeDevice struct {
	*io.PipeReader
}

func TestGamepad(t *testing.T) {
	pr, pw := io.Pipe()
	g := NewGamepad(pipeDevice{pr}, GamepadConfig{AxisX: 0, AxisY: 1, CenterButton: 11})

	send := func(typ, num uint8, v int16) {
		var buf bytes.Buffer
		_ = binary.Write(&buf, binary.LittleEndian, jsEvent{Value: v, Type: typ, Number: num})
		if _, err := pw.Write(buf.Bytes()); err != nil {
			t.Fatal(err)
		}
	}
	send(jsEventAxis|jsEventInit, 0, 0)
	send(jsEventAxis, 0, 16384)  // half right
	send(jsEventAxis, 1, -32767) // full up
	send(jsEventButton, 11, 1)
	send(jsEventAxis, 2, 999) // unmapped

	// Pipe writes return only once the reader consumed them, but the last
	// event may still be applying.
	var r Reading
	var err error
	for i := 0; i < 100; i++ {
		r, err = g.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if r.Center {
			break
		}
		time.Sleep(time.Millisecond)
	}
	expectReading(t, r, GamepadNeutral-16384, 1)
	if !r.Center {
		t.Error("centre button not reported")
	}
	if NeedsCalibration(g) {
		t.Error("gamepad has a fixed neutral and needs no calibration")
	}

	_ = pw.Close()
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Acquire(context.Background()); err == nil {
		t.Error("expected error after device closed")
	}
}

type fixedDetector struct {
	d      vision.Detection
	closed bool
}

func (f *fixedDetector) Detect(ctx context.Context) (vision.Detection, error) { return f.d, nil }
func (f *fixedDetector) Close() error                                         { f.closed = true; return nil }

func TestVisionCentroid(t *testing.T) {
	det := &fixedDetector{d: vision.Detection{Found: true, X: 320, Y: 240, Width: 640, Height: 480, Bounds: image.Rect(310, 230, 330, 250)}}
	v := NewVisionCentroid(det)
	r, err := v.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !r.Detected || r.FrameDim(0) != 640 || r.FrameDim(1) != 480 {
		t.Errorf("reading = %+v", r)
	}
	expectReading(t, r, 320, 240)

	det.d = vision.Detection{Width: 640, Height: 480}
	r, _ = v.Acquire(context.Background())
	if r.Detected {
		t.Errorf("no-detection frame reported as detected: %+v", r)
	}
	_ = v.Close()
	if !det.closed {
		t.Error("detector not closed")
	}
}

func TestMock_StaysInFrame(t *testing.T) {
	m := NewMock()
	empties := 0
	for i := 0; i < 400; i++ {
		r, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !r.Detected {
			empties++
			continue
		}
		if r.X < 0 || r.X >= r.FrameWidth || r.Y < 0 || r.Y >= r.FrameHeight {
			t.Fatalf("step %d: (%d, %d) outside frame", i, r.X, r.Y)
		}
	}
	if empties != 8 {
		t.Errorf("got %d empty frames, want 8", empties)
	}
}
