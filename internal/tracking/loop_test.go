package tracking

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/pantilt/internal/angle"
	"github.com/relabs-tech/pantilt/internal/calibration"
	"github.com/relabs-tech/pantilt/internal/clock"
	"github.com/relabs-tech/pantilt/internal/filter"
	"github.com/relabs-tech/pantilt/internal/mapping"
	"github.com/relabs-tech/pantilt/internal/rig"
	"github.com/relabs-tech/pantilt/internal/source"
	"github.com/relabs-tech/pantilt/internal/status"
	"github.com/relabs-tech/pantilt/internal/vision"
)

type fakeActuator struct {
	mu       sync.Mutex
	drives   []float64
	err      error
	releases int
}

func (f *fakeActuator) Drive(a float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.drives = append(f.drives, a)
	return nil
}

func (f *fakeActuator) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeActuator) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeActuator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drives)
}

func (f *fakeActuator) released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// scriptSource produces readings from a function of the call number.
type scriptSource struct {
	kind source.Kind
	next func(n int) (source.Reading, error)

	mu sync.Mutex
	n  int
}

func (s *scriptSource) Name() string      { return "script" }
func (s *scriptSource) Kind() source.Kind { return s.kind }
func (s *scriptSource) Close() error      { return nil }

func (s *scriptSource) Acquire(ctx context.Context) (source.Reading, error) {
	s.mu.Lock()
	n := s.n
	s.n++
	s.mu.Unlock()
	r, err := s.next(n)
	r.Kind = s.kind
	return r, err
}

func pixelAt(x, y int) func(int) (source.Reading, error) {
	return func(int) (source.Reading, error) {
		return source.Reading{X: x, Y: y, Detected: true, FrameWidth: 640, FrameHeight: 480}, nil
	}
}

func testConfig() Config {
	return Config{
		Mapper:       mapping.New([2]angle.Limits{angle.DefaultLimits, angle.DefaultLimits}),
		Deadzone:     0.15,
		Smoothing:    filter.None,
		TickInterval: 100 * time.Millisecond,
		CenterHold:   500 * time.Millisecond,
		MaxFailures:  3,
	}
}

type harness struct {
	loop      *Loop
	clock     *clock.Fake
	pan, tilt *fakeActuator
	statuses  []status.Status
}

func newHarness(t *testing.T, src source.Source, cfg Config) *harness {
	t.Helper()
	h := &harness{clock: clock.NewFake(time.Unix(0, 0)), pan: &fakeActuator{}, tilt: &fakeActuator{}}
	cal := &calibration.Calibrator{Samples: 4, Settle: 10 * time.Millisecond, Clock: h.clock}
	rep := status.ReporterFunc(func(s status.Status) { h.statuses = append(h.statuses, s) })
	l, err := New(src, h.pan, h.tilt, cfg, WithClock(h.clock), WithCalibrator(cal), WithReporter(rep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.loop = l
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	if err := h.loop.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func expectAngles(t *testing.T, l *Loop, pan, tilt float64) {
	t.Helper()
	a := l.Angles()
	if math.Abs(a[angle.Horizontal].Current-pan) > 1e-9 || math.Abs(a[angle.Vertical].Current-tilt) > 1e-9 {
		t.Errorf("angles = (%v, %v), want (%v, %v)", a[angle.Horizontal].Current, a[angle.Vertical].Current, pan, tilt)
	}
}

func expectState(t *testing.T, l *Loop, want State) {
	t.Helper()
	if got := l.State(); got != want {
		t.Errorf("state = %s, want %s", got, want)
	}
}

func TestStart_NeutralAndTracking(t *testing.T) {
	h := newHarness(t, &scriptSource{kind: source.Pixel, next: pixelAt(0, 0)}, testConfig())
	expectState(t, h.loop, Idle)
	h.start(t)
	expectState(t, h.loop, Tracking)
	expectAngles(t, h.loop, 90, 90)
	if h.pan.count() != 1 || h.tilt.count() != 1 {
		t.Errorf("neutral drive count = %d/%d, want 1/1", h.pan.count(), h.tilt.count())
	}
}

func TestVisionMapping(t *testing.T) {
	tests := []struct {
		x, y      int
		pan, tilt float64
	}{
		{320, 240, 90, 90},
		{0, 0, 0, 0},
		{640, 480, 180, 180},
		{900, -50, 180, 0},
	}
	for _, tt := range tests {
		h := newHarness(t, &scriptSource{kind: source.Pixel, next: pixelAt(tt.x, tt.y)}, testConfig())
		h.start(t)
		h.tick(t)
		expectAngles(t, h.loop, tt.pan, tt.tilt)
	}
}

func TestVisionMapping_FromMask(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 640, 480))
	for y := 230; y < 251; y++ {
		for x := 310; x < 331; x++ {
			mask.Pix[mask.PixOffset(x, y)] = 255
		}
	}
	det := vision.NewMaskDetector(staticMask{mask}, 1)
	h := newHarness(t, source.NewVisionCentroid(det), testConfig())
	h.start(t)
	h.tick(t)
	expectAngles(t, h.loop, 90, 90)
}

type staticMask struct{ m *image.Gray }

func (s staticMask) NextMask(context.Context) (*image.Gray, error) { return s.m, nil }
func (s staticMask) Close() error                                  { return nil }

func TestVision_NoDetectionHolds(t *testing.T) {
	src := &scriptSource{kind: source.Pixel, next: func(n int) (source.Reading, error) {
		if n == 0 {
			return source.Reading{X: 160, Y: 120, Detected: true, FrameWidth: 640, FrameHeight: 480}, nil
		}
		return source.Reading{FrameWidth: 640, FrameHeight: 480}, nil
	}}
	h := newHarness(t, src, testConfig())
	h.start(t)
	h.tick(t)
	expectAngles(t, h.loop, 45, 45)
	before := h.pan.count()
	h.tick(t)
	expectAngles(t, h.loop, 45, 45)
	if h.pan.count() != before {
		t.Error("empty frame produced a drive")
	}
}

func TestCentering(t *testing.T) {
	h := newHarness(t, &scriptSource{kind: source.Pixel, next: pixelAt(600, 400)}, testConfig())
	h.start(t)
	h.tick(t)
	expectAngles(t, h.loop, 168.75, 150)

	h.clock.Advance(100 * time.Millisecond)
	h.loop.RequestCenter()
	h.tick(t)
	expectState(t, h.loop, Centering)
	expectAngles(t, h.loop, 90, 90)

	for i := 1; i <= 4; i++ {
		h.clock.Advance(100 * time.Millisecond)
		h.tick(t)
		expectState(t, h.loop, Centering)
		expectAngles(t, h.loop, 90, 90)
	}

	h.clock.Advance(100 * time.Millisecond)
	h.tick(t)
	expectState(t, h.loop, Tracking)
	expectAngles(t, h.loop, 168.75, 150)
}

func TestCentering_FromButtonLine(t *testing.T) {
	up := rig.NewMemLine("up", true)
	down := rig.NewMemLine("down", true)
	left := rig.NewMemLine("left", true)
	right := rig.NewMemLine("right", true)
	center := rig.NewMemLine("center", true)
	b, err := source.NewButtons(source.ButtonLines{Up: up, Down: down, Left: left, Right: right, Center: center})
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Mapper.StepSize = 2
	h := newHarness(t, b, cfg)
	h.start(t)

	right.Set(false)
	up.Set(false)
	for i := 0; i < 5; i++ {
		h.tick(t)
	}
	expectAngles(t, h.loop, 100, 100)

	right.Set(true)
	down.Set(false)
	up.Set(true)
	h.tick(t)
	expectAngles(t, h.loop, 100, 98)

	center.Set(false)
	h.tick(t)
	expectState(t, h.loop, Centering)
	expectAngles(t, h.loop, 90, 90)
}

func TestAnalog_CalibratesAndMapsProportionally(t *testing.T) {
	src := &scriptSource{kind: source.Analog, next: func(n int) (source.Reading, error) {
		switch {
		case n < 4:
			return source.Reading{X: 400, Y: 400}, nil
		case n == 4:
			return source.Reading{X: 200, Y: 600}, nil
		default:
			return source.Reading{X: 380, Y: 420}, nil
		}
	}}
	h := newHarness(t, src, testConfig())
	h.start(t)
	if b := h.loop.Baseline(); b.X != 400 || b.Y != 400 {
		t.Fatalf("baseline = %+v", b)
	}

	h.tick(t)
	expectAngles(t, h.loop, 135, 45)

	// |offset| = 0.05 is inside the deadzone.
	h.tick(t)
	expectAngles(t, h.loop, 90, 90)
}

func TestAnalog_CalibrationRejection(t *testing.T) {
	src := &scriptSource{kind: source.Analog, next: func(int) (source.Reading, error) {
		return source.Reading{X: source.MinReading, Y: source.MinReading}, nil
	}}
	h := newHarness(t, src, testConfig())
	err := h.loop.Start(context.Background())

	var calErr *calibration.Error
	if !errors.As(err, &calErr) {
		t.Fatalf("Start = %v, want *calibration.Error", err)
	}
	expectState(t, h.loop, ShuttingDown)
	if h.pan.count() != 0 || h.tilt.count() != 0 {
		t.Error("actuators driven despite failed calibration")
	}
	if h.pan.released() != 1 || h.tilt.released() != 1 {
		t.Error("actuators not released after failed calibration")
	}
	if err := h.loop.Tick(context.Background()); err == nil {
		t.Error("Tick after failed calibration should fail")
	}
}

func TestAcquisitionFallback(t *testing.T) {
	src := &scriptSource{kind: source.Analog, next: func(n int) (source.Reading, error) {
		switch {
		case n < 4:
			return source.Reading{X: 400, Y: 400}, nil
		case n == 4:
			return source.Reading{X: 200, Y: 400, Center: true}, nil
		default:
			return source.Reading{}, source.ErrTimeout
		}
	}}
	cfg := testConfig()
	h := newHarness(t, src, cfg)
	h.start(t)
	h.tick(t)
	expectState(t, h.loop, Centering)

	h.clock.Advance(cfg.CenterHold)
	h.tick(t)
	// The last good reading is reused, without its centre request.
	expectState(t, h.loop, Tracking)
	expectAngles(t, h.loop, 135, 90)
}

func TestAcquisitionFallback_NeutralWithoutHistory(t *testing.T) {
	src := &scriptSource{kind: source.Directional, next: func(int) (source.Reading, error) {
		return source.Reading{}, errors.New("line read error")
	}}
	h := newHarness(t, src, testConfig())
	h.start(t)
	h.tick(t)
	expectAngles(t, h.loop, 90, 90)
}

func TestActuatorFailure_SkipsAxis(t *testing.T) {
	src := &scriptSource{kind: source.Pixel, next: func(n int) (source.Reading, error) {
		return source.Reading{X: 160 * (n + 1), Y: 120, Detected: true, FrameWidth: 640, FrameHeight: 480}, nil
	}}
	h := newHarness(t, src, testConfig())
	h.start(t)
	h.tick(t)
	expectAngles(t, h.loop, 45, 45)

	h.pan.fail(errors.New("nack"))
	h.tick(t)
	expectAngles(t, h.loop, 45, 45)
	a := h.loop.Angles()
	if a[angle.Horizontal].Target != 45 {
		t.Errorf("failed axis target changed to %v", a[angle.Horizontal].Target)
	}
	last := h.statuses[len(h.statuses)-1]
	if last.Pan.Failures != 1 || last.Tilt.Failures != 0 {
		t.Errorf("failures = %d/%d, want 1/0", last.Pan.Failures, last.Tilt.Failures)
	}

	h.pan.fail(nil)
	h.tick(t)
	expectAngles(t, h.loop, 135, 45)
}

func TestActuatorFailure_Escalates(t *testing.T) {
	h := newHarness(t, &scriptSource{kind: source.Pixel, next: pixelAt(100, 100)}, testConfig())
	h.start(t)
	h.tilt.fail(errors.New("bus stuck"))
	h.tick(t)
	h.tick(t)
	err := h.loop.Tick(context.Background())
	if !errors.Is(err, ErrActuatorFailed) {
		t.Fatalf("third failing tick = %v, want ErrActuatorFailed", err)
	}
}

func TestRun_EscalationReleases(t *testing.T) {
	pan, tilt := &fakeActuator{}, &fakeActuator{}
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond
	src := &scriptSource{kind: source.Pixel, next: pixelAt(100, 100)}
	l, err := New(src, pan, tilt, cfg)
	if err != nil {
		t.Fatal(err)
	}
	pan.fail(errors.New("servo unplugged"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Run(ctx); !errors.Is(err, ErrActuatorFailed) {
		t.Fatalf("Run = %v, want ErrActuatorFailed", err)
	}
	if pan.released() != 1 || tilt.released() != 1 {
		t.Errorf("releases = %d/%d, want 1/1", pan.released(), tilt.released())
	}
	expectState(t, l, ShuttingDown)
}

func TestRun_CancelReleases(t *testing.T) {
	pan, tilt := &fakeActuator{}, &fakeActuator{}
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond
	l, err := New(source.NewMock(), pan, tilt, cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for pan.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if pan.released() != 1 || tilt.released() != 1 {
		t.Errorf("releases = %d/%d, want 1/1", pan.released(), tilt.released())
	}
	expectState(t, l, ShuttingDown)
}

func TestSmoothing_MovingAverageOnPixels(t *testing.T) {
	src := &scriptSource{kind: source.Pixel, next: func(n int) (source.Reading, error) {
		x := 0
		if n%2 == 1 {
			x = 320
		}
		return source.Reading{X: x, Y: 240, Detected: true, FrameWidth: 640, FrameHeight: 480}, nil
	}}
	cfg := testConfig()
	cfg.Smoothing = filter.MovingAverage
	cfg.Window = 2
	h := newHarness(t, src, cfg)
	h.start(t)
	h.tick(t) // mean(0)
	expectAngles(t, h.loop, 0, 90)
	h.tick(t) // mean(0, 320)
	expectAngles(t, h.loop, 45, 90)
	h.tick(t) // mean(320, 0)
	expectAngles(t, h.loop, 45, 90)
}

func TestSmoothing_MovingAverageSkipsFallbackReadings(t *testing.T) {
	src := &scriptSource{kind: source.Pixel, next: func(n int) (source.Reading, error) {
		switch n {
		case 3, 4:
			return source.Reading{}, errors.New("camera read failed")
		case 2:
			return source.Reading{X: 640, Y: 240, Detected: true, FrameWidth: 640, FrameHeight: 480}, nil
		default:
			return source.Reading{X: 0, Y: 240, Detected: true, FrameWidth: 640, FrameHeight: 480}, nil
		}
	}}
	cfg := testConfig()
	cfg.Smoothing = filter.MovingAverage
	cfg.Window = 3
	h := newHarness(t, src, cfg)
	h.start(t)
	h.tick(t) // mean(0)
	h.tick(t) // mean(0, 0)
	h.tick(t) // mean(0, 0, 640)
	expectAngles(t, h.loop, 60, 90)

	// Failed reads hold the target; the last pixel is not averaged in again.
	h.tick(t)
	h.tick(t)
	expectAngles(t, h.loop, 60, 90)

	h.tick(t) // mean(0, 640, 0)
	expectAngles(t, h.loop, 60, 90)
	if n := h.pan.count(); n < 6 {
		t.Errorf("pan driven %d times, want the held axis still driven", n)
	}
}

func TestSmoothing_ExponentialOnTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Smoothing = filter.Exponential
	cfg.Factor = 0.5
	h := newHarness(t, &scriptSource{kind: source.Pixel, next: pixelAt(640, 480)}, cfg)
	h.start(t)

	h.tick(t)
	expectAngles(t, h.loop, 135, 135)
	a := h.loop.Angles()
	if a[angle.Horizontal].Target != 180 {
		t.Errorf("target = %v, want the unsmoothed 180", a[angle.Horizontal].Target)
	}
	h.tick(t)
	expectAngles(t, h.loop, 157.5, 157.5)

	prev := 157.5
	for i := 0; i < 60; i++ {
		h.tick(t)
		cur := h.loop.Angles()[angle.Horizontal].Current
		if cur < prev || cur > 180 {
			t.Fatalf("tick %d: %v after %v", i, cur, prev)
		}
		prev = cur
	}
	if 180-prev > 1e-6 {
		t.Errorf("did not converge: %v", prev)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := []func(*Config){
		func(c *Config) { c.Mapper = nil },
		func(c *Config) { c.Deadzone = 1 },
		func(c *Config) { c.TickInterval = 0 },
		func(c *Config) { c.MaxFailures = 0 },
		func(c *Config) { c.Smoothing = filter.Exponential; c.Factor = 0 },
		func(c *Config) { c.Smoothing = filter.MovingAverage; c.Window = 0 },
	}
	for i, mut := range bad {
		c := testConfig()
		mut(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
