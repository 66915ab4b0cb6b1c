// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package cvcam captures camera frames with OpenCV and reduces them to a
// binary mask of the tracked colour. Importing it registers the camera
// driver with the vision package.
package cvcam

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/relabs-tech/pantilt/internal/vision"
)

// HSVRange selects a colour in OpenCV HSV space (hue 0-180). HueMin > HueMax
// wraps around red.
type HSVRange struct {
	HueMin, HueMax byte
	SatMin, SatMax byte
	ValMin, ValMax byte
}

// LaserRed matches a red laser dot.
var LaserRed = HSVRange{HueMin: 170, HueMax: 10, SatMin: 120, SatMax: 255, ValMin: 70, ValMax: 255}

// Config describes the capture.
type Config struct {
	Device  int
	Width   int // frames are scaled to this width; 0 keeps the native size
	Range   HSVRange
	MinArea int
}

// Camera is a vision.MaskSource and a vision.Detector backed by a video
// capture device.
type Camera struct {
	cfg Config

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	frame  gocv.Mat
	closed bool
}

var (
	_ vision.MaskSource = (*Camera)(nil)
	_ vision.Detector   = (*Camera)(nil)
)

func init() {
	vision.RegisterCamera(func(c vision.CameraConfig) (vision.Detector, error) {
		cam, err := Open(Config{
			Device: c.Device,
			Width:  c.Width,
			Range: HSVRange{
				HueMin: c.HueMin, HueMax: c.HueMax,
				SatMin: c.SatMin, SatMax: c.SatMax,
				ValMin: c.ValMin, ValMax: c.ValMax,
			},
			MinArea: c.MinArea,
		})
		if err != nil {
			return nil, err
		}
		return cam, nil
	})
}

// Open starts capturing from cfg.Device.
func Open(cfg Config) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("camera %d: %w", cfg.Device, err)
	}
	if cfg.MinArea < 1 {
		cfg.MinArea = 1
	}
	return &Camera{cfg: cfg, cap: vc, frame: gocv.NewMat()}, nil
}

// mask reads one frame and returns its colour mask, cleaned up with two
// rounds of erosion and dilation. The caller closes the mask.
func (c *Camera) mask() (gocv.Mat, error) {
	if c.closed {
		return gocv.Mat{}, vision.ErrNoFrame
	}
	if ok := c.cap.Read(&c.frame); !ok || c.frame.Empty() {
		return gocv.Mat{}, fmt.Errorf("camera %d: %w", c.cfg.Device, vision.ErrNoFrame)
	}

	hsv := toHSV(c.frame, c.cfg.Width)
	defer hsv.Close()

	m := inRange(hsv, c.cfg.Range)
	kernel := gocv.NewMat()
	defer kernel.Close()
	gocv.Erode(m, &m, kernel)
	gocv.Erode(m, &m, kernel)
	gocv.Dilate(m, &m, kernel)
	gocv.Dilate(m, &m, kernel)
	return m, nil
}

func toHSV(img gocv.Mat, width int) gocv.Mat {
	hsv := gocv.NewMat()
	if width <= 0 || width == img.Cols() {
		gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)
		return hsv
	}
	scale := float64(width) / float64(img.Cols())
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(img, &scaled, image.Point{}, scale, scale, gocv.InterpolationLinear)
	gocv.CvtColor(scaled, &hsv, gocv.ColorBGRToHSV)
	return hsv
}

func inRangeNoWrap(hsv gocv.Mat, r HSVRange) gocv.Mat {
	lb := gocv.NewScalar(float64(r.HueMin), float64(r.SatMin), float64(r.ValMin), 0)
	ub := gocv.NewScalar(float64(r.HueMax), float64(r.SatMax), float64(r.ValMax), 0)
	m := gocv.NewMatWithSize(hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8U)
	gocv.InRangeWithScalar(hsv, lb, ub, &m)
	return m
}

func inRange(hsv gocv.Mat, r HSVRange) gocv.Mat {
	if r.HueMax >= r.HueMin {
		return inRangeNoWrap(hsv, r)
	}
	hi := r
	hi.HueMax = 180
	m1 := inRangeNoWrap(hsv, hi)
	defer m1.Close()
	lo := r
	lo.HueMin = 0
	m2 := inRangeNoWrap(hsv, lo)
	defer m2.Close()
	m := gocv.NewMatWithSize(hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8U)
	gocv.BitwiseOr(m1, m2, &m)
	return m
}

// NextMask returns the next frame's mask as a Go image.
func (c *Camera) NextMask(ctx context.Context) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.mask()
	if err != nil {
		return nil, err
	}
	defer m.Close()
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("camera %d: mask to image: %w", c.cfg.Device, err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("camera %d: unexpected mask image %T", c.cfg.Device, img)
	}
	return g, nil
}

// Detect finds the largest external contour of the next frame's mask and
// reports its bounding-box centre.
func (c *Camera) Detect(ctx context.Context) (vision.Detection, error) {
	if err := ctx.Err(); err != nil {
		return vision.Detection{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.mask()
	if err != nil {
		return vision.Detection{}, err
	}
	defer m.Close()

	d := vision.Detection{Width: m.Cols(), Height: m.Rows()}
	contours := gocv.FindContours(m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	areas := make([]float64, contours.Size())
	for i := range areas {
		areas[i] = gocv.ContourArea(contours.At(i))
	}
	best, ok := vision.LargestContour(areas, c.cfg.MinArea)
	if !ok {
		return d, nil
	}
	rect := gocv.BoundingRect(contours.At(best))
	d.Found = true
	d.Bounds = rect
	d.X = rect.Min.X + rect.Dx()/2
	d.Y = rect.Min.Y + rect.Dy()/2
	d.Area = max(int(areas[best]), 1)
	return d, nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.frame.Close()
	return c.cap.Close()
}
