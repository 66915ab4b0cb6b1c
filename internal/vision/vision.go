// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package vision finds the tracked colour blob in binary mask frames.
//
// Frames use a top-left origin, x in [0, width), y in [0, height). Any
// non-zero mask pixel belongs to the target colour.
package vision

import (
	"context"
	"errors"
	"image"
)

// ErrNoFrame is returned by a MaskSource that has no more frames.
var ErrNoFrame = errors.New("vision: no frame")

// Detection is the result for one frame. When Found is false X and Y are
// meaningless; no centroid is ever synthesized.
type Detection struct {
	Found  bool            `json:"found"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
	Area   int             `json:"area"`
	Bounds image.Rectangle `json:"-"`
	// Frame dimensions of the mask the detection came from.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detector produces one detection per frame.
type Detector interface {
	Detect(ctx context.Context) (Detection, error)
	Close() error
}

// MaskSource yields colour-filtered binary frames.
type MaskSource interface {
	NextMask(ctx context.Context) (*image.Gray, error)
	Close() error
}

// Blob is one 8-connected component of a mask.
type Blob struct {
	Bounds image.Rectangle
	Area   int
}

// Center is the bounding-box centre, x + w/2 and y + h/2 in whole pixels.
func (b Blob) Center() image.Point {
	return image.Point{
		X: b.Bounds.Min.X + b.Bounds.Dx()/2,
		Y: b.Bounds.Min.Y + b.Bounds.Dy()/2,
	}
}

// LargestBlob returns the 8-connected component of non-zero pixels with the
// largest area (pixel count). Components smaller than minArea are ignored.
// Ties go to the component met first in raster order.
func LargestBlob(mask *image.Gray, minArea int) (Blob, bool) {
	if mask == nil {
		return Blob{}, false
	}
	r := mask.Rect
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return Blob{}, false
	}
	seen := make([]bool, w*h)
	on := func(x, y int) bool {
		return mask.Pix[mask.PixOffset(x, y)] != 0
	}

	var (
		best  Blob
		found bool
		stack []image.Point
	)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := (y-r.Min.Y)*w + (x - r.Min.X)
			if seen[i] || !on(x, y) {
				continue
			}
			seen[i] = true
			stack = append(stack[:0], image.Point{X: x, Y: y})
			blob := Blob{Bounds: image.Rect(x, y, x+1, y+1)}
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				blob.Area++
				blob.Bounds = blob.Bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						q := image.Point{X: p.X + dx, Y: p.Y + dy}
						if !q.In(r) {
							continue
						}
						j := (q.Y-r.Min.Y)*w + (q.X - r.Min.X)
						if seen[j] || !on(q.X, q.Y) {
							continue
						}
						seen[j] = true
						stack = append(stack, q)
					}
				}
			}
			if blob.Area >= minArea && blob.Area > best.Area {
				best = blob
				found = true
			}
		}
	}
	return best, found
}

// LargestContour picks the contour with the largest polygon area, the first
// one on ties. Degenerate contours (a single pixel or a one pixel wide
// streak) have zero polygon area; they still count as a detection when
// minArea is at most 1.
func LargestContour(areas []float64, minArea int) (int, bool) {
	if len(areas) == 0 {
		return -1, false
	}
	best := 0
	for i, a := range areas {
		if a > areas[best] {
			best = i
		}
	}
	if minArea > 1 && areas[best] < float64(minArea) {
		return -1, false
	}
	return best, true
}

// Locate runs LargestBlob on mask and packages the result as a Detection.
func Locate(mask *image.Gray, minArea int) Detection {
	d := Detection{}
	if mask == nil {
		return d
	}
	d.Width, d.Height = mask.Rect.Dx(), mask.Rect.Dy()
	blob, ok := LargestBlob(mask, minArea)
	if !ok {
		return d
	}
	c := blob.Center().Sub(mask.Rect.Min)
	d.Found = true
	d.X, d.Y = c.X, c.Y
	d.Area = blob.Area
	d.Bounds = blob.Bounds
	return d
}

// MaskDetector detects the largest blob in frames pulled from a MaskSource.
type MaskDetector struct {
	src     MaskSource
	minArea int
}

// NewMaskDetector returns a detector over src. minArea below 1 is treated
// as 1.
func NewMaskDetector(src MaskSource, minArea int) *MaskDetector {
	if minArea < 1 {
		minArea = 1
	}
	return &MaskDetector{src: src, minArea: minArea}
}

func (d *MaskDetector) Detect(ctx context.Context) (Detection, error) {
	mask, err := d.src.NextMask(ctx)
	if err != nil {
		return Detection{}, err
	}
	return Locate(mask, d.minArea), nil
}

func (d *MaskDetector) Close() error {
	return d.src.Close()
}
