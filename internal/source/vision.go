// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package source

import (
	"context"
	"fmt"

	"github.com/relabs-tech/pantilt/internal/vision"
)

// VisionCentroid reports the centre of the largest colour blob as an
// absolute pixel coordinate.
type VisionCentroid struct {
	det vision.Detector
}

// NewVisionCentroid wraps a detector.
func NewVisionCentroid(det vision.Detector) *VisionCentroid {
	return &VisionCentroid{det: det}
}

func (v *VisionCentroid) Name() string { return "vision" }
func (v *VisionCentroid) Kind() Kind   { return Pixel }

func (v *VisionCentroid) Acquire(ctx context.Context) (Reading, error) {
	d, err := v.det.Detect(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("vision: %w", err)
	}
	r := Reading{
		Kind:        Pixel,
		Detected:    d.Found,
		FrameWidth:  d.Width,
		FrameHeight: d.Height,
	}
	if d.Found {
		r.X, r.Y = d.X, d.Y
	}
	return r, nil
}

func (v *VisionCentroid) Close() error {
	return v.det.Close()
}
