// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package vision

import (
	"errors"
	"sync"
)

// ErrNoCamera is returned by OpenCamera when no camera driver is linked in.
var ErrNoCamera = errors.New("vision: no camera driver registered (import the cvcam package)")

// CameraConfig selects a capture device and the colour to track, in OpenCV
// HSV (hue 0-180). HueMin > HueMax wraps around red.
type CameraConfig struct {
	Device int
	Width  int // frames are scaled to this width; 0 keeps the native size

	HueMin, HueMax byte
	SatMin, SatMax byte
	ValMin, ValMax byte

	MinArea int
}

// CameraOpener opens a camera detector.
type CameraOpener func(CameraConfig) (Detector, error)

var (
	cameraMu   sync.RWMutex
	openCamera CameraOpener
)

// RegisterCamera installs the camera driver. Drivers call it from init, so
// only binaries that import one pull in its native dependencies.
func RegisterCamera(open CameraOpener) {
	cameraMu.Lock()
	defer cameraMu.Unlock()
	openCamera = open
}

// OpenCamera opens a detector through the registered driver.
func OpenCamera(cfg CameraConfig) (Detector, error) {
	cameraMu.RLock()
	open := openCamera
	cameraMu.RUnlock()
	if open == nil {
		return nil, ErrNoCamera
	}
	return open(cfg)
}
