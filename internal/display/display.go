// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display shows the rig status on a 128x64 SSD1306 OLED.
package display

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/pantilt/internal/log"
	"github.com/relabs-tech/pantilt/internal/status"
)

const (
	width  = 128
	height = 64
)

// Panel is a monochrome display. *ssd1306.Dev implements it.
type Panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// Open initializes an SSD1306 at its default address on bus.
func Open(bus i2c.Bus) (*ssd1306.Dev, error) {
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("ssd1306: %w", err)
	}
	return dev, nil
}

func canvas(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(l))
	}
	return img
}

// Render draws a status page. Without a status it shows a waiting screen.
func Render(s status.Status, have bool) *image1bit.VerticalLSB {
	if !have {
		return canvas("", "Pan/Tilt", "Waiting...")
	}
	state := s.State
	if s.Center {
		state += " *"
	}
	det := ""
	if s.Mode == "absolute" {
		det = "target: none"
		if s.Detected {
			det = "target: locked"
		}
	}
	return canvas(
		state,
		fmt.Sprintf("PAN : %6.1f", s.Pan.Current),
		fmt.Sprintf("TILT: %6.1f", s.Tilt.Current),
		det,
	)
}

// Splash shows the startup screen.
func Splash(p Panel) error {
	return p.Draw(p.Bounds(), canvas("", "  relabs pan/tilt", "  starting..."), image.Point{})
}

// Display keeps the latest status and redraws it periodically, so the loop
// never waits on the I2C transfer.
type Display struct {
	panel  Panel
	latest status.Latest
	log    *slog.Logger
}

// New returns a display reporter on panel.
func New(p Panel) *Display {
	return &Display{panel: p, log: log.With("component", "display")}
}

func (d *Display) Report(s status.Status) {
	d.latest.Report(s)
}

// Refresh draws the latest status once.
func (d *Display) Refresh() error {
	s, have := d.latest.Get()
	return d.panel.Draw(d.panel.Bounds(), Render(s, have), image.Point{})
}

// Run redraws every interval until ctx is done, then blanks the panel.
func (d *Display) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return d.panel.Halt()
		case <-ticker.C:
			if err := d.Refresh(); err != nil {
				d.log.Warn("display update failed", "err", err)
			}
		}
	}
}
