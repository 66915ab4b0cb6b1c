// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package status carries the per-tick status record of the positioning loop
// to observers: console, MQTT, OLED and web. Reporters only observe; nothing
// they receive is ever read back by the loop.
package status

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/relabs-tech/pantilt/internal/clock"
)

// AxisStatus is the state of one axis after a tick.
type AxisStatus struct {
	Current  float64 `json:"current"`
	Target   float64 `json:"target"`
	Raw      int     `json:"raw"`
	Offset   float64 `json:"offset"`
	Failures int     `json:"failures"`
}

// Status is one tick of the positioning loop.
type Status struct {
	Time     time.Time  `json:"time"`
	Tick     uint64     `json:"tick"`
	State    string     `json:"state"`
	Source   string     `json:"source"`
	Mode     string     `json:"mode"`
	Pan      AxisStatus `json:"pan"`
	Tilt     AxisStatus `json:"tilt"`
	Detected bool       `json:"detected"`
	Center   bool       `json:"center"`
	Error    string     `json:"error,omitempty"`
}

// Reporter receives every status. Report must not block for long.
type Reporter interface {
	Report(s Status)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Status)

func (f ReporterFunc) Report(s Status) { f(s) }

// Multi fans a status out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(s Status) {
	for _, r := range m {
		if r != nil {
			r.Report(s)
		}
	}
}

// Latest keeps the most recent status.
type Latest struct {
	mu   sync.RWMutex
	s    Status
	have bool
}

func (l *Latest) Report(s Status) {
	l.mu.Lock()
	l.s, l.have = s, true
	l.mu.Unlock()
}

// Get returns the latest status and whether one was reported.
func (l *Latest) Get() (Status, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.s, l.have
}

// Line renders a status as one console line.
func Line(s Status) string {
	det := "-"
	if s.Detected {
		det = "+"
	}
	line := fmt.Sprintf("[%-11s] PAN=%6.2f° (→%6.2f) TILT=%6.2f° (→%6.2f) raw=(%d,%d) det=%s",
		s.State, s.Pan.Current, s.Pan.Target, s.Tilt.Current, s.Tilt.Target, s.Pan.Raw, s.Tilt.Raw, det)
	if s.Center {
		line += " CENTER"
	}
	if s.Error != "" {
		line += " err=" + s.Error
	}
	return line
}

// Console prints status lines, at most one per interval. State changes and
// errors are always printed.
type Console struct {
	w        io.Writer
	interval time.Duration
	clock    clock.Clock

	mu        sync.Mutex
	last      time.Time
	lastState string
}

// NewConsole returns a console reporter writing to w.
func NewConsole(w io.Writer, interval time.Duration, c clock.Clock) *Console {
	if c == nil {
		c = clock.Real{}
	}
	return &Console{w: w, interval: interval, clock: c}
}

func (c *Console) Report(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	due := c.last.IsZero() || now.Sub(c.last) >= c.interval
	if !due && s.State == c.lastState && s.Error == "" {
		return
	}
	c.last = now
	c.lastState = s.State
	fmt.Fprintln(c.w, Line(s))
}
