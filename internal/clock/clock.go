// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock abstracts wall-clock time so timing-sensitive code
// (pulse generation, RC timing, centring holds) can run against a fake.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and a blocking sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Fake is a manually driven clock. Sleep advances the fake time instead of
// blocking, so code under test observes exactly the durations it waited.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
}

// Advance moves the fake time forward by d (negative values are ignored).
func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// WaitUntil polls cond every poll interval until it returns true or timeout
// has elapsed since the call, measured on c. It returns the elapsed time and
// whether cond was satisfied. The wait is always bounded by timeout.
func WaitUntil(c Clock, timeout, poll time.Duration, cond func() bool) (time.Duration, bool) {
	start := c.Now()
	deadline := start.Add(timeout)
	for {
		if cond() {
			return c.Now().Sub(start), true
		}
		now := c.Now()
		if !now.Before(deadline) {
			return now.Sub(start), false
		}
		step := poll
		if remaining := deadline.Sub(now); step > remaining {
			step = remaining
		}
		c.Sleep(step)
	}
}

// SleepUntil blocks until t, returning immediately if t has passed.
func SleepUntil(c Clock, t time.Time) {
	if d := t.Sub(c.Now()); d > 0 {
		c.Sleep(d)
	}
}
