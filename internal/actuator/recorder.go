// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"sync"
	"time"

	"github.com/relabs-tech/pantilt/internal/clock"
)

// Emission is one pulse seen by a Recorder.
type Emission struct {
	At    time.Time
	Pulse Pulse
}

// Recorder is an in-memory Output for the mock rig and tests. Setting Err
// makes subsequent emits fail until it is cleared.
type Recorder struct {
	clock clock.Clock

	mu       sync.Mutex
	err      error
	keep     int
	emits    []Emission
	releases int
}

// NewRecorder returns a recorder timestamping emits with c.
func NewRecorder(c clock.Clock) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	return &Recorder{clock: c}
}

// Keep bounds the history to the last n pulses, for long bench runs.
// n <= 0 keeps everything.
func (r *Recorder) Keep(n int) {
	r.mu.Lock()
	r.keep = n
	r.mu.Unlock()
}

// Fail makes every following Emit return err; nil restores normal operation.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Recorder) Emit(p Pulse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.emits = append(r.emits, Emission{At: r.clock.Now(), Pulse: p})
	if r.keep > 0 && len(r.emits) >= 2*r.keep {
		r.emits = append(r.emits[:0], r.emits[len(r.emits)-r.keep:]...)
	}
	return nil
}

func (r *Recorder) Release() error {
	r.mu.Lock()
	r.releases++
	r.mu.Unlock()
	return nil
}

// Emissions returns a copy of the recorded pulses, oldest first.
func (r *Recorder) Emissions() []Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.emits
	if r.keep > 0 && len(e) > r.keep {
		e = e[len(e)-r.keep:]
	}
	return append([]Emission(nil), e...)
}

// Releases reports how many times Release was called.
func (r *Recorder) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases
}
