// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock is a deterministic Clock. Time stands still until Advance
// or Sleep moves it. Sleep advances the clock by d instead of blocking,
// so code that throttles on the clock makes progress in tests without
// a second goroutine driving time.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	sleeps  int
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Sleep advances the fake time by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps++
	if d > 0 {
		c.current = c.current.Add(d)
	}
}

// Advance moves the fake time forward by d. Negative durations move it
// backwards, which tests use to simulate clock steps.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Sleeps returns how many times Sleep has been called.
func (c *FakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
