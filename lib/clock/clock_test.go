// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceAndSleep(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now = %v, want %v", c.Now(), start)
	}

	c.Advance(5 * time.Second)
	if got := c.Now().Sub(start); got != 5*time.Second {
		t.Errorf("after Advance elapsed = %v, want 5s", got)
	}

	c.Sleep(time.Millisecond)
	if got := c.Now().Sub(start); got != 5*time.Second+time.Millisecond {
		t.Errorf("after Sleep elapsed = %v", got)
	}
	if c.Sleeps() != 1 {
		t.Errorf("Sleeps = %d, want 1", c.Sleeps())
	}

	c.Advance(-time.Second)
	if got := c.Now().Sub(start); got != 4*time.Second+time.Millisecond {
		t.Errorf("after backwards Advance elapsed = %v", got)
	}
}

func TestRealClockMonotonic(t *testing.T) {
	c := Real()
	first := c.Now()
	c.Sleep(time.Millisecond)
	if !c.Now().After(first) {
		t.Error("real clock did not advance across Sleep")
	}
}
