// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// pollInterval is how often Eventually re-checks its condition.
const pollInterval = 5 * time.Millisecond

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed first.
//
//	id := testutil.RequireReceive(t, results, 5*time.Second, "store result")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before a value arrived: %s", describe(msgAndArgs))
		}
		return v
	case <-timer.C:
		t.Fatalf("no value after %v: %s", timeout, describe(msgAndArgs))
		panic("unreachable")
	}
}

// RequireSend sends v on ch, failing the test if no receiver takes it
// within timeout.
func RequireSend[T any](t TB, ch chan<- T, v T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case ch <- v:
	case <-timer.C:
		t.Fatalf("send blocked for %v: %s", timeout, describe(msgAndArgs))
	}
}

// RequireClosed waits for a signal channel to close or deliver.
//
//	testutil.RequireClosed(t, started, 5*time.Second, "importer started")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("channel still open after %v: %s", timeout, describe(msgAndArgs))
	}
}

// Eventually polls condition until it holds, failing the test once
// timeout elapses.
//
//	testutil.Eventually(t, 5*time.Second, func() bool { return store.Len() == 3 }, "three entries")
func Eventually(t TB, timeout time.Duration, condition func() bool, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout) //nolint:realclock test hang prevention
	for !condition() {
		if time.Now().After(deadline) { //nolint:realclock test hang prevention
			t.Fatalf("condition still false after %v: %s", timeout, describe(msgAndArgs))
		}
		time.Sleep(pollInterval) //nolint:realclock polling interval
	}
}

// describe renders the optional message: nothing, a value, or a
// format string and its arguments.
func describe(msgAndArgs []any) string {
	switch {
	case len(msgAndArgs) == 0:
		return "(no message)"
	case len(msgAndArgs) == 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
