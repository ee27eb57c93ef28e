// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that reads the wall clock (identifier minting, sidecar and index
// timestamps) takes a Clock instead of calling time.Now directly.
// Production wiring uses Real(); tests use Fake(), whose time moves
// only when Advance or Sleep is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	generator := assetid.NewGenerator(c, 7)
//	c.Advance(time.Millisecond)
package clock
