// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the treasury command line.
//
// Commands open the instance whose Treasury.yaml is found in --base or
// its nearest ancestor and run in-process. With --socket they talk to a
// running treasury-service instead, sharing its imports in flight.
// Relative source paths are resolved against the working directory in
// both modes.
package main
