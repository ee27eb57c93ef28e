// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the Treasury.yaml file that marks a treasury
// instance.
//
// The directory holding Treasury.yaml is the instance's base directory.
// Relative paths in the file (artifacts, external, temp, importers)
// resolve against it, after ${VAR} and ${VAR:-default} expansion.
// ${TREASURY_BASE} expands to the base directory itself. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- the instance settings
//   - [Default] -- a Config with the values [Create] writes for a new instance
//   - [LoadFile] and [Find] -- the entry points for loading
//
// This package depends on no other treasury packages.
package config
