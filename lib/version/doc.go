// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for treasury
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit]: short git SHA of the build
//   - [GitDirty]: "true" if there were uncommitted changes
//   - [BuildTime]: UTC timestamp of the build
//   - [Version]: semantic version string (set manually for releases)
//
// When GitCommit is not injected, the VCS stamp recorded by the Go
// toolchain is used instead.
//
//	go build -ldflags "-X github.com/arcana-engine/treasury/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
