// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for treasury packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. Unix domain sockets have a 108-byte path limit
// (sun_path in sockaddr_un), and t.TempDir() paths under a deep
// TMPDIR can exceed it. The directory is removed when the test
// completes.
//
// [RequireReceive], [RequireSend] and [RequireClosed] bound channel
// operations with a timer so a broken test fails instead of hanging.
// [Eventually] polls a condition under a deadline, for effects that
// are visible only through the filesystem or metrics.
//
// Helpers fail the test with t.Fatalf.
package testutil
