// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements treasury-service, which keeps one treasury
// instance open and serves it over a Unix socket.
//
// Running the instance in one long-lived process lets every client share
// the single-flight table, the loaded plugins and the index lock. The
// protocol is lib/service's one-request-per-connection CBOR exchange;
// the actions are defined in lib/protocol.
//
// Settings come from the environment:
//
//   - TREASURY_BASE: directory searched upward for Treasury.yaml
//     (default: working directory)
//   - TREASURY_SOCKET: socket path (default: treasury.sock in the
//     instance's temp directory)
//   - TREASURY_LOG_LEVEL: debug, info, warn or error (default info)
//   - TREASURY_METRICS_ADDR: if set, Prometheus metrics are served at
//     /metrics on this address
package main
