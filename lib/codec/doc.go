// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Treasury's CBOR encoding configuration.
//
// Every persistent or wire format in Treasury is CBOR: asset index log
// records and snapshots, sidecar metadata files, the importer plugin
// wire protocol, and the service socket protocol. Sharing one encoder
// configuration means that the same logical value always produces the
// same bytes, no matter which package wrote it. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2).
//
// For buffers (files, plugin memory):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For streams (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Struct types use `cbor` tags when they only ever travel as CBOR, and
// `json` tags when they are also printed by the CLI's --json output
// (fxamacker/cbor falls back to json tags).
package codec
