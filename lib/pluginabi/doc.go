// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package pluginabi defines the contract between the treasury host and
// importer plugins. Both sides import it: the host in lib/importer,
// plugins through lib/pluginsdk.
//
// A plugin is a WebAssembly module built as a WASI reactor. It exports:
//
//	memory                                   linear memory
//	_initialize()                            optional reactor init
//	treasury_abi_version() -> i32            contract major version
//	treasury_importers() -> i64              packed CBOR []Descriptor
//	treasury_alloc(size i32) -> i32          buffer for host writes
//	treasury_import(index, ptr, len i32) -> i64
//	                                         packed CBOR Reply for the
//	                                         CBOR ImportRequest at ptr
//
// and may import from module "treasury":
//
//	dependency(srcPtr, srcLen, tgtPtr, tgtLen, outPtr i32) -> i32
//
// which looks up an already-stored dependency and writes its 8-byte
// little-endian id at outPtr. See the Dependency* result codes.
//
// Packed values carry a pointer in the high 32 bits and a length in
// the low 32 bits (see [Pack]).
//
// The host checks treasury_abi_version before calling anything else. A
// plugin whose major version differs from the host's is rejected
// without its importer table ever being read, so the table layout may
// change freely between major versions.
package pluginabi
