// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentstore implements the content-addressed artifact store.
//
// Every blob is named by the BLAKE3 keyed hash of its uncompressed
// bytes under the "treasury.artifact" domain. Blobs live in a two-level
// layout, <root>/<first two hex digits>/<full hex>, with a ".lz4" or
// ".zst" suffix when stored compressed. Because the hash covers the
// uncompressed bytes, deduplication works across compression settings:
// a blob committed as zstd satisfies a later uncompressed put of the
// same content.
//
// Writes go through <root>/tmp: data is written to a temporary file,
// fsynced, renamed into place, and the shard directory is fsynced. A
// blob is therefore either absent or complete. Two concurrent puts of
// the same content both rename identical bytes onto the same name,
// which is harmless.
//
// The store never deletes blobs. A crash after a put but before the
// caller records the hash anywhere leaves an orphan blob, which costs
// disk space but never breaks a reader.
package contentstore
