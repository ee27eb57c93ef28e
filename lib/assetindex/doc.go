// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetindex is the durable map from (source locator, target
// format) to asset identifier, and from identifier to the committed
// artifact and its metadata.
//
// The index lives in memory and is made durable by two files in its
// directory:
//
//	snapshot.cbor  checkpoint: CBOR {version, seq, entries}
//	log            append-only records since the checkpoint
//	lock           flock(2) target; one process owns the index
//
// Each log record is framed as
//
//	uint32 length | uint64 xxhash64(payload) | payload
//
// (big-endian) where payload is the CBOR encoding of {seq, entry}. An
// insert appends and fsyncs its record before the entry becomes
// visible to readers, so an entry a reader has observed survives a
// crash.
//
// Open loads the snapshot with sequence S and replays log records with
// seq > S. A short or checksum-failing final record is what a crash in
// the middle of an append leaves behind; it is truncated away. A bad
// record followed by more data cannot be explained by a crash and is
// reported as [ErrCorrupt].
//
// Every CheckpointInterval records the index writes a fresh snapshot
// (temp file, fsync, rename) and then empties the log. A crash between
// those two steps is harmless because replay skips records already
// covered by the snapshot.
package assetindex
