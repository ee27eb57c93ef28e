// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package sidecar keeps per-source metadata files that let an asset
// keep its identifier when the index does not know its source: after
// the source moved, or when the index was rebuilt.
//
// A source file inside the treasury base directory gets a sidecar next
// to it, "<file>.treasure", meant to be committed and moved together
// with the source. Every other source (files outside the base, data:
// URLs) gets one in the external directory named by the hash of its
// URL.
//
// A sidecar records, per target format, the asset id, the fingerprint
// of the source bytes it was imported from, the source format and the
// artifact hash. A recorded id is only reused when the fingerprint
// still matches.
package sidecar
