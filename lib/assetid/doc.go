// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetid defines the opaque asset identifier and its minting.
//
// An [ID] is a non-zero 64-bit value printed as 16 lowercase hex
// digits. It is minted once per successful store of a (source, target
// format) pair and never changes afterwards. Identifiers are
// deliberately independent of artifact content: two identifiers may
// reference byte-identical artifacts, and re-importing a changed source
// never reuses a content-derived value.
//
// [Generator] composes a millisecond timestamp, a 10-bit node number,
// and a 12-bit per-millisecond counter, then scrambles the result by
// multiplying with an odd constant. Multiplication by an odd number is
// a bijection on uint64, so distinct inputs stay distinct while
// consecutive identifiers no longer look sequential.
package assetid
