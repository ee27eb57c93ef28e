// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package treasury is the asset store engine: it turns (source, target
// format) pairs into stable asset identifiers backed by content-addressed
// artifacts.
//
// A [Treasury] owns one instance directory (the one holding
// Treasury.yaml) and composes the pieces below it:
//
//   - lib/assetindex maps (source, target) to ids and ids to entries
//   - lib/contentstore holds artifact bytes, deduplicated by hash
//   - lib/importer resolves and runs importers, native or plugin
//   - lib/source materializes file: and data: locators
//   - lib/sidecar keeps ids stable across moves and fresh checkouts
//
// [Treasury.Store] drives one orchestration per key through the states
// Resolving, Fetching, Importing, AwaitingDependencies and Finalizing.
// Concurrent stores of the same key share a single flight. Importers may
// ask for dependencies, which are stored recursively before the importer
// runs again; a dependency that would wait on its own requester fails
// with [ErrDependencyCycle] instead of deadlocking.
//
// Artifact bytes are committed to the content store before the index
// entry is appended, so an id never refers to missing content. A crash
// in between leaves an unreferenced blob and nothing else.
package treasury
