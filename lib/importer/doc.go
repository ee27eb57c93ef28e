// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package importer defines the importer interface and the registry
// that resolves a (source format, extension, target format) request to
// exactly one importer.
//
// Importers come from two places. Native importers are Go values
// registered with [Registry.Register]. Plugin importers live in
// WebAssembly modules speaking the contract in lib/pluginabi; the
// registry loads each module with wazero, checks its contract major
// version before reading anything else, and registers every entry of
// its importer table. A plugin that fails to load is recorded as a
// [*LoadError] and skipped; the remaining plugins are unaffected.
//
// Each plugin import runs in a fresh module instance, so a plugin
// cannot carry state between imports and concurrent imports never
// share memory. The instance sees the source's directory read-only at
// /source and a private output directory at /output, and nothing else
// of the host filesystem.
package importer
