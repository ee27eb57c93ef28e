// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package source parses source locators and materializes them as local
// files for importers.
//
// A [Locator] is always an absolute URL. Plain paths are resolved
// against a base directory and become file: URLs, so the same source
// reached through different relative paths has one canonical form.
//
// Only file: and data: locators can be fetched. A file: locator is
// used in place. A data: locator is decoded into a private temporary
// directory that is removed when the caller releases the [Material].
// Any other scheme parses fine but fails to fetch with
// [ErrUnsupportedScheme].
package source
