// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Resolve when no importer matches.
	ErrNotFound = errors.New("no importer found")

	// ErrAmbiguous is returned by Resolve when more than one importer
	// matches and nothing disambiguates them.
	ErrAmbiguous = errors.New("more than one importer matches")

	// ErrABIMismatch marks a plugin built against another contract
	// major version.
	ErrABIMismatch = errors.New("plugin contract version mismatch")

	// ErrMalformedPlugin marks a plugin that is not a valid module, or
	// lacks a required export, or has an unreadable importer table.
	ErrMalformedPlugin = errors.New("malformed plugin")
)

// LoadError records why one plugin was rejected.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading plugin %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
