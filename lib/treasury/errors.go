// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for asset ids the index does not know.
	ErrNotFound = errors.New("asset not found")

	// ErrDependencyCycle is returned when a dependency request would
	// wait, directly or through other flights, on its requester.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrTooManyRounds is returned when an importer keeps requesting
	// dependencies past the configured round limit.
	ErrTooManyRounds = errors.New("too many dependency rounds")

	// ErrClosed is returned by operations on a closed Treasury.
	ErrClosed = errors.New("treasury is closed")

	// errAbandoned completes a flight whose callers all went away
	// before its output was committed.
	errAbandoned = errors.New("store abandoned by every caller")
)

// ImportFailedError is an importer-reported failure.
type ImportFailedError struct {
	Source   string
	Target   string
	Importer string
	Reason   string
}

func (e *ImportFailedError) Error() string {
	return fmt.Sprintf("importing %s -> %s with %s: %s", e.Source, e.Target, e.Importer, e.Reason)
}
