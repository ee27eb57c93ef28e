// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package assetid

import (
	"errors"
	"fmt"
	"strconv"
)

// ID is an opaque asset identifier. The zero value is not a valid ID.
type ID uint64

// ErrZero is returned when parsing or decoding yields the zero value.
var ErrZero = errors.New("asset id cannot be zero")

// IsZero reports whether id is the invalid zero value.
func (id ID) IsZero() bool { return id == 0 }

// String returns the 16-digit lowercase hex form.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Parse parses the hex form produced by String. Shorter hex strings
// are accepted (leading zeros are optional).
func Parse(text string) (ID, error) {
	if text == "" || len(text) > 16 {
		return 0, fmt.Errorf("parsing asset id %q: want 1-16 hex digits", text)
	}
	value, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing asset id %q: %w", text, err)
	}
	if value == 0 {
		return 0, ErrZero
	}
	return ID(value), nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if id == 0 {
		return nil, ErrZero
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
