// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package assetindex

import (
	"errors"
	"fmt"
	"time"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/contentstore"
)

// Key identifies an asset by where it came from and what it became.
type Key struct {
	// Source is the canonical absolute URL of the source.
	Source string

	// Target is the target format tag.
	Target string
}

func (k Key) String() string {
	return k.Source + " -> " + k.Target
}

// Entry is one committed asset.
type Entry struct {
	ID           assetid.ID        `cbor:"id" json:"id"`
	Source       string            `cbor:"source" json:"source"`
	Target       string            `cbor:"target" json:"target"`
	SourceFormat string            `cbor:"source_format,omitempty" json:"source_format,omitempty"`
	Importer     string            `cbor:"importer,omitempty" json:"importer,omitempty"`
	Artifact     contentstore.Hash `cbor:"artifact" json:"artifact"`
	Size         int64             `cbor:"size" json:"size"`
	CreatedAt    time.Time         `cbor:"created_at" json:"created_at"`
}

// Key returns the lookup key of the entry.
func (e Entry) Key() Key {
	return Key{Source: e.Source, Target: e.Target}
}

func (e Entry) validate() error {
	if e.ID.IsZero() {
		return errors.New("entry has zero id")
	}
	if e.Source == "" {
		return errors.New("entry has empty source")
	}
	if e.Target == "" {
		return errors.New("entry has empty target")
	}
	if e.Artifact.IsZero() {
		return fmt.Errorf("entry %s has no artifact hash", e.ID)
	}
	return nil
}

var (
	// ErrExists is matched by [*ExistsError].
	ErrExists = errors.New("asset already indexed")

	// ErrCorrupt is returned by Open when the snapshot or log cannot
	// be explained by a crash. The index must be repaired by hand.
	ErrCorrupt = errors.New("asset index is corrupt")

	// ErrLocked is returned by Open when another process owns the
	// index.
	ErrLocked = errors.New("asset index is locked by another process")

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("asset index is closed")
)

// ExistsError reports an insert whose key or id is already indexed.
type ExistsError struct {
	Key Key

	// ID is the identifier already recorded for Key.
	ID assetid.ID
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("%s already indexed as %s", e.Key, e.ID)
}

func (e *ExistsError) Unwrap() error { return ErrExists }
