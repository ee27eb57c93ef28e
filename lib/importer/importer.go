// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"context"
	"io/fs"

	"github.com/arcana-engine/treasury/lib/assetid"
)

// Importer converts one source file into one artifact file.
type Importer interface {
	Import(ctx context.Context, request *ImportRequest) Result
}

// Func adapts a function to the Importer interface.
type Func func(ctx context.Context, request *ImportRequest) Result

// Import calls f.
func (f Func) Import(ctx context.Context, request *ImportRequest) Result {
	return f(ctx, request)
}

// ImportRequest is the input of one import attempt.
type ImportRequest struct {
	// SourcePath is the local file to read.
	SourcePath string

	// OutputPath is where the importer writes the artifact. Its
	// directory exists and is private to this attempt.
	OutputPath string

	// SourceFormat is the format hint, possibly empty.
	SourceFormat string

	// Target is the target format.
	Target string

	// Sources gives read-only access to the directory tree containing
	// SourcePath, for importers whose sources reference sibling files.
	// Paths escaping the tree fail.
	Sources fs.FS

	// Dependencies looks up assets that are already stored.
	Dependencies Dependencies
}

// Dependencies resolves dependency references to asset identifiers
// without triggering a store. source is resolved relative to the
// source being imported.
type Dependencies interface {
	Lookup(source, target string) (assetid.ID, bool)
}

// Result is the outcome of an import: [Success], [Other] or
// [RequireDependencies].
type Result interface {
	result()
}

// Success means the artifact was written to OutputPath.
type Success struct{}

// Other is a failure with a human-readable reason.
type Other struct {
	Reason string
}

// RequireDependencies asks the caller to store the listed dependencies
// and call the importer again.
type RequireDependencies struct {
	Dependencies []Dependency
}

func (Success) result()             {}
func (Other) result()               {}
func (RequireDependencies) result() {}

// Dependency is one requested dependency.
type Dependency struct {
	Source string `cbor:"source" json:"source"`
	Target string `cbor:"target" json:"target"`
}
