// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package pluginabi

// Descriptor is one entry in a plugin's importer table.
type Descriptor struct {
	Name string `cbor:"name" json:"name"`

	// Formats are the source format tags the importer accepts.
	Formats []string `cbor:"formats,omitempty" json:"formats,omitempty"`

	// Extensions are file extensions, without the dot, the importer
	// claims for sources with no format hint.
	Extensions []string `cbor:"extensions,omitempty" json:"extensions,omitempty"`

	// Target is the format the importer produces.
	Target string `cbor:"target" json:"target"`
}

// ImportRequest is passed to treasury_import. Paths are guest paths
// under SourceMount and OutputMount.
type ImportRequest struct {
	Source       string `cbor:"source" json:"source"`
	Output       string `cbor:"output" json:"output"`
	SourceFormat string `cbor:"source_format,omitempty" json:"source_format,omitempty"`
	Target       string `cbor:"target" json:"target"`
}

// Status is the outcome kind of an import.
type Status string

const (
	// StatusOK means the artifact was written to the output path.
	StatusOK Status = "ok"

	// StatusOther is a failure with a human-readable reason.
	StatusOther Status = "other"

	// StatusRequireDependencies asks the host to store the listed
	// dependencies and call the importer again.
	StatusRequireDependencies Status = "require-dependencies"
)

// Dependency names a source the importer needs stored first.
type Dependency struct {
	// Source is a locator, resolved relative to the importing source.
	Source string `cbor:"source" json:"source"`
	Target string `cbor:"target" json:"target"`
}

// Reply is the result of treasury_import.
type Reply struct {
	Status       Status       `cbor:"status" json:"status"`
	Reason       string       `cbor:"reason,omitempty" json:"reason,omitempty"`
	Dependencies []Dependency `cbor:"dependencies,omitempty" json:"dependencies,omitempty"`
}
