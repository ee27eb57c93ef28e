// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/assetindex"
	"github.com/arcana-engine/treasury/lib/importer"
)

// Action names.
const (
	ActionStore     = "store"
	ActionFetch     = "fetch"
	ActionFind      = "find"
	ActionInfo      = "info"
	ActionImporters = "importers"
	ActionStatus    = "status"
)

// StoreRequest asks the service to import a source.
type StoreRequest struct {
	Source string `cbor:"source" json:"source"`
	Format string `cbor:"format,omitempty" json:"format,omitempty"`
	Target string `cbor:"target" json:"target"`
}

// StoreResponse carries the id of a stored asset.
type StoreResponse struct {
	ID assetid.ID `cbor:"id" json:"id"`
}

// FindRequest asks for the id of (source, target), storing on a miss.
type FindRequest struct {
	Source string `cbor:"source" json:"source"`
	Target string `cbor:"target" json:"target"`
}

// FindResponse reports the result of a find. ID is absent when Found
// is false.
type FindResponse struct {
	Found bool       `cbor:"found" json:"found"`
	ID    assetid.ID `cbor:"id,omitzero" json:"id,omitzero"`
}

// AssetRequest names one asset. Used by fetch and info.
type AssetRequest struct {
	ID assetid.ID `cbor:"id" json:"id"`

	// PathOnly asks fetch for the artifact file path instead of its
	// bytes. Fails when the service compresses artifacts.
	PathOnly bool `cbor:"path_only,omitempty" json:"path_only,omitempty"`
}

// FetchResponse carries an artifact. Exactly one of Data and Path is
// set, depending on AssetRequest.PathOnly.
type FetchResponse struct {
	Data []byte `cbor:"data,omitempty" json:"data,omitempty"`
	Path string `cbor:"path,omitempty" json:"path,omitempty"`
}

// InfoResponse is the index entry of an asset.
type InfoResponse = assetindex.Entry

// PluginFailure is a plugin the service could not load.
type PluginFailure struct {
	Path  string `cbor:"path" json:"path"`
	Error string `cbor:"error" json:"error"`
}

// ImportersResponse lists the registered importers.
type ImportersResponse struct {
	Importers []importer.Descriptor `cbor:"importers" json:"importers"`
	Failed    []PluginFailure       `cbor:"failed,omitempty" json:"failed,omitempty"`
}

// NewImportersResponse builds the response from registry state.
func NewImportersResponse(descriptors []importer.Descriptor, loadErrors []*importer.LoadError) ImportersResponse {
	response := ImportersResponse{Importers: descriptors}
	for _, loadErr := range loadErrors {
		response.Failed = append(response.Failed, PluginFailure{
			Path:  loadErr.Path,
			Error: loadErr.Err.Error(),
		})
	}
	return response
}

// StatusResponse describes a running service.
type StatusResponse struct {
	BaseDir       string `cbor:"base_dir" json:"base_dir"`
	Assets        int    `cbor:"assets" json:"assets"`
	Importers     int    `cbor:"importers" json:"importers"`
	UptimeSeconds int64  `cbor:"uptime_seconds" json:"uptime_seconds"`
	Version       string `cbor:"version" json:"version"`
}
