// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/sidecar"
	"github.com/arcana-engine/treasury/lib/source"
)

// dependencies is the importer's view of already-stored assets. It
// never starts a store.
type dependencies struct {
	treasury *Treasury
	locator  source.Locator
}

// Lookup resolves sourceRaw against the importing source and consults
// the index, then the sidecar of a local file.
func (d *dependencies) Lookup(sourceRaw, target string) (assetid.ID, bool) {
	locator, err := d.locator.Resolve(sourceRaw, d.treasury.BaseDir())
	if err != nil {
		return 0, false
	}
	if id, ok := d.treasury.index.LookupByKey(locator.String(), target); ok {
		return id, true
	}

	filePath := locator.FilePath()
	if filePath == "" {
		return 0, false
	}
	fingerprint, err := sidecar.FingerprintFile(filePath)
	if err != nil {
		return 0, false
	}
	asset, status, err := d.treasury.sidecars.Lookup(locator, target, fingerprint)
	if err != nil || status != sidecar.Match {
		return 0, false
	}
	return asset.ID, true
}
