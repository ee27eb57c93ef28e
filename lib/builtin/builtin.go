// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package builtin holds the importers linked into the treasury
// binaries. Plugins listed in Treasury.yaml are registered next to
// them.
package builtin

import (
	"context"
	"fmt"
	"os"

	"github.com/arcana-engine/treasury/lib/importer"
	"github.com/arcana-engine/treasury/lib/texture"
	"github.com/arcana-engine/treasury/lib/treasury"
)

// Importers returns the native importers.
func Importers() []treasury.Native {
	return []treasury.Native{{
		Descriptor: importer.Descriptor{
			Name:       texture.Name,
			Formats:    []string{texture.Format},
			Extensions: []string{"png"},
			Target:     texture.Target,
		},
		Importer: importer.Func(importTexture),
	}}
}

func importTexture(_ context.Context, request *importer.ImportRequest) importer.Result {
	if err := convertFile(request.OutputPath, request.SourcePath); err != nil {
		return importer.Other{Reason: err.Error()}
	}
	return importer.Success{}
}

func convertFile(outputPath, sourcePath string) error {
	in, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := texture.Convert(out, in); err != nil {
		out.Close()
		return fmt.Errorf("converting %s: %w", sourcePath, err)
	}
	return out.Close()
}
