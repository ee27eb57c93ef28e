// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package pluginsdk is the guest side of the importer plugin contract
// (see lib/pluginabi). A plugin is a main package that registers its
// importers from init and is built as a WASI reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o texture.wasm ./examples/plugins/texture
//
// Registration:
//
//	func init() {
//		pluginsdk.Register(pluginabi.Descriptor{
//			Name:       "png-texture",
//			Formats:    []string{"png"},
//			Extensions: []string{"png"},
//			Target:     "texture",
//		}, importTexture)
//	}
//
// The import function reads request.SourcePath and writes
// request.OutputPath; both are guest paths inside directories the host
// mounts for the duration of the call. Files next to the source are
// readable through the same mount.
//
// Everything in this package except this documentation is built only
// for GOOS=wasip1.
package pluginsdk
