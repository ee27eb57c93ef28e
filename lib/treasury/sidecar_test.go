// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/importer"
	"github.com/arcana-engine/treasury/lib/sidecar"
	"github.com/arcana-engine/treasury/lib/source"
	"github.com/arcana-engine/treasury/lib/texture"
)

func moveWithSidecar(t *testing.T, base, from, to string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(filepath.Join(base, to)), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, suffix := range []string{"", sidecar.Extension} {
		if err := os.Rename(filepath.Join(base, from)+suffix, filepath.Join(base, to)+suffix); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMovedSourceKeepsID(t *testing.T) {
	textures := &counted{fn: textureImport}
	instance := newTreasury(t, nil, native(texture.Name, texture.Format, texture.Target, textures))
	writeFile(t, instance.BaseDir(), "old/cube.png", cubePNG(t, 30))

	id, err := instance.Store(context.Background(), "old/cube.png", "", "texture")
	if err != nil {
		t.Fatal(err)
	}
	moveWithSidecar(t, instance.BaseDir(), "old/cube.png", "new/cube.png")

	moved, err := instance.Store(context.Background(), "new/cube.png", "", "texture")
	if err != nil {
		t.Fatalf("Store after move failed: %v", err)
	}
	if moved != id {
		t.Errorf("moved source got %s, want %s", moved, id)
	}
	if calls := textures.calls.Load(); calls != 1 {
		t.Errorf("importer calls = %d, want 1", calls)
	}
	for _, path := range []string{"old/cube.png", "new/cube.png"} {
		if got, ok, _ := instance.Lookup(path, "texture"); !ok || got != id {
			t.Errorf("Lookup(%s) = %s, %v; want %s", path, got, ok, id)
		}
	}
	if entry, err := instance.Info(id); err != nil || filepath.Base(filepath.Dir(entry.Source)) != "new" {
		t.Errorf("Info(%s) = %+v, %v; want the latest source", id, entry, err)
	}
}

func TestStaleSidecarImportsAgain(t *testing.T) {
	textures := &counted{fn: textureImport}
	instance := newTreasury(t, nil, native(texture.Name, texture.Format, texture.Target, textures))
	writeFile(t, instance.BaseDir(), "old/cube.png", cubePNG(t, 30))

	id, err := instance.Store(context.Background(), "old/cube.png", "", "texture")
	if err != nil {
		t.Fatal(err)
	}
	moveWithSidecar(t, instance.BaseDir(), "old/cube.png", "new/cube.png")
	edited := writeFile(t, instance.BaseDir(), "new/cube.png", cubePNG(t, 240))

	fresh, err := instance.Store(context.Background(), "new/cube.png", "", "texture")
	if err != nil {
		t.Fatalf("Store of edited source failed: %v", err)
	}
	if fresh == id {
		t.Fatal("edited source reused the stale id")
	}
	if calls := textures.calls.Load(); calls != 2 {
		t.Errorf("importer calls = %d, want 2", calls)
	}

	locator, err := source.FromPath(edited)
	if err != nil {
		t.Fatal(err)
	}
	fingerprint, err := sidecar.FingerprintFile(edited)
	if err != nil {
		t.Fatal(err)
	}
	asset, status, err := instance.sidecars.Lookup(locator, "texture", fingerprint)
	if err != nil || status != sidecar.Match || asset.ID != fresh {
		t.Errorf("sidecar after re-import = %+v, %v, %v; want %s", asset, status, err, fresh)
	}
}

func TestSidecarWithoutArtifactKeepsID(t *testing.T) {
	textures := &counted{fn: textureImport}
	natives := []Native{native(texture.Name, texture.Format, texture.Target, textures)}
	first := newTreasury(t, nil, natives...)
	cube := cubePNG(t, 77)
	writeFile(t, first.BaseDir(), "cube.png", cube)
	id, err := first.Store(context.Background(), "cube.png", "", "texture")
	if err != nil {
		t.Fatal(err)
	}

	// A fresh checkout: the source and its sidecar, no artifacts.
	second := newTreasury(t, nil, natives...)
	writeFile(t, second.BaseDir(), "cube.png", cube)
	data, err := os.ReadFile(filepath.Join(first.BaseDir(), "cube.png"+sidecar.Extension))
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, second.BaseDir(), "cube.png"+sidecar.Extension, data)

	again, err := second.Store(context.Background(), "cube.png", "", "texture")
	if err != nil {
		t.Fatalf("Store in fresh checkout failed: %v", err)
	}
	if again != id {
		t.Errorf("fresh checkout got %s, want the sidecar id %s", again, id)
	}
	if calls := textures.calls.Load(); calls != 2 {
		t.Errorf("importer calls = %d, want 2", calls)
	}
}

func TestDependencyLookupUsesSidecar(t *testing.T) {
	instance := newTreasury(t, nil, native(texture.Name, texture.Format, texture.Target, importer.Func(textureImport)))
	writeFile(t, instance.BaseDir(), "old/cube.png", cubePNG(t, 5))
	id, err := instance.Store(context.Background(), "old/cube.png", "", "texture")
	if err != nil {
		t.Fatal(err)
	}
	moveWithSidecar(t, instance.BaseDir(), "old/cube.png", "new/cube.png")

	materialPath := writeFile(t, instance.BaseDir(), "new/cube.mat", nil)
	locator, err := source.FromPath(materialPath)
	if err != nil {
		t.Fatal(err)
	}
	lookup := &dependencies{treasury: instance, locator: locator}
	if got, ok := lookup.Lookup("cube.png", "texture"); !ok || got != id {
		t.Errorf("Lookup through sidecar = %s, %v; want %s", got, ok, id)
	}
	if _, ok := lookup.Lookup("missing.png", "texture"); ok {
		t.Error("Lookup found a missing source")
	}
}

func TestStoreIdempotenceProperty(t *testing.T) {
	copies := &counted{fn: copyImport}
	instance := newTreasury(t, nil, native("copy", "txt", "copy", copies))
	names := []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}
	for _, name := range names {
		writeFile(t, instance.BaseDir(), name, []byte("content of "+name))
	}
	known := make(map[string]assetid.ID)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("each source is imported once and keeps its id", prop.ForAll(
		func(order []int) bool {
			for _, index := range order {
				name := names[index]
				id, err := instance.Store(context.Background(), name, "", "copy")
				if err != nil {
					return false
				}
				if previous, ok := known[name]; ok && previous != id {
					return false
				}
				known[name] = id
			}
			return int(copies.calls.Load()) == len(known)
		},
		gen.SliceOf(gen.IntRange(0, len(names)-1)),
	))

	properties.TestingRun(t)
}
