// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/codec"
	"github.com/arcana-engine/treasury/lib/config"
	"github.com/arcana-engine/treasury/lib/texture"
)

// buildPlugin compiles one of the example plugins for wasip1.
func buildPlugin(t *testing.T, name string) string {
	t.Helper()
	output := filepath.Join(t.TempDir(), name+".wasm")
	command := exec.Command("go", "build", "-buildmode=c-shared", "-o", output, "./examples/plugins/"+name)
	command.Dir = filepath.Join("..", "..")
	command.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	if combined, err := command.CombinedOutput(); err != nil {
		t.Fatalf("building %s plugin: %v\n%s", name, err, combined)
	}
	return output
}

func TestExamplePlugins(t *testing.T) {
	if testing.Short() {
		t.Skip("builds WebAssembly plugins")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not on PATH")
	}

	cfg := config.Default()
	cfg.Importers = []string{buildPlugin(t, "texture"), buildPlugin(t, "material")}
	instance := newTreasury(t, cfg)

	descriptors, loadErrors := instance.Importers()
	if len(loadErrors) != 0 {
		t.Fatalf("plugins failed to load: %v", loadErrors)
	}
	if len(descriptors) != 2 {
		t.Fatalf("descriptors = %+v, want texture and material", descriptors)
	}

	base := instance.BaseDir()
	writeFile(t, base, "textures/bricks.png", cubePNG(t, 30))
	writeFile(t, base, "textures/bricks_n.png", cubePNG(t, 90))
	writeFile(t, base, "materials/full.mat", []byte("albedo: ../textures/bricks.png\nnormal: ../textures/bricks_n.png\nroughness: 0.8\n"))
	writeFile(t, base, "materials/albedo_only.mat", []byte("albedo: ../textures/bricks.png\nroughness: 0.3\n"))

	type stored struct {
		Albedo    assetid.ID `cbor:"albedo,omitzero"`
		Normal    assetid.ID `cbor:"normal,omitzero"`
		Roughness float64    `cbor:"roughness"`
	}
	load := func(source string) stored {
		t.Helper()
		id, err := instance.Store(context.Background(), source, "", "material")
		if err != nil {
			t.Fatalf("Store(%s) failed: %v", source, err)
		}
		data, err := instance.Fetch(id)
		if err != nil {
			t.Fatal(err)
		}
		var result stored
		if err := codec.Unmarshal(data, &result); err != nil {
			t.Fatalf("material artifact for %s: %v", source, err)
		}
		return result
	}
	lookup := func(source string) assetid.ID {
		t.Helper()
		id, ok, err := instance.Lookup(source, texture.Target)
		if err != nil || !ok {
			t.Fatalf("texture %s not stored: %v, %v", source, ok, err)
		}
		return id
	}

	full := load("materials/full.mat")
	albedo, normal := lookup("textures/bricks.png"), lookup("textures/bricks_n.png")
	if full.Albedo != albedo || full.Normal != normal || full.Roughness != 0.8 {
		t.Errorf("full material = %+v, want albedo %s normal %s", full, albedo, normal)
	}

	albedoOnly := load("materials/albedo_only.mat")
	if albedoOnly.Albedo != albedo || !albedoOnly.Normal.IsZero() || albedoOnly.Roughness != 0.3 {
		t.Errorf("albedo-only material = %+v, want albedo %s and no normal", albedoOnly, albedo)
	}

	data, err := instance.Fetch(albedo)
	if err != nil {
		t.Fatal(err)
	}
	if width, height, _, err := texture.Decode(data); err != nil || width != 4 || height != 4 {
		t.Errorf("plugin texture = %dx%d, %v", width, height, err)
	}
}
