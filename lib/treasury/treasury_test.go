// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/arcana-engine/treasury/lib/config"
	"github.com/arcana-engine/treasury/lib/contentstore"
	"github.com/arcana-engine/treasury/lib/importer"
	"github.com/arcana-engine/treasury/lib/source"
	"github.com/arcana-engine/treasury/lib/texture"
)

// counted wraps an importer function and counts invocations.
type counted struct {
	calls atomic.Int32
	fn    importer.Func
}

func (c *counted) Import(ctx context.Context, request *importer.ImportRequest) importer.Result {
	c.calls.Add(1)
	return c.fn(ctx, request)
}

func native(name, extension, target string, imp importer.Importer) Native {
	return Native{
		Descriptor: importer.Descriptor{
			Name:       name,
			Formats:    []string{extension},
			Extensions: []string{extension},
			Target:     target,
		},
		Importer: imp,
	}
}

// copyImport writes "copy:" followed by the source bytes.
func copyImport(_ context.Context, request *importer.ImportRequest) importer.Result {
	data, err := os.ReadFile(request.SourcePath)
	if err != nil {
		return importer.Other{Reason: err.Error()}
	}
	if err := os.WriteFile(request.OutputPath, append([]byte("copy:"), data...), 0o644); err != nil {
		return importer.Other{Reason: err.Error()}
	}
	return importer.Success{}
}

func textureImport(_ context.Context, request *importer.ImportRequest) importer.Result {
	in, err := os.Open(request.SourcePath)
	if err != nil {
		return importer.Other{Reason: err.Error()}
	}
	defer in.Close()
	out, err := os.Create(request.OutputPath)
	if err != nil {
		return importer.Other{Reason: err.Error()}
	}
	defer out.Close()
	if err := texture.Convert(out, in); err != nil {
		return importer.Other{Reason: err.Error()}
	}
	return importer.Success{}
}

func testOptions(natives ...Native) Options {
	return Options{
		Logger:    slog.New(slog.DiscardHandler),
		Node:      7,
		Importers: natives,
	}
}

func newTreasury(t *testing.T, cfg *config.Config, natives ...Native) *Treasury {
	t.Helper()
	instance, err := Init(context.Background(), t.TempDir(), cfg, testOptions(natives...))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { instance.Close() })
	return instance
}

func writeFile(t *testing.T, base, relative string, data []byte) string {
	t.Helper()
	path := filepath.Join(base, relative)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func cubePNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.Set(x, y, color.NRGBA{R: shade, G: uint8(x * 60), B: uint8(y * 60), A: 255})
		}
	}
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func countBlobs(t *testing.T, instance *Treasury) int {
	t.Helper()
	root := filepath.Join(instance.Config().Artifacts, "content")
	count := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() && entry.Name() == "tmp" {
			return filepath.SkipDir
		}
		if !entry.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return count
}

func TestStoreCubeTexture(t *testing.T) {
	textures := &counted{fn: textureImport}
	instance := newTreasury(t, nil, native(texture.Name, texture.Format, texture.Target, textures))
	writeFile(t, instance.BaseDir(), "cube.png", cubePNG(t, 200))

	id, err := instance.Store(context.Background(), "cube.png", "", "texture")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if id.IsZero() {
		t.Fatal("Store returned a zero id")
	}

	data, err := instance.Fetch(id)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	width, height, _, err := texture.Decode(data)
	if err != nil {
		t.Fatalf("artifact is not a texture: %v", err)
	}
	if width != 4 || height != 4 {
		t.Errorf("texture size = %dx%d, want 4x4", width, height)
	}

	entry, err := instance.Info(id)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if entry.Importer != texture.Name || entry.SourceFormat != "png" || entry.Target != "texture" {
		t.Errorf("Info = %+v", entry)
	}
	if entry.Size != int64(len(data)) {
		t.Errorf("Info size = %d, want %d", entry.Size, len(data))
	}

	path, err := instance.FetchPath(id)
	if err != nil {
		t.Fatalf("FetchPath failed: %v", err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(onDisk, data) {
		t.Errorf("FetchPath file does not hold the artifact: %v", err)
	}

	if _, err := os.Stat(filepath.Join(instance.BaseDir(), "cube.png.treasure")); err != nil {
		t.Errorf("sidecar not written: %v", err)
	}
}

func TestStoreIsIdempotent(t *testing.T) {
	copies := &counted{fn: copyImport}
	natives := []Native{native("copy", "txt", "copy", copies)}
	instance := newTreasury(t, nil, natives...)
	writeFile(t, instance.BaseDir(), "notes/hello.txt", []byte("hello"))

	first, err := instance.Store(context.Background(), "notes/hello.txt", "", "copy")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	second, err := instance.Store(context.Background(), "notes/hello.txt", "", "copy")
	if err != nil {
		t.Fatalf("second Store failed: %v", err)
	}
	if first != second {
		t.Errorf("second Store = %s, want %s", second, first)
	}
	if calls := copies.calls.Load(); calls != 1 {
		t.Errorf("importer calls = %d, want 1", calls)
	}

	configPath := filepath.Join(instance.BaseDir(), config.FileName)
	if err := instance.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	reopened, err := Open(context.Background(), configPath, testOptions(natives...))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Close()

	third, err := reopened.Store(context.Background(), "notes/hello.txt", "", "copy")
	if err != nil {
		t.Fatalf("Store after reopen failed: %v", err)
	}
	if third != first {
		t.Errorf("Store after reopen = %s, want %s", third, first)
	}
	if calls := copies.calls.Load(); calls != 1 {
		t.Errorf("importer calls after reopen = %d, want 1", calls)
	}
}

func TestStoreDeduplicatesContent(t *testing.T) {
	instance := newTreasury(t, nil, native(texture.Name, texture.Format, texture.Target, importer.Func(textureImport)))
	cube := cubePNG(t, 90)
	writeFile(t, instance.BaseDir(), "a/cube.png", cube)
	writeFile(t, instance.BaseDir(), "b/cube.png", cube)

	first, err := instance.Store(context.Background(), "a/cube.png", "", "texture")
	if err != nil {
		t.Fatal(err)
	}
	second, err := instance.Store(context.Background(), "b/cube.png", "", "texture")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("distinct sources share an id")
	}

	firstEntry, _ := instance.Info(first)
	secondEntry, _ := instance.Info(second)
	if firstEntry.Artifact != secondEntry.Artifact {
		t.Errorf("artifacts differ: %s and %s", firstEntry.Artifact, secondEntry.Artifact)
	}
	if blobs := countBlobs(t, instance); blobs != 1 {
		t.Errorf("content store holds %d blobs, want 1", blobs)
	}
}

func TestStoreAfterCommitWithoutIndexEntry(t *testing.T) {
	instance := newTreasury(t, nil, native(texture.Name, texture.Format, texture.Target, importer.Func(textureImport)))
	cube := cubePNG(t, 10)
	writeFile(t, instance.BaseDir(), "cube.png", cube)

	// A crash between commit and index append leaves exactly this.
	var artifact bytes.Buffer
	if err := texture.Convert(&artifact, bytes.NewReader(cube)); err != nil {
		t.Fatal(err)
	}
	hash, err := instance.content.Put(artifact.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := instance.Lookup("cube.png", "texture"); ok {
		t.Fatal("orphaned artifact is visible through the index")
	}

	id, err := instance.Store(context.Background(), "cube.png", "", "texture")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	entry, _ := instance.Info(id)
	if entry.Artifact != hash {
		t.Errorf("artifact = %s, want %s", entry.Artifact, hash)
	}
	if blobs := countBlobs(t, instance); blobs != 1 {
		t.Errorf("content store holds %d blobs, want 1", blobs)
	}
}

func TestStoreImporterFailure(t *testing.T) {
	failing := importer.Func(func(context.Context, *importer.ImportRequest) importer.Result {
		return importer.Other{Reason: "unsupported bit depth"}
	})
	instance := newTreasury(t, nil, native("broken", "png", "texture", failing))
	writeFile(t, instance.BaseDir(), "cube.png", cubePNG(t, 1))

	_, err := instance.Store(context.Background(), "cube.png", "", "texture")
	var failed *ImportFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Store error = %v, want *ImportFailedError", err)
	}
	if failed.Reason != "unsupported bit depth" || failed.Importer != "broken" {
		t.Errorf("ImportFailedError = %+v", failed)
	}
	if _, ok, _ := instance.Lookup("cube.png", "texture"); ok {
		t.Error("failed store left an index entry")
	}
	if blobs := countBlobs(t, instance); blobs != 0 {
		t.Errorf("failed store left %d blobs", blobs)
	}
}

func TestStorePanickingImporter(t *testing.T) {
	panicking := importer.Func(func(context.Context, *importer.ImportRequest) importer.Result {
		panic("boom")
	})
	instance := newTreasury(t, nil, native("panics", "txt", "copy", panicking))
	writeFile(t, instance.BaseDir(), "a.txt", []byte("a"))

	_, err := instance.Store(context.Background(), "a.txt", "", "copy")
	var failed *ImportFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Store error = %v, want *ImportFailedError", err)
	}
}

func TestStoreWithoutImporter(t *testing.T) {
	instance := newTreasury(t, nil, native("copy", "txt", "copy", importer.Func(copyImport)))
	writeFile(t, instance.BaseDir(), "cube.png", cubePNG(t, 1))

	_, err := instance.Store(context.Background(), "cube.png", "", "texture")
	if !errors.Is(err, importer.ErrNotFound) {
		t.Fatalf("Store error = %v, want importer.ErrNotFound", err)
	}
}

func TestStoreUnsupportedScheme(t *testing.T) {
	instance := newTreasury(t, nil, native(texture.Name, texture.Format, texture.Target, importer.Func(textureImport)))

	_, err := instance.Store(context.Background(), "https://example.com/cube.png", "", "texture")
	if !errors.Is(err, source.ErrUnsupportedScheme) {
		t.Fatalf("Store error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestStoreUnsupportedSchemeWithSeveralImporters(t *testing.T) {
	instance := newTreasury(t, nil,
		native("png-tex", "png", texture.Target, importer.Func(textureImport)),
		native("jpg-tex", "jpg", texture.Target, importer.Func(textureImport)),
	)

	for _, raw := range []string{"https://example.com/cube.png", "ftp://example.com/cube.jpg"} {
		_, err := instance.Store(context.Background(), raw, "", texture.Target)
		if !errors.Is(err, source.ErrUnsupportedScheme) {
			t.Errorf("Store(%s) error = %v, want ErrUnsupportedScheme", raw, err)
		}
		if errors.Is(err, importer.ErrAmbiguous) {
			t.Errorf("Store(%s) reached importer resolution: %v", raw, err)
		}
	}
}

func TestStoreDataURL(t *testing.T) {
	copies := &counted{fn: copyImport}
	instance := newTreasury(t, nil, native("copy", "txt", "copy", copies))

	id, err := instance.Store(context.Background(), "data:text/plain,inline%20text", "txt", "copy")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	data, err := instance.Fetch(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "copy:inline text" {
		t.Errorf("artifact = %q", data)
	}

	again, err := instance.Store(context.Background(), "data:text/plain,inline%20text", "", "copy")
	if err != nil || again != id {
		t.Errorf("second Store = %s, %v; want %s", again, err, id)
	}
	if calls := copies.calls.Load(); calls != 1 {
		t.Errorf("importer calls = %d, want 1", calls)
	}

	entries, err := os.ReadDir(instance.Config().Temp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temporaries left behind: %d entries", len(entries))
	}
}

func TestFetchUnknownID(t *testing.T) {
	instance := newTreasury(t, nil)
	if _, err := instance.Fetch(12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch error = %v, want ErrNotFound", err)
	}
	if _, err := instance.Info(12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("Info error = %v, want ErrNotFound", err)
	}
}

func TestFetchPathCompressed(t *testing.T) {
	cfg := config.Default()
	cfg.Compression = "lz4"
	instance := newTreasury(t, cfg, native("copy", "txt", "copy", importer.Func(copyImport)))
	writeFile(t, instance.BaseDir(), "a.txt", []byte("compressible compressible compressible"))

	id, err := instance.Store(context.Background(), "a.txt", "", "copy")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := instance.FetchPath(id); !errors.Is(err, contentstore.ErrCompressed) {
		t.Errorf("FetchPath error = %v, want ErrCompressed", err)
	}
	if data, err := instance.Fetch(id); err != nil || !bytes.HasPrefix(data, []byte("copy:")) {
		t.Errorf("Fetch = %q, %v", data, err)
	}
}

func TestFind(t *testing.T) {
	copies := &counted{fn: copyImport}
	instance := newTreasury(t, nil, native("copy", "txt", "copy", copies))
	writeFile(t, instance.BaseDir(), "a.txt", []byte("a"))

	id, ok, err := instance.Find(context.Background(), "a.txt", "copy")
	if err != nil || !ok || id.IsZero() {
		t.Fatalf("Find = %s, %v, %v", id, ok, err)
	}
	again, ok, err := instance.Find(context.Background(), "a.txt", "copy")
	if err != nil || !ok || again != id {
		t.Errorf("second Find = %s, %v, %v; want %s", again, ok, err, id)
	}
	if calls := copies.calls.Load(); calls != 1 {
		t.Errorf("importer calls = %d, want 1", calls)
	}

	_, ok, err = instance.Find(context.Background(), "missing.txt", "copy")
	if err != nil || ok {
		t.Errorf("Find(missing) = %v, %v; want not found without error", ok, err)
	}
}

func TestInitRefusesExistingInstance(t *testing.T) {
	instance := newTreasury(t, nil)
	_, err := Init(context.Background(), instance.BaseDir(), nil, testOptions())
	if !errors.Is(err, config.ErrExists) {
		t.Fatalf("Init error = %v, want config.ErrExists", err)
	}
}

func TestFindFrom(t *testing.T) {
	instance := newTreasury(t, nil)
	nested := filepath.Join(instance.BaseDir(), "assets", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	base := instance.BaseDir()
	if err := instance.Close(); err != nil {
		t.Fatal(err)
	}

	found, err := FindFrom(context.Background(), nested, testOptions())
	if err != nil {
		t.Fatalf("FindFrom failed: %v", err)
	}
	defer found.Close()
	if found.BaseDir() != base {
		t.Errorf("BaseDir = %s, want %s", found.BaseDir(), base)
	}
}

func TestStoreAfterClose(t *testing.T) {
	instance := newTreasury(t, nil)
	if err := instance.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := instance.Store(context.Background(), "a.txt", "", "copy"); !errors.Is(err, ErrClosed) {
		t.Errorf("Store error = %v, want ErrClosed", err)
	}
}

func TestImporters(t *testing.T) {
	cfg := config.Default()
	cfg.Importers = []string{"plugins/missing.wasm"}
	instance := newTreasury(t, cfg, native("copy", "txt", "copy", importer.Func(copyImport)))

	descriptors, loadErrors := instance.Importers()
	if len(descriptors) != 1 || descriptors[0].Name != "copy" {
		t.Errorf("descriptors = %+v", descriptors)
	}
	if len(loadErrors) != 1 {
		t.Fatalf("load errors = %v, want one", loadErrors)
	}
	if filepath.Base(loadErrors[0].Path) != "missing.wasm" {
		t.Errorf("load error path = %s", loadErrors[0].Path)
	}
}
