// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func openStore(t *testing.T, compression Compression) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "artifacts"), compression)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

// countBlobs counts files outside the tmp directory.
func countBlobs(t *testing.T, store *Store) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(store.Root(), func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() && entry.Name() == tmpDir {
			return filepath.SkipDir
		}
		if !entry.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking store: %v", err)
	}
	return count
}

func TestPutGetRoundTrip(t *testing.T) {
	content := []byte(strings.Repeat("texture data ", 500))

	for _, compression := range encodings {
		t.Run(compression.String(), func(t *testing.T) {
			store := openStore(t, compression)

			hash, err := store.Put(content)
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if hash != HashArtifact(content) {
				t.Errorf("Put hash = %s, want %s", hash, HashArtifact(content))
			}
			if !store.Exists(hash) {
				t.Error("Exists = false after Put")
			}

			got, err := store.Get(hash)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Errorf("Get returned %d bytes, want %d", len(got), len(content))
			}
		})
	}
}

func TestPutDeduplicates(t *testing.T) {
	store := openStore(t, CompressionNone)
	content := []byte("identical artifact")

	storedBefore := testutil.ToFloat64(putTotal.WithLabelValues("stored"))
	dedupBefore := testutil.ToFloat64(putTotal.WithLabelValues("deduplicated"))

	first, err := store.Put(content)
	if err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	second, err := store.Put(content)
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	if first != second {
		t.Errorf("hashes differ: %s vs %s", first, second)
	}
	if got := countBlobs(t, store); got != 1 {
		t.Errorf("blob count = %d, want 1", got)
	}
	if got := testutil.ToFloat64(putTotal.WithLabelValues("stored")) - storedBefore; got != 1 {
		t.Errorf("stored puts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(putTotal.WithLabelValues("deduplicated")) - dedupBefore; got != 1 {
		t.Errorf("deduplicated puts = %v, want 1", got)
	}
}

func TestDeduplicationAcrossCompression(t *testing.T) {
	root := filepath.Join(t.TempDir(), "artifacts")
	content := []byte(strings.Repeat("mesh ", 1000))

	zstdStore, err := Open(root, CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := zstdStore.Put(content)
	if err != nil {
		t.Fatalf("zstd Put failed: %v", err)
	}

	plainStore, err := Open(root, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := plainStore.Put(content); err != nil {
		t.Fatalf("plain Put failed: %v", err)
	}
	if got := countBlobs(t, plainStore); got != 1 {
		t.Errorf("blob count = %d, want 1", got)
	}

	got, err := plainStore.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Get through plain store returned different bytes")
	}
}

func TestPutFile(t *testing.T) {
	store := openStore(t, CompressionLZ4)
	content := []byte("imported output")
	path := filepath.Join(t.TempDir(), "output.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	hash, size, err := store.PutFile(path)
	if err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	if hash != HashArtifact(content) {
		t.Errorf("hash = %s, want %s", hash, HashArtifact(content))
	}
	got, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Get = %q, want %q", got, content)
	}
}

func TestGetMissing(t *testing.T) {
	store := openStore(t, CompressionNone)

	hash := HashArtifact([]byte("never stored"))
	if store.Exists(hash) {
		t.Error("Exists = true for missing blob")
	}
	if _, err := store.Get(hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := store.Path(hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Path error = %v, want ErrNotFound", err)
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	store := openStore(t, CompressionNone)

	hash, err := store.Put([]byte("original bytes"))
	if err != nil {
		t.Fatal(err)
	}
	path, err := store.Path(hash)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(hash); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Get error = %v, want ErrCorrupt", err)
	}
}

func TestPathCompressed(t *testing.T) {
	store := openStore(t, CompressionZstd)

	hash, err := store.Put([]byte(strings.Repeat("a", 4096)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Path(hash); !errors.Is(err, ErrCompressed) {
		t.Errorf("Path error = %v, want ErrCompressed", err)
	}
}

func TestLayout(t *testing.T) {
	store := openStore(t, CompressionLZ4)

	hash, err := store.Put([]byte("layout"))
	if err != nil {
		t.Fatal(err)
	}
	name := hash.String()
	want := filepath.Join(store.Root(), name[:2], name+".lz4")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("blob not at %s: %v", want, err)
	}

	leftovers, err := os.ReadDir(filepath.Join(store.Root(), tmpDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("tmp directory has %d leftover files", len(leftovers))
	}
}

func TestHashTextRoundTrip(t *testing.T) {
	hash := HashArtifact([]byte("x"))
	text, err := hash.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Hash
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if decoded != hash {
		t.Errorf("decoded = %s, want %s", decoded, hash)
	}
	if _, err := ParseHash("abcd"); err == nil {
		t.Error("ParseHash accepted a short hash")
	}
}

func TestPutIsIdempotentProperty(t *testing.T) {
	store := openStore(t, CompressionZstd)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("Put twice yields one hash and Get returns the input", prop.ForAll(
		func(content []byte) bool {
			first, err := store.Put(content)
			if err != nil {
				return false
			}
			second, err := store.Put(content)
			if err != nil || first != second {
				return false
			}
			got, err := store.Get(first)
			return err == nil && bytes.Equal(got, content)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
