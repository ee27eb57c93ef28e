// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"relative path", "textures/cube.png", "file://" + filepath.ToSlash(filepath.Join(base, "textures/cube.png"))},
		{"dot segments", "./textures/../cube.png", "file://" + filepath.ToSlash(filepath.Join(base, "cube.png"))},
		{"absolute path", "/srv/assets/cube.png", "file:///srv/assets/cube.png"},
		{"file URL", "file:///srv/assets/./cube.png", "file:///srv/assets/cube.png"},
		{"file URL localhost", "file://localhost/srv/cube.png", "file:///srv/cube.png"},
		{"data URL", "data:,hello", "data:,hello"},
		{"other scheme", "https://example.com/cube.png", "https://example.com/cube.png"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			locator, err := Parse(base, test.raw)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", test.raw, err)
			}
			if got := locator.String(); got != test.want {
				t.Errorf("Parse(%q) = %q, want %q", test.raw, got, test.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{"", "file://remote-host/cube.png"} {
		if _, err := Parse("/base", raw); err == nil {
			t.Errorf("Parse(%q) succeeded", raw)
		}
	}
	if _, err := Parse("/base", ""); !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse(\"\") error = %v, want ErrEmpty", err)
	}
}

func TestLocatorAccessors(t *testing.T) {
	locator, err := Parse("/assets", "Cube.PNG")
	if err != nil {
		t.Fatal(err)
	}
	if !locator.IsFile() {
		t.Error("IsFile = false")
	}
	if got := locator.Extension(); got != "png" {
		t.Errorf("Extension = %q, want png", got)
	}
	if got := locator.FilePath(); got != filepath.FromSlash("/assets/Cube.PNG") {
		t.Errorf("FilePath = %q", got)
	}

	data, err := Parse("/assets", "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatal(err)
	}
	if data.Extension() != "" || data.FilePath() != "" {
		t.Error("data locator reported file attributes")
	}
}

func TestResolve(t *testing.T) {
	material, err := Parse("/assets", "materials/stone.mat")
	if err != nil {
		t.Fatal(err)
	}

	sibling, err := material.Resolve("../textures/stone.png", "/elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if got := sibling.String(); got != "file:///assets/textures/stone.png" {
		t.Errorf("Resolve = %q", got)
	}

	absolute, err := material.Resolve("data:,x", "/elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if absolute.Scheme() != SchemeData {
		t.Errorf("Resolve kept scheme %q, want data", absolute.Scheme())
	}

	inline, err := Parse("/assets", "data:,inline")
	if err != nil {
		t.Fatal(err)
	}
	fallback, err := inline.Resolve("stone.png", "/base")
	if err != nil {
		t.Fatal(err)
	}
	if got := fallback.String(); got != "file:///base/stone.png" {
		t.Errorf("Resolve from data locator = %q, want file:///base/stone.png", got)
	}
}

func TestLocatorText(t *testing.T) {
	locator, err := Parse("/assets", "cube.png")
	if err != nil {
		t.Fatal(err)
	}
	text, err := locator.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Locator
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if decoded.String() != locator.String() {
		t.Errorf("decoded = %q, want %q", decoded, locator)
	}
	if err := decoded.UnmarshalText([]byte("relative/path")); err == nil {
		t.Error("UnmarshalText accepted a relative path")
	}
}

func TestDecodeDataURL(t *testing.T) {
	payload := []byte{0xfb, 0xff, 0x00, 'p', 'n', 'g'}

	tests := []struct {
		name      string
		raw       string
		want      []byte
		mediaType string
	}{
		{"url-safe unpadded", "data:image/png;base64," + base64.RawURLEncoding.EncodeToString(payload), payload, "image/png"},
		{"standard padded", "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload), payload, "image/png"},
		{"percent-encoded text", "data:,hello%20world", []byte("hello world"), "text/plain;charset=US-ASCII"},
		{"empty", "data:,", []byte{}, "text/plain;charset=US-ASCII"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, mediaType, err := decodeDataURL(test.raw)
			if err != nil {
				t.Fatalf("decodeDataURL failed: %v", err)
			}
			if string(data) != string(test.want) {
				t.Errorf("data = %q, want %q", data, test.want)
			}
			if mediaType != test.mediaType {
				t.Errorf("media type = %q, want %q", mediaType, test.mediaType)
			}
		})
	}

	for _, raw := range []string{"data:no-comma", "data:;base64,!!!!"} {
		if _, _, err := decodeDataURL(raw); !errors.Is(err, ErrInvalidDataURL) {
			t.Errorf("decodeDataURL(%q) error = %v, want ErrInvalidDataURL", raw, err)
		}
	}
}

func newFetcher(t *testing.T) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(filepath.Join(t.TempDir(), "tmp"), time.Second, nil)
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}
	return fetcher
}

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	locator, err := FromPath(path)
	if err != nil {
		t.Fatal(err)
	}

	material, err := newFetcher(t).Fetch(context.Background(), locator)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if material.Path != path || material.Temporary() {
		t.Errorf("material = %+v, want in-place %s", material, path)
	}
	if err := material.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Release removed the source file: %v", err)
	}
}

func TestFetchMissingFile(t *testing.T) {
	locator, err := FromPath(filepath.Join(t.TempDir(), "missing.png"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newFetcher(t).Fetch(context.Background(), locator); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Fetch error = %v, want fs.ErrNotExist", err)
	}
}

func TestFetchData(t *testing.T) {
	locator, err := Parse("/", "data:application/octet-stream;base64,"+base64.RawURLEncoding.EncodeToString([]byte("inline asset")))
	if err != nil {
		t.Fatal(err)
	}

	material, err := newFetcher(t).Fetch(context.Background(), locator)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !material.Temporary() {
		t.Error("data material is not temporary")
	}
	content, err := os.ReadFile(material.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "inline asset" {
		t.Errorf("content = %q", content)
	}
	if material.MediaType != "application/octet-stream" {
		t.Errorf("MediaType = %q", material.MediaType)
	}

	if err := material.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(material.Dir()); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temporary directory survived Release: %v", err)
	}
	if err := material.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestFetchUnsupportedScheme(t *testing.T) {
	locator, err := Parse("/", "https://example.com/cube.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newFetcher(t).Fetch(context.Background(), locator); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Fetch error = %v, want ErrUnsupportedScheme", err)
	}
}
