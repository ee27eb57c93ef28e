// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnsupportedScheme is returned when fetching a locator whose scheme
// is neither file nor data.
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// materialName is the file name of a decoded source inside its
// temporary directory.
const materialName = "source"

// Material is a fetched source available as a local file.
type Material struct {
	Locator Locator

	// Path is the local file holding the source bytes.
	Path string

	// MediaType is set for data: sources.
	MediaType string

	// tempDir is removed by Release; empty for in-place files.
	tempDir string
}

// Temporary reports whether Path is a private copy removed by Release.
func (m *Material) Temporary() bool { return m.tempDir != "" }

// Dir is the directory importers may read siblings from.
func (m *Material) Dir() string { return filepath.Dir(m.Path) }

// Release removes temporary files. Safe to call more than once.
func (m *Material) Release() error {
	if m.tempDir == "" {
		return nil
	}
	dir := m.tempDir
	m.tempDir = ""
	return os.RemoveAll(dir)
}

// Fetcher materializes locators. Concurrent fetches of the same remote
// locator share one download.
type Fetcher struct {
	tempDir string
	timeout time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

// NewFetcher returns a Fetcher that writes temporaries under tempDir.
// A positive timeout bounds each remote fetch.
func NewFetcher(tempDir string, timeout time.Duration, logger *slog.Logger) (*Fetcher, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory %s: %w", tempDir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{tempDir: tempDir, timeout: timeout, logger: logger}, nil
}

// Fetch makes locator available as a local file. The caller must
// Release the result.
func (f *Fetcher) Fetch(ctx context.Context, locator Locator) (*Material, error) {
	switch locator.Scheme() {
	case SchemeFile:
		return f.fetchFile(locator)
	case SchemeData:
		return f.fetchData(ctx, locator)
	default:
		return nil, CheckScheme(locator)
	}
}

// CheckScheme reports [ErrUnsupportedScheme] for a locator no Fetcher
// can materialize.
func CheckScheme(locator Locator) error {
	switch locator.Scheme() {
	case SchemeFile, SchemeData:
		return nil
	}
	return fmt.Errorf("fetching %s: %w %q", locator, ErrUnsupportedScheme, locator.Scheme())
}

func (f *Fetcher) fetchFile(locator Locator) (*Material, error) {
	filePath := locator.FilePath()
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", locator, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("fetching %s: not a regular file", locator)
	}
	return &Material{Locator: locator, Path: filePath}, nil
}

type decoded struct {
	data      []byte
	mediaType string
}

func (f *Fetcher) fetchData(ctx context.Context, locator Locator) (*Material, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	key := locator.String()
	results := f.group.DoChan(key, func() (any, error) {
		data, mediaType, err := decodeDataURL(key)
		if err != nil {
			return nil, err
		}
		return decoded{data: data, mediaType: mediaType}, nil
	})

	var payload decoded
	select {
	case result := <-results:
		if result.Err != nil {
			return nil, fmt.Errorf("fetching data source: %w", result.Err)
		}
		payload = result.Val.(decoded)
		if result.Shared {
			f.logger.Debug("data source fetch coalesced", "bytes", len(payload.data))
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("fetching data source: %w", ctx.Err())
	}

	dir, err := os.MkdirTemp(f.tempDir, "fetch-*")
	if err != nil {
		return nil, fmt.Errorf("creating fetch directory: %w", err)
	}
	filePath := filepath.Join(dir, materialName)
	if err := os.WriteFile(filePath, payload.data, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing data source: %w", err)
	}
	return &Material{Locator: locator, Path: filePath, MediaType: payload.mediaType, tempDir: dir}, nil
}
