// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/codec"
	"github.com/arcana-engine/treasury/lib/contentstore"
	"github.com/arcana-engine/treasury/lib/source"
)

// Extension is the sidecar file suffix.
const Extension = ".treasure"

const fileVersion = 1

var (
	sourceDomainKey = [32]byte{
		't', 'r', 'e', 'a', 's', 'u', 'r', 'y', '.', 's', 'o', 'u', 'r', 'c', 'e', 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	externalDomainKey = [32]byte{
		't', 'r', 'e', 'a', 's', 'u', 'r', 'y', '.', 'e', 'x', 't', 'e', 'r', 'n', 'a',
		'l', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Fingerprint identifies source content.
type Fingerprint [32]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != len(f) {
		return fmt.Errorf("fingerprint is %d bytes, want %d", len(decoded), len(f))
	}
	copy(f[:], decoded)
	return nil
}

// FingerprintFile hashes the file at path.
func FingerprintFile(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer file.Close()

	hasher := keyedHasher(sourceDomainKey)
	if _, err := io.Copy(hasher, file); err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint, nil
}

func keyedHasher(key [32]byte) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("sidecar: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// Asset is what a sidecar records for one target format.
type Asset struct {
	ID           assetid.ID        `cbor:"id"`
	Fingerprint  Fingerprint       `cbor:"fingerprint"`
	SourceFormat string            `cbor:"source_format,omitempty"`
	Artifact     contentstore.Hash `cbor:"artifact"`
	Size         int64             `cbor:"size,omitempty"`
}

// file is the sidecar file content.
type file struct {
	Version int              `cbor:"version"`
	URL     string           `cbor:"url"`
	Assets  map[string]Asset `cbor:"assets"`
}

// Status is the outcome of a Lookup.
type Status int

const (
	// Missing means no sidecar records the target.
	Missing Status = iota

	// Match means the recorded fingerprint equals the current one and
	// the recorded asset may be reused.
	Match

	// Stale means a record exists but the source changed since.
	Stale
)

func (s Status) String() string {
	switch s {
	case Missing:
		return "missing"
	case Match:
		return "match"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Manager reads and writes sidecars. Safe for concurrent use within one
// process.
type Manager struct {
	baseDir     string
	externalDir string
	logger      *slog.Logger

	// mu serializes read-modify-write of sidecar files.
	mu sync.Mutex
}

// NewManager returns a Manager for sources under baseDir, storing
// external sidecars in externalDir.
func NewManager(baseDir, externalDir string, logger *slog.Logger) (*Manager, error) {
	absoluteBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}
	if err := os.MkdirAll(externalDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating external directory %s: %w", externalDir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{baseDir: absoluteBase, externalDir: externalDir, logger: logger}, nil
}

// Path returns where the sidecar for locator lives.
func (m *Manager) Path(locator source.Locator) string {
	if m.local(locator) {
		return locator.FilePath() + Extension
	}
	hasher := keyedHasher(externalDomainKey)
	hasher.Write([]byte(locator.String()))
	return filepath.Join(m.externalDir, hex.EncodeToString(hasher.Sum(nil))+Extension)
}

// local reports whether locator's sidecar sits next to the source.
func (m *Manager) local(locator source.Locator) bool {
	filePath := locator.FilePath()
	if filePath == "" {
		return false
	}
	relative, err := filepath.Rel(m.baseDir, filePath)
	if err != nil {
		return false
	}
	return relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator))
}

// Lookup returns the asset recorded for (locator, target) and whether
// it still matches fingerprint. An unreadable sidecar is reported as an
// error with status Missing; callers treat it as absent.
func (m *Manager) Lookup(locator source.Locator, target string, fingerprint Fingerprint) (Asset, Status, error) {
	sidecar, err := m.read(locator)
	if err != nil || sidecar == nil {
		return Asset{}, Missing, err
	}
	asset, ok := sidecar.Assets[target]
	if !ok || asset.ID.IsZero() {
		return Asset{}, Missing, nil
	}
	if asset.Fingerprint != fingerprint {
		return asset, Stale, nil
	}
	return asset, Match, nil
}

// Record writes asset for (locator, target), keeping the records of
// other targets. The file is replaced atomically.
func (m *Manager) Record(locator source.Locator, target string, asset Asset) error {
	if asset.ID.IsZero() {
		return errors.New("recording sidecar: zero asset id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sidecar, err := m.read(locator)
	if err != nil {
		m.logger.Warn("replacing unreadable sidecar", "path", m.Path(locator), "error", err)
		sidecar = nil
	}
	if sidecar == nil {
		sidecar = &file{Version: fileVersion, URL: locator.String(), Assets: make(map[string]Asset)}
	}
	sidecar.URL = locator.String()
	sidecar.Assets[target] = asset

	data, err := codec.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}
	return writeAtomic(m.Path(locator), data)
}

// read returns the sidecar for locator, or nil when there is none.
func (m *Manager) read(locator source.Locator) (*file, error) {
	path := m.Path(locator)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sidecar %s: %w", path, err)
	}

	var sidecar file
	if err := codec.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("decoding sidecar %s: %w", path, err)
	}
	if sidecar.Version != fileVersion {
		return nil, fmt.Errorf("sidecar %s has version %d, want %d", path, sidecar.Version, fileVersion)
	}

	// External sidecars are named by a hash of the URL; a local one
	// legitimately records the URL of wherever the file used to be.
	if !m.local(locator) && sidecar.URL != locator.String() {
		return nil, nil
	}
	if sidecar.Assets == nil {
		sidecar.Assets = make(map[string]Asset)
	}
	return &sidecar, nil
}

func writeAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".sidecar-*")
	if err != nil {
		return fmt.Errorf("creating sidecar temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing sidecar: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing sidecar: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing sidecar: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming sidecar to %s: %w", path, err)
	}
	success = true
	return nil
}
