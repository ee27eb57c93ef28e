// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tmpDir = "tmp"

var (
	// ErrNotFound is returned when no blob exists for a hash.
	ErrNotFound = errors.New("artifact not found")

	// ErrCorrupt is returned when a blob's bytes do not hash to its
	// name.
	ErrCorrupt = errors.New("artifact content does not match its hash")

	// ErrCompressed is returned by [Store.Path] for blobs that are
	// stored compressed and so cannot be mapped directly.
	ErrCompressed = errors.New("artifact is stored compressed")
)

var putTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "treasury_content_puts_total",
	Help: "Artifact puts by result (stored or deduplicated)",
}, []string{"result"})

// Store is a content-addressed blob directory. Safe for concurrent
// use, including concurrent puts of the same content.
type Store struct {
	root        string
	compression Compression
}

// Open returns a Store rooted at root, creating the directory if
// needed. New blobs are written with the given compression.
func Open(root string, compression Compression) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root, compression: compression}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Put commits data and returns its hash. If a blob with the same hash
// already exists nothing is written.
func (s *Store) Put(data []byte) (Hash, error) {
	hash := HashArtifact(data)
	if err := s.commit(hash, bytes.NewReader(data)); err != nil {
		return Hash{}, err
	}
	return hash, nil
}

// PutFile commits the contents of the file at path and returns its
// hash and uncompressed size. The file is read twice: once to hash,
// once to copy.
func (s *Store) PutFile(path string) (Hash, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	hash, size, err := HashReader(file)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return Hash{}, 0, fmt.Errorf("rewinding %s: %w", path, err)
	}
	if err := s.commit(hash, file); err != nil {
		return Hash{}, 0, err
	}
	return hash, size, nil
}

func (s *Store) commit(hash Hash, content io.Reader) error {
	if s.Exists(hash) {
		putTotal.WithLabelValues("deduplicated").Inc()
		return nil
	}

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "put-*")
	if err != nil {
		return fmt.Errorf("creating temp artifact file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := compressTo(tmpFile, content, s.compression); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing artifact %s: %w", hash, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing artifact %s: %w", hash, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp artifact: %w", err)
	}

	finalPath := s.blobPath(hash, s.compression)
	shardDir := filepath.Dir(finalPath)
	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		return fmt.Errorf("creating artifact shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming artifact to %s: %w", finalPath, err)
	}
	success = true

	if err := syncDir(shardDir); err != nil {
		return fmt.Errorf("syncing artifact shard directory: %w", err)
	}
	putTotal.WithLabelValues("stored").Inc()
	return nil
}

// Exists reports whether a blob for hash is present in any encoding.
func (s *Store) Exists(hash Hash) bool {
	_, _, err := s.locate(hash)
	return err == nil
}

// Get returns the uncompressed bytes of the blob for hash. The bytes
// are re-hashed; a mismatch returns [ErrCorrupt].
func (s *Store) Get(hash Hash) ([]byte, error) {
	path, compression, err := s.locate(hash)
	if err != nil {
		return nil, err
	}
	stored, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", hash, err)
	}
	data, err := decompress(stored, compression)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w: %w", hash, ErrCorrupt, err)
	}
	if HashArtifact(data) != hash {
		return nil, fmt.Errorf("artifact %s: %w", hash, ErrCorrupt)
	}
	return data, nil
}

// Path returns the filesystem path of an uncompressed blob. Callers
// must treat the file as read-only.
func (s *Store) Path(hash Hash) (string, error) {
	path, compression, err := s.locate(hash)
	if err != nil {
		return "", err
	}
	if compression != CompressionNone {
		return "", fmt.Errorf("artifact %s (%s): %w", hash, compression, ErrCompressed)
	}
	return path, nil
}

func (s *Store) locate(hash Hash) (string, Compression, error) {
	for _, compression := range encodings {
		path := s.blobPath(hash, compression)
		if _, err := os.Stat(path); err == nil {
			return path, compression, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", 0, fmt.Errorf("checking artifact %s: %w", hash, err)
		}
	}
	return "", 0, fmt.Errorf("artifact %s: %w", hash, ErrNotFound)
}

func (s *Store) blobPath(hash Hash, compression Compression) string {
	name := hash.String()
	return filepath.Join(s.root, name[:2], name+compression.suffix())
}

func syncDir(dir string) error {
	handle, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer handle.Close()
	return handle.Sync()
}
