// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of an artifact's uncompressed bytes.
type Hash [32]byte

// artifactDomainKey separates artifact hashes from every other BLAKE3
// use in the system. The bytes are the ASCII domain name, zero-padded.
var artifactDomainKey = [32]byte{
	't', 'r', 'e', 'a', 's', 'u', 'r', 'y', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashArtifact returns the artifact-domain hash of data.
func HashArtifact(data []byte) Hash {
	hasher := newHasher()
	hasher.Write(data)
	return sum(hasher)
}

// HashReader returns the artifact-domain hash of everything read from
// r, and the number of bytes read.
func HashReader(r io.Reader) (Hash, int64, error) {
	hasher := newHasher()
	size, err := io.Copy(hasher, r)
	if err != nil {
		return Hash{}, size, err
	}
	return sum(hasher), size, nil
}

func newHasher() *blake3.Hasher {
	hasher, err := blake3.NewKeyed(artifactDomainKey[:])
	if err != nil {
		panic("contentstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func sum(hasher *blake3.Hasher) Hash {
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the lowercase hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero value, which is never the
// hash of any content in practice and marks "no hash" in records.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash parses the 64-digit hex form of a hash.
func ParseHash(text string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return hash, fmt.Errorf("parsing artifact hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("artifact hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
