// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how new blobs are written. Existing blobs keep
// the encoding they were written with; the file suffix records it.
type Compression uint8

const (
	// CompressionNone stores blobs as plain files. This is the default
	// because engines can map plain blobs directly (see [Store.Path]).
	CompressionNone Compression = iota

	// CompressionLZ4 stores blobs as LZ4 frames. Fast to decode, modest
	// ratio.
	CompressionLZ4

	// CompressionZstd stores blobs as zstd frames at the default level.
	CompressionZstd
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a configuration name. The empty string means
// none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// suffix is the file-name suffix for blobs in this encoding.
func (c Compression) suffix() string {
	switch c {
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// encodings lists every encoding in the order readers probe for it.
var encodings = []Compression{CompressionNone, CompressionLZ4, CompressionZstd}

// zstdDecoder is shared; zstd.Decoder is safe for concurrent DecodeAll.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("contentstore: zstd decoder initialization failed: " + err.Error())
	}
}

// compressTo copies r into w through the encoder for c.
func compressTo(w io.Writer, r io.Reader, c Compression) error {
	switch c {
	case CompressionNone:
		_, err := io.Copy(w, r)
		return err

	case CompressionLZ4:
		encoder := lz4.NewWriter(w)
		if _, err := io.Copy(encoder, r); err != nil {
			return fmt.Errorf("lz4 compress: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("lz4 compress: %w", err)
		}
		return nil

	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("zstd compress: %w", err)
		}
		if _, err := io.Copy(encoder, r); err != nil {
			encoder.Close()
			return fmt.Errorf("zstd compress: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("zstd compress: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported compression %d", c)
	}
}

// decompress decodes a stored blob.
func decompress(stored []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return stored, nil

	case CompressionLZ4:
		decoded, err := io.ReadAll(lz4.NewReader(bytes.NewReader(stored)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return decoded, nil

	case CompressionZstd:
		decoded, err := zstdDecoder.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}
