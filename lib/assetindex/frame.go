// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package assetindex

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/arcana-engine/treasury/lib/codec"
)

// frameHeaderSize is the length prefix plus the checksum.
const frameHeaderSize = 4 + 8

// maxRecordSize bounds a single record. Entries are a few hundred
// bytes; anything near this limit is a corrupt length prefix.
const maxRecordSize = 1 << 20

// record is the payload of one log frame.
type record struct {
	Seq   uint64 `cbor:"seq"`
	Entry Entry  `cbor:"entry"`
}

func encodeFrame(rec record) ([]byte, error) {
	payload, err := codec.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding index record: %w", err)
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(frame[4:12], xxhash.Sum64(payload))
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

// frameStatus classifies the frame at the start of a buffer.
type frameStatus int

const (
	frameOK frameStatus = iota
	// frameShort: the buffer ends before the frame does.
	frameShort
	// frameBad: the frame is complete but its checksum, length or
	// payload is invalid.
	frameBad
)

// decodeFrame decodes the frame at the start of data and returns the
// record and the frame's total size.
func decodeFrame(data []byte) (record, int, frameStatus) {
	if len(data) < frameHeaderSize {
		return record{}, 0, frameShort
	}
	length := binary.BigEndian.Uint32(data[0:4])
	if length == 0 || length > maxRecordSize {
		return record{}, 0, frameBad
	}
	size := frameHeaderSize + int(length)
	if len(data) < size {
		return record{}, 0, frameShort
	}
	payload := data[frameHeaderSize:size]
	if xxhash.Sum64(payload) != binary.BigEndian.Uint64(data[4:12]) {
		return record{}, size, frameBad
	}
	var rec record
	if err := codec.Unmarshal(payload, &rec); err != nil {
		return record{}, size, frameBad
	}
	return rec, size, frameOK
}
