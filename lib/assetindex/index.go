// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package assetindex

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/codec"
)

const (
	snapshotName = "snapshot.cbor"
	logName      = "log"
	lockName     = "lock"

	snapshotVersion = 1

	// DefaultCheckpointInterval is the number of log records after
	// which a snapshot is written.
	DefaultCheckpointInterval = 1024

	appendMaxTries = 5
)

// Options configures an Index.
type Options struct {
	// CheckpointInterval is the number of records appended between
	// snapshots. Zero means DefaultCheckpointInterval.
	CheckpointInterval int

	// Logger receives recovery and checkpoint diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// snapshot is the checkpoint file content. Entries are in insertion
// order.
type snapshot struct {
	Version int     `cbor:"version"`
	Seq     uint64  `cbor:"seq"`
	Entries []Entry `cbor:"entries"`
}

// logFile is the subset of *os.File the append path uses. Tests
// substitute a wrapper that fails on demand.
type logFile interface {
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

// indexed is an entry with the sequence number that recorded it.
type indexed struct {
	entry Entry
	seq   uint64
}

// Index is the durable asset index. Lookups take a read lock only.
// Inserts are serialized by a writer mutex held across append and
// publish, so the in-memory maps never contain an entry whose record
// is not durable.
//
// One id may be indexed under several keys: a source that moved along
// with its sidecar keeps its id, and both the old and the new location
// resolve to it.
type Index struct {
	dir                string
	checkpointInterval int
	logger             *slog.Logger
	newBackOff         func() backoff.BackOff

	// writeMu serializes Insert, checkpointing and Close. It is held
	// across disk I/O and taken before mu, never after.
	writeMu          sync.Mutex
	log              logFile
	logSize          int64
	seq              uint64
	sinceCheckpoint  int
	checkpointFailed bool
	lock             *os.File
	closed           bool

	mu    sync.RWMutex
	byKey map[Key]indexed
	byID  map[assetid.ID]indexed
}

// Open loads the index in dir, creating it if empty, and takes the
// directory lock.
func Open(dir string, options Options) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory %s: %w", dir, err)
	}

	lock, err := lockFile(filepath.Join(dir, lockName))
	if err != nil {
		return nil, err
	}

	index := &Index{
		dir:                dir,
		checkpointInterval: options.CheckpointInterval,
		logger:             options.Logger,
		newBackOff: func() backoff.BackOff {
			exponential := backoff.NewExponentialBackOff()
			exponential.InitialInterval = 10 * time.Millisecond
			exponential.MaxInterval = 500 * time.Millisecond
			return exponential
		},
		lock:  lock,
		byKey: make(map[Key]indexed),
		byID:  make(map[assetid.ID]indexed),
	}
	if index.checkpointInterval <= 0 {
		index.checkpointInterval = DefaultCheckpointInterval
	}
	if index.logger == nil {
		index.logger = slog.Default()
	}

	if err := index.load(); err != nil {
		lock.Close()
		return nil, err
	}
	return index, nil
}

func (x *Index) load() error {
	snapshotSeq, err := x.loadSnapshot()
	if err != nil {
		return err
	}
	x.seq = snapshotSeq

	logPath := filepath.Join(x.dir, logName)
	file, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening index log: %w", err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("reading index log: %w", err)
	}

	valid, err := x.replay(data, snapshotSeq)
	if err != nil {
		file.Close()
		return err
	}

	if valid < len(data) {
		x.logger.Warn("truncating torn index log tail",
			"path", logPath,
			"valid_bytes", valid,
			"discarded_bytes", len(data)-valid,
		)
		if err := file.Truncate(int64(valid)); err != nil {
			file.Close()
			return fmt.Errorf("truncating index log: %w", err)
		}
		if err := file.Sync(); err != nil {
			file.Close()
			return fmt.Errorf("syncing index log: %w", err)
		}
	}

	x.log = file
	x.logSize = int64(valid)
	return nil
}

func (x *Index) loadSnapshot() (uint64, error) {
	data, err := os.ReadFile(filepath.Join(x.dir, snapshotName))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading index snapshot: %w", err)
	}

	var snap snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("decoding index snapshot: %w: %w", ErrCorrupt, err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("index snapshot version %d, want %d: %w", snap.Version, snapshotVersion, ErrCorrupt)
	}
	for i, entry := range snap.Entries {
		// Positions stand in for sequence numbers; only their order
		// matters.
		if err := x.apply(entry, uint64(i)); err != nil {
			return 0, fmt.Errorf("index snapshot: %w: %w", ErrCorrupt, err)
		}
	}
	return snap.Seq, nil
}

// replay applies the log records in data and returns the length of
// the valid prefix.
func (x *Index) replay(data []byte, snapshotSeq uint64) (int, error) {
	offset := 0
	for offset < len(data) {
		rec, size, status := decodeFrame(data[offset:])
		switch status {
		case frameShort:
			return offset, nil
		case frameBad:
			// A crash can leave a partial frame or a zero-filled
			// extension at the end of the file. Anything else after a
			// bad frame means the log was damaged in place.
			if size == 0 {
				if allZero(data[offset:]) {
					return offset, nil
				}
				return 0, fmt.Errorf("index log record at offset %d has invalid length: %w", offset, ErrCorrupt)
			}
			if end := offset + size; end >= len(data) || allZero(data[end:]) {
				return offset, nil
			}
			return 0, fmt.Errorf("index log record at offset %d fails its checksum: %w", offset, ErrCorrupt)
		}

		if rec.Seq <= snapshotSeq {
			offset += size
			continue
		}
		if rec.Seq != x.seq+1 {
			return 0, fmt.Errorf("index log record at offset %d has seq %d, want %d: %w", offset, rec.Seq, x.seq+1, ErrCorrupt)
		}
		if err := x.apply(rec.Entry, rec.Seq); err != nil {
			return 0, fmt.Errorf("index log record %d: %w: %w", rec.Seq, ErrCorrupt, err)
		}
		x.seq = rec.Seq
		x.sinceCheckpoint++
		offset += size
	}
	return offset, nil
}

func allZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// apply adds an entry while loading. No locking: the index is not yet
// shared.
func (x *Index) apply(entry Entry, seq uint64) error {
	if err := entry.validate(); err != nil {
		return err
	}
	if existing, ok := x.byKey[entry.Key()]; ok {
		return &ExistsError{Key: entry.Key(), ID: existing.entry.ID}
	}
	x.publish(indexed{entry: entry, seq: seq})
	return nil
}

// publish makes an entry visible. An id already indexed under another
// key now resolves to the new entry; the old key keeps resolving to
// the id.
func (x *Index) publish(item indexed) {
	x.byKey[item.entry.Key()] = item
	x.byID[item.entry.ID] = item
}

// LookupByKey returns the id recorded for (source, target).
func (x *Index) LookupByKey(source, target string) (assetid.ID, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	item, ok := x.byKey[Key{Source: source, Target: target}]
	return item.entry.ID, ok
}

// LookupByID returns the entry for id. When an id is indexed under
// several keys, the most recently inserted entry is returned.
func (x *Index) LookupByID(id assetid.ID) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	item, ok := x.byID[id]
	return item.entry, ok
}

// Len returns the number of indexed keys.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byKey)
}

// Entries returns the entry of every key ordered by source, then
// target.
func (x *Index) Entries() []Entry {
	items := x.items()
	entries := make([]Entry, len(items))
	for i, item := range items {
		entries[i] = item.entry
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.Target, b.Target))
	})
	return entries
}

func (x *Index) items() []indexed {
	x.mu.RLock()
	defer x.mu.RUnlock()
	items := make([]indexed, 0, len(x.byKey))
	for _, item := range x.byKey {
		items = append(items, item)
	}
	return items
}

// Insert durably records entry. If the key is already indexed the
// result is an [*ExistsError] carrying the recorded id. The entry is
// visible to lookups only after its record is on disk.
//
// Transient write failures are retried with exponential backoff; the
// log is truncated back to its previous length before each retry so a
// failed attempt never leaves a partial frame ahead of a good one.
func (x *Index) Insert(ctx context.Context, entry Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	if x.closed {
		return ErrClosed
	}

	x.mu.RLock()
	existing, taken := x.byKey[entry.Key()]
	x.mu.RUnlock()
	if taken {
		return &ExistsError{Key: entry.Key(), ID: existing.entry.ID}
	}

	frame, err := encodeFrame(record{Seq: x.seq + 1, Entry: entry})
	if err != nil {
		return err
	}
	if err := x.append(ctx, frame); err != nil {
		return fmt.Errorf("appending index record for %s: %w", entry.Key(), err)
	}

	x.seq++
	x.sinceCheckpoint++
	x.mu.Lock()
	x.publish(indexed{entry: entry, seq: x.seq})
	x.mu.Unlock()

	if x.sinceCheckpoint >= x.checkpointInterval {
		if err := x.checkpoint(); err != nil {
			// The log still holds every record; the next insert tries
			// again.
			if !x.checkpointFailed {
				x.logger.Warn("index checkpoint failed", "error", err)
			}
			x.checkpointFailed = true
		} else {
			x.checkpointFailed = false
		}
	}
	return nil
}

func (x *Index) append(ctx context.Context, frame []byte) error {
	offset := x.logSize
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if _, err := x.log.WriteAt(frame, offset); err != nil {
			x.rewind(offset)
			return struct{}{}, err
		}
		if err := x.log.Sync(); err != nil {
			x.rewind(offset)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(x.newBackOff()),
		backoff.WithMaxTries(appendMaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			x.logger.Warn("retrying index append", "error", err, "wait", wait)
		}),
	)
	if err != nil {
		return err
	}
	x.logSize = offset + int64(len(frame))
	return nil
}

func (x *Index) rewind(offset int64) {
	if err := x.log.Truncate(offset); err != nil {
		x.logger.Warn("truncating index log after failed append", "error", err, "offset", offset)
	}
}

// checkpoint writes a snapshot covering every record so far, then
// empties the log. Called with writeMu held.
func (x *Index) checkpoint() error {
	items := x.items()
	slices.SortFunc(items, func(a, b indexed) int {
		return cmp.Compare(a.seq, b.seq)
	})
	snap := snapshot{
		Version: snapshotVersion,
		Seq:     x.seq,
		Entries: make([]Entry, len(items)),
	}
	for i, item := range items {
		snap.Entries[i] = item.entry
	}

	data, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding index snapshot: %w", err)
	}

	tmpFile, err := os.CreateTemp(x.dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
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
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(x.dir, snapshotName)); err != nil {
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	success = true
	if err := syncDir(x.dir); err != nil {
		return fmt.Errorf("syncing index directory: %w", err)
	}

	if err := x.log.Truncate(0); err != nil {
		return fmt.Errorf("resetting index log: %w", err)
	}
	if err := x.log.Sync(); err != nil {
		return fmt.Errorf("syncing index log: %w", err)
	}
	x.logSize = 0
	x.sinceCheckpoint = 0

	x.logger.Debug("index checkpoint written", "seq", x.seq, "entries", len(snap.Entries))
	return nil
}

// Close releases the log and the directory lock.
func (x *Index) Close() error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true

	return errors.Join(x.log.Close(), x.lock.Close())
}
