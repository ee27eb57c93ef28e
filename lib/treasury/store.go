// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/assetindex"
	"github.com/arcana-engine/treasury/lib/contentstore"
	"github.com/arcana-engine/treasury/lib/importer"
	"github.com/arcana-engine/treasury/lib/sidecar"
	"github.com/arcana-engine/treasury/lib/source"
)

const commitMaxTries = 3

type state int

const (
	stateResolving state = iota
	stateFetching
	stateImporting
	stateAwaitingDependencies
	stateFinalizing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateResolving:
		return "resolving"
	case stateFetching:
		return "fetching"
	case stateImporting:
		return "importing"
	case stateAwaitingDependencies:
		return "awaiting-dependencies"
	case stateFinalizing:
		return "finalizing"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// job is the working state of one flight.
type job struct {
	flight  *flight
	locator source.Locator
	format  string
	target  string

	resolved    importer.Resolved
	material    *source.Material
	fingerprint sidecar.Fingerprint

	// reuse is the id a matching sidecar recorded for an artifact that
	// is missing here; the import runs again under that id.
	reuse assetid.ID

	workDir string
	output  string
	pending []importer.Dependency
	rounds  int

	id      assetid.ID
	outcome string
}

// Store returns the id for (source, target), importing the source when
// it has not been stored before. format is an optional source format
// hint; without it the importer is picked by extension or target.
//
// Cancelling ctx detaches the caller only. The import keeps running for
// any other caller waiting on the same key, and is discarded before
// commit when nobody is left.
func (t *Treasury) Store(ctx context.Context, sourceRaw, format, target string) (assetid.ID, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	if target == "" {
		return 0, errors.New("storing: target format is required")
	}
	locator, err := source.Parse(t.BaseDir(), sourceRaw)
	if err != nil {
		return 0, err
	}
	return t.store(ctx, locator, format, target, nil)
}

// store runs or joins the flight for (locator, target). parent is the
// flight requesting it as a dependency, nil for external callers.
func (t *Treasury) store(ctx context.Context, locator source.Locator, format, target string, parent *flight) (assetid.ID, error) {
	key := assetindex.Key{Source: locator.String(), Target: target}
	if id, ok := t.index.LookupByKey(key.Source, key.Target); ok {
		storesTotal.WithLabelValues(outcomeIndexed).Inc()
		return id, nil
	}

	f, leader, err := t.flights.join(key, parent)
	if err != nil {
		return 0, fmt.Errorf("storing %s: %w", key, err)
	}
	defer t.flights.leave(f, parent)

	if leader {
		j := &job{flight: f, locator: locator, format: format, target: target}
		go t.run(context.WithoutCancel(ctx), j)
	} else {
		flightsCoalesced.Inc()
	}

	select {
	case <-f.done:
		return f.id, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *Treasury) run(ctx context.Context, j *job) {
	flightsActive.Inc()
	defer flightsActive.Dec()

	ctx, span := tracer.Start(ctx, "treasury.Store", trace.WithAttributes(
		attribute.String("treasury.source", j.flight.key.Source),
		attribute.String("treasury.target", j.target),
	))
	defer span.End()

	id, err := t.orchestrate(ctx, span, j)
	t.release(j)

	if err != nil {
		storesTotal.WithLabelValues(outcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		storesTotal.WithLabelValues(j.outcome).Inc()
		span.SetAttributes(attribute.String("treasury.id", id.String()))
		span.SetStatus(codes.Ok, "")
	}
	t.flights.finish(j.flight, id, err)
}

func (t *Treasury) orchestrate(ctx context.Context, span trace.Span, j *job) (assetid.ID, error) {
	current := stateResolving
	for {
		t.logger.Debug("store transition",
			"source", j.flight.key.Source,
			"target", j.target,
			"state", current.String(),
			"round", j.rounds,
		)
		span.AddEvent(current.String())

		var next state
		var err error
		switch current {
		case stateResolving:
			next, err = t.resolve(j)
		case stateFetching:
			next, err = t.fetch(ctx, j)
		case stateImporting:
			next, err = t.runImporter(ctx, j)
		case stateAwaitingDependencies:
			next, err = t.awaitDependencies(ctx, j)
		case stateFinalizing:
			next, err = t.finalize(ctx, j)
		case stateDone:
			return j.id, nil
		default:
			err = fmt.Errorf("store reached unknown %s", current)
		}
		if err != nil {
			t.logger.Debug("store failed",
				"source", j.flight.key.Source,
				"target", j.target,
				"state", current.String(),
				"error", err,
			)
			return 0, err
		}
		current = next
	}
}

func (t *Treasury) resolve(j *job) (state, error) {
	if id, ok := t.index.LookupByKey(j.flight.key.Source, j.target); ok {
		j.id, j.outcome = id, outcomeIndexed
		return stateDone, nil
	}

	// Unsupported schemes fail here, ahead of importer resolution.
	if err := source.CheckScheme(j.locator); err != nil {
		return 0, err
	}
	resolved, err := t.registry.Resolve(j.format, j.locator.Extension(), j.target)
	if err != nil {
		return 0, fmt.Errorf("storing %s: %w", j.flight.key, err)
	}
	j.resolved = resolved
	if j.format == "" && len(resolved.Descriptor.Formats) == 1 {
		j.format = resolved.Descriptor.Formats[0]
	}
	return stateFetching, nil
}

func (t *Treasury) fetch(ctx context.Context, j *job) (state, error) {
	material, err := t.fetcher.Fetch(ctx, j.locator)
	if err != nil {
		return 0, err
	}
	j.material = material

	j.fingerprint, err = sidecar.FingerprintFile(material.Path)
	if err != nil {
		return 0, err
	}

	asset, status, err := t.sidecars.Lookup(j.locator, j.target, j.fingerprint)
	if err != nil {
		t.logger.Warn("ignoring unreadable sidecar", "source", j.flight.key.Source, "error", err)
	}
	switch status {
	case sidecar.Match:
		if !t.content.Exists(asset.Artifact) {
			t.logger.Info("sidecar artifact is not in the content store, importing again",
				"source", j.flight.key.Source, "id", asset.ID, "artifact", asset.Artifact)
			j.reuse = asset.ID
			return stateImporting, nil
		}
		id, err := t.insert(ctx, assetindex.Entry{
			ID:           asset.ID,
			Source:       j.flight.key.Source,
			Target:       j.target,
			SourceFormat: asset.SourceFormat,
			Importer:     j.resolved.Descriptor.Name,
			Artifact:     asset.Artifact,
			Size:         asset.Size,
			CreatedAt:    t.clock.Now().UTC(),
		})
		if err != nil {
			return 0, err
		}
		j.id, j.outcome = id, outcomeSidecar
		return stateDone, nil
	case sidecar.Stale:
		t.logger.Debug("sidecar is stale", "source", j.flight.key.Source, "target", j.target, "id", asset.ID)
	}
	return stateImporting, nil
}

func (t *Treasury) runImporter(ctx context.Context, j *job) (state, error) {
	if err := t.prepareOutput(j); err != nil {
		return 0, err
	}

	root, err := os.OpenRoot(j.material.Dir())
	if err != nil {
		return 0, fmt.Errorf("opening source directory: %w", err)
	}
	defer root.Close()

	request := &importer.ImportRequest{
		SourcePath:   j.material.Path,
		OutputPath:   j.output,
		SourceFormat: j.format,
		Target:       j.target,
		Sources:      root.FS(),
		Dependencies: &dependencies{treasury: t, locator: j.locator},
	}

	var result importer.Result
	err = t.withWorker(ctx, func() {
		start := time.Now()
		result = invoke(ctx, j.resolved.Importer, request)
		importDuration.Observe(time.Since(start).Seconds())
	})
	if err != nil {
		return 0, err
	}

	name := j.resolved.Descriptor.Name
	switch result := result.(type) {
	case importer.Success:
		importsTotal.WithLabelValues("success").Inc()
		if _, err := os.Stat(j.output); errors.Is(err, fs.ErrNotExist) {
			return 0, j.failed(name, "importer reported success without writing output")
		}
		return stateFinalizing, nil

	case importer.Other:
		importsTotal.WithLabelValues("other").Inc()
		return 0, j.failed(name, result.Reason)

	case importer.RequireDependencies:
		importsTotal.WithLabelValues("require_dependencies").Inc()
		if len(result.Dependencies) == 0 {
			return 0, j.failed(name, "importer requested an empty dependency list")
		}
		j.rounds++
		if j.rounds > t.config.MaxImportRounds {
			return 0, fmt.Errorf("storing %s: %w: limit is %d", j.flight.key, ErrTooManyRounds, t.config.MaxImportRounds)
		}
		j.pending = result.Dependencies
		return stateAwaitingDependencies, nil

	default:
		return 0, j.failed(name, fmt.Sprintf("importer returned unexpected result %T", result))
	}
}

// invoke runs the importer, turning a panic into a failed result.
func invoke(ctx context.Context, imp importer.Importer, request *importer.ImportRequest) (result importer.Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = importer.Other{Reason: fmt.Sprintf("importer panicked: %v", recovered)}
		}
	}()
	return imp.Import(ctx, request)
}

func (j *job) failed(importerName, reason string) error {
	return &ImportFailedError{
		Source:   j.flight.key.Source,
		Target:   j.target,
		Importer: importerName,
		Reason:   reason,
	}
}

func (t *Treasury) awaitDependencies(ctx context.Context, j *job) (state, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, dependency := range j.pending {
		group.Go(func() error {
			locator, err := j.locator.Resolve(dependency.Source, t.BaseDir())
			if err != nil {
				return fmt.Errorf("dependency %q of %s: %w", dependency.Source, j.flight.key, err)
			}
			if _, err := t.store(groupCtx, locator, "", dependency.Target, j.flight); err != nil {
				return fmt.Errorf("dependency %s -> %s of %s: %w", locator, dependency.Target, j.flight.key, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	j.pending = nil
	return stateImporting, nil
}

func (t *Treasury) finalize(ctx context.Context, j *job) (state, error) {
	if !t.flights.claim(j.flight) {
		t.logger.Debug("discarding output of abandoned store", "source", j.flight.key.Source, "target", j.target)
		return 0, errAbandoned
	}

	type committed struct {
		hash contentstore.Hash
		size int64
	}
	artifact, err := backoff.Retry(ctx, func() (committed, error) {
		hash, size, err := t.content.PutFile(j.output)
		return committed{hash: hash, size: size}, err
	},
		backoff.WithBackOff(t.newBackOff()),
		backoff.WithMaxTries(commitMaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			t.logger.Warn("retrying artifact commit", "source", j.flight.key.Source, "error", err, "wait", wait)
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("committing artifact of %s: %w", j.flight.key, err)
	}

	id := j.reuse
	if id.IsZero() {
		id = t.ids.Generate()
	}
	id, err = t.insert(ctx, assetindex.Entry{
		ID:           id,
		Source:       j.flight.key.Source,
		Target:       j.target,
		SourceFormat: j.format,
		Importer:     j.resolved.Descriptor.Name,
		Artifact:     artifact.hash,
		Size:         artifact.size,
		CreatedAt:    t.clock.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}

	err = t.sidecars.Record(j.locator, j.target, sidecar.Asset{
		ID:           id,
		Fingerprint:  j.fingerprint,
		SourceFormat: j.format,
		Artifact:     artifact.hash,
		Size:         artifact.size,
	})
	if err != nil {
		t.logger.Warn("writing sidecar failed", "source", j.flight.key.Source, "target", j.target, "error", err)
	}

	t.logger.Info("asset stored",
		"id", id,
		"source", j.flight.key.Source,
		"target", j.target,
		"importer", j.resolved.Descriptor.Name,
		"artifact", artifact.hash,
		"size", artifact.size,
	)
	j.id, j.outcome = id, outcomeImported
	return stateDone, nil
}

// insert appends entry to the index. An entry already present for the
// key wins and its id is returned.
func (t *Treasury) insert(ctx context.Context, entry assetindex.Entry) (assetid.ID, error) {
	err := t.index.Insert(ctx, entry)
	var exists *assetindex.ExistsError
	if errors.As(err, &exists) {
		return exists.ID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("indexing %s: %w", entry.Key(), err)
	}
	return entry.ID, nil
}

// prepareOutput gives the next import attempt an empty private
// directory.
func (t *Treasury) prepareOutput(j *job) error {
	if j.workDir != "" {
		if err := os.RemoveAll(j.workDir); err != nil {
			t.logger.Warn("removing previous import directory", "dir", j.workDir, "error", err)
		}
	}
	dir, err := os.MkdirTemp(t.config.Temp, "import-*")
	if err != nil {
		return fmt.Errorf("creating import directory: %w", err)
	}
	j.workDir = dir
	j.output = filepath.Join(dir, "artifact")
	return nil
}

func (t *Treasury) release(j *job) {
	if j.material != nil {
		if err := j.material.Release(); err != nil {
			t.logger.Warn("removing fetched source", "source", j.flight.key.Source, "error", err)
		}
	}
	if j.workDir != "" {
		if err := os.RemoveAll(j.workDir); err != nil {
			t.logger.Warn("removing import directory", "dir", j.workDir, "error", err)
		}
	}
}

// withWorker runs fn on one of the bounded importer slots.
func (t *Treasury) withWorker(ctx context.Context, fn func()) error {
	select {
	case t.workers <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.workers }()
	fn()
	return nil
}
