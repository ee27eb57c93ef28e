// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/assetindex"
	"github.com/arcana-engine/treasury/lib/clock"
	"github.com/arcana-engine/treasury/lib/config"
	"github.com/arcana-engine/treasury/lib/contentstore"
	"github.com/arcana-engine/treasury/lib/importer"
	"github.com/arcana-engine/treasury/lib/sidecar"
	"github.com/arcana-engine/treasury/lib/source"
)

// Options configures parts of a Treasury that do not come from
// Treasury.yaml.
type Options struct {
	// Logger receives diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// Clock drives id minting. Nil means the real clock.
	Clock clock.Clock

	// Node is the generator node number mixed into minted ids. Zero
	// picks a random node.
	Node uint16

	// Importers are native importers registered alongside the plugins
	// listed in Treasury.yaml.
	Importers []Native
}

// Native is an importer implemented in Go and linked into the process.
type Native struct {
	Descriptor importer.Descriptor
	Importer   importer.Importer
}

// Treasury is an open instance. It is safe for concurrent use.
type Treasury struct {
	config   *config.Config
	logger   *slog.Logger
	clock    clock.Clock
	ids      *assetid.Generator
	index    *assetindex.Index
	content  *contentstore.Store
	registry *importer.Registry
	fetcher  *source.Fetcher
	sidecars *sidecar.Manager
	flights  *flightTable
	workers  chan struct{}
	closed   atomic.Bool

	newBackOff func() backoff.BackOff
}

// Init creates a new instance in baseDir by writing Treasury.yaml, then
// opens it. A nil cfg writes config.Default(). Init fails with
// config.ErrExists if the directory already holds an instance.
func Init(ctx context.Context, baseDir string, cfg *config.Config, options Options) (*Treasury, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	path, err := config.Create(baseDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing treasury: %w", err)
	}
	return Open(ctx, path, options)
}

// FindFrom opens the instance whose Treasury.yaml is in dir or its
// nearest ancestor.
func FindFrom(ctx context.Context, dir string, options Options) (*Treasury, error) {
	path, err := config.Find(dir)
	if err != nil {
		return nil, err
	}
	return Open(ctx, path, options)
}

// Open opens the instance described by the Treasury.yaml at configPath.
func Open(ctx context.Context, configPath string, options Options) (*Treasury, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, options)
}

// New opens an instance from a loaded configuration.
func New(ctx context.Context, cfg *config.Config, options Options) (*Treasury, error) {
	if cfg.BaseDir() == "" {
		return nil, errors.New("treasury: configuration was not loaded from a file")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	compression, err := contentstore.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	content, err := contentstore.Open(filepath.Join(cfg.Artifacts, "content"), compression)
	if err != nil {
		return nil, err
	}
	fetcher, err := source.NewFetcher(cfg.Temp, cfg.FetchTimeoutDuration(), logger)
	if err != nil {
		return nil, err
	}
	sidecars, err := sidecar.NewManager(cfg.BaseDir(), cfg.External, logger)
	if err != nil {
		return nil, err
	}

	index, err := assetindex.Open(filepath.Join(cfg.Artifacts, "index"), assetindex.Options{
		CheckpointInterval: cfg.CheckpointInterval,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	registry, err := importer.LoadRegistry(ctx, cfg.Importers, logger)
	if err != nil {
		index.Close()
		return nil, err
	}
	for _, native := range options.Importers {
		if err := registry.Register(native.Descriptor, native.Importer); err != nil {
			registry.Close(ctx)
			index.Close()
			return nil, err
		}
	}

	ids := assetid.NewRandomGenerator(clk)
	if options.Node != 0 {
		ids = assetid.NewGenerator(clk, options.Node)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	logger.Info("treasury opened",
		"base", cfg.BaseDir(),
		"assets", index.Len(),
		"importers", len(registry.Descriptors()),
		"plugin_failures", len(registry.LoadErrors()),
	)

	return &Treasury{
		config:   cfg,
		logger:   logger,
		clock:    clk,
		ids:      ids,
		index:    index,
		content:  content,
		registry: registry,
		fetcher:  fetcher,
		sidecars: sidecars,
		flights:  newFlightTable(),
		workers:  make(chan struct{}, workers),
		newBackOff: func() backoff.BackOff {
			exponential := backoff.NewExponentialBackOff()
			exponential.InitialInterval = 20 * time.Millisecond
			exponential.MaxInterval = time.Second
			return exponential
		},
	}, nil
}

// BaseDir returns the instance directory.
func (t *Treasury) BaseDir() string { return t.config.BaseDir() }

// Config returns the loaded configuration.
func (t *Treasury) Config() *config.Config { return t.config }

// Close releases the index lock and the plugin runtime. Stores still in
// flight fail once they reach the index.
func (t *Treasury) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return errors.Join(
		t.registry.Close(context.Background()),
		t.index.Close(),
	)
}

// Lookup returns the id stored for (source, target) without importing.
func (t *Treasury) Lookup(sourceRaw, target string) (assetid.ID, bool, error) {
	locator, err := source.Parse(t.BaseDir(), sourceRaw)
	if err != nil {
		return 0, false, err
	}
	id, ok := t.index.LookupByKey(locator.String(), target)
	return id, ok, nil
}

// Find returns the id for (source, target), storing it on a miss. A
// failed store is logged and reported as not found.
func (t *Treasury) Find(ctx context.Context, sourceRaw, target string) (assetid.ID, bool, error) {
	id, ok, err := t.Lookup(sourceRaw, target)
	if err != nil || ok {
		return id, ok, err
	}
	id, err = t.Store(ctx, sourceRaw, "", target)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		t.logger.Warn("storing on lookup failed", "source", sourceRaw, "target", target, "error", err)
		return 0, false, nil
	}
	return id, true, nil
}

// Info returns the index entry for id.
func (t *Treasury) Info(id assetid.ID) (assetindex.Entry, error) {
	entry, ok := t.index.LookupByID(id)
	if !ok {
		return assetindex.Entry{}, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return entry, nil
}

// Fetch returns the artifact bytes of id.
func (t *Treasury) Fetch(id assetid.ID) ([]byte, error) {
	entry, err := t.Info(id)
	if err != nil {
		return nil, err
	}
	return t.content.Get(entry.Artifact)
}

// FetchPath returns the path of the artifact file of id. It fails with
// contentstore.ErrCompressed when the instance compresses artifacts.
func (t *Treasury) FetchPath(id assetid.ID) (string, error) {
	entry, err := t.Info(id)
	if err != nil {
		return "", err
	}
	return t.content.Path(entry.Artifact)
}

// Assets returns every index entry.
func (t *Treasury) Assets() []assetindex.Entry { return t.index.Entries() }

// Importers returns the registered importers and the plugins that
// failed to load.
func (t *Treasury) Importers() ([]importer.Descriptor, []*importer.LoadError) {
	return t.registry.Descriptors(), t.registry.LoadErrors()
}
