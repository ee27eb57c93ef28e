// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
)

// Descriptor describes a registered importer.
type Descriptor struct {
	Name       string   `cbor:"name" json:"name"`
	Formats    []string `cbor:"formats,omitempty" json:"formats,omitempty"`
	Extensions []string `cbor:"extensions,omitempty" json:"extensions,omitempty"`
	Target     string   `cbor:"target" json:"target"`

	// Plugin is the module path for plugin importers, empty for
	// native ones.
	Plugin string `cbor:"plugin,omitempty" json:"plugin,omitempty"`

	// ABIMajor is the contract major version the plugin declared.
	ABIMajor uint32 `cbor:"abi_major,omitempty" json:"abi_major,omitempty"`
}

func (d Descriptor) acceptsFormat(format string) bool {
	return slices.Contains(d.Formats, format)
}

func (d Descriptor) acceptsExtension(extension string) bool {
	return slices.ContainsFunc(d.Extensions, func(claimed string) bool {
		return strings.EqualFold(claimed, extension)
	})
}

// Resolved pairs an importer with its descriptor.
type Resolved struct {
	Descriptor Descriptor
	Importer   Importer
}

// Registry holds the importers available to a treasury instance.
// Registration happens during setup; after that the registry is only
// read, and is safe for concurrent use throughout.
type Registry struct {
	logger *slog.Logger

	mu         sync.RWMutex
	importers  []Resolved
	loadErrors []*LoadError

	runtimeOnce sync.Once
	runtime     wazero.Runtime
	runtimeErr  error
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// LoadRegistry returns a registry holding the importers of every
// plugin in paths that loads successfully. Plugins that fail are
// logged and listed by LoadErrors; they never fail the whole load.
func LoadRegistry(ctx context.Context, paths []string, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry(logger)
	for _, path := range paths {
		if err := registry.LoadPlugin(ctx, path); err != nil {
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				registry.Close(ctx)
				return nil, err
			}
		}
	}
	return registry, nil
}

// Register adds a native importer. Two importers with the same name and
// target cannot be registered.
func (r *Registry) Register(descriptor Descriptor, importer Importer) error {
	if descriptor.Name == "" {
		return errors.New("importer name is required")
	}
	if descriptor.Target == "" {
		return fmt.Errorf("importer %q: target format is required", descriptor.Name)
	}
	if importer == nil {
		return fmt.Errorf("importer %q: implementation is nil", descriptor.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.importers {
		if existing.Descriptor.Name == descriptor.Name && existing.Descriptor.Target == descriptor.Target {
			return fmt.Errorf("importer %q for target %q is already registered", descriptor.Name, descriptor.Target)
		}
	}
	r.importers = append(r.importers, Resolved{Descriptor: descriptor, Importer: importer})
	return nil
}

// Descriptors returns every registered importer in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, len(r.importers))
	for i, entry := range r.importers {
		descriptors[i] = entry.Descriptor
	}
	return descriptors
}

// LoadErrors returns the plugins that failed to load.
func (r *Registry) LoadErrors() []*LoadError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.loadErrors)
}

// Resolve picks the importer for target.
//
// With a format hint, the importers accepting that format are the
// candidates. Otherwise, with an extension, the importers claiming that
// extension are. Otherwise every importer producing target is. Exactly
// one candidate resolves; more than one is [ErrAmbiguous] and none is
// [ErrNotFound].
func (r *Registry) Resolve(formatHint, extension, target string) (Resolved, error) {
	extension = strings.TrimPrefix(extension, ".")

	r.mu.RLock()
	defer r.mu.RUnlock()

	describe := "any source"
	switch {
	case formatHint != "":
		describe = fmt.Sprintf("format %q", formatHint)
	case extension != "":
		describe = fmt.Sprintf("extension %q", extension)
	}

	var candidates []Resolved
	for _, entry := range r.importers {
		if entry.Descriptor.Target != target {
			continue
		}
		if formatHint != "" && !entry.Descriptor.acceptsFormat(formatHint) {
			continue
		}
		if formatHint == "" && extension != "" && !entry.Descriptor.acceptsExtension(extension) {
			continue
		}
		candidates = append(candidates, entry)
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return Resolved{}, fmt.Errorf("importing %s to %q: %w", describe, target, ErrNotFound)
	default:
		names := make([]string, len(candidates))
		for i, candidate := range candidates {
			names[i] = candidate.Descriptor.Name
		}
		return Resolved{}, fmt.Errorf("importing %s to %q: %w: %s", describe, target, ErrAmbiguous, strings.Join(names, ", "))
	}
}

// Close releases the plugin runtime and every plugin module.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	runtime := r.runtime
	r.mu.RUnlock()
	if runtime == nil {
		return nil
	}
	return runtime.Close(ctx)
}
