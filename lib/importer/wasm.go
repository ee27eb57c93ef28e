// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/arcana-engine/treasury/lib/codec"
	"github.com/arcana-engine/treasury/lib/pluginabi"
)

// instanceCounter names module instances; wazero requires instance
// names to be unique within a runtime.
var instanceCounter atomic.Uint64

type dependenciesKey struct{}

// exportSignature is the expected type of an exported function.
type exportSignature struct {
	params  []api.ValueType
	results []api.ValueType
}

var requiredExports = map[string]exportSignature{
	pluginabi.ExportImporters: {nil, []api.ValueType{api.ValueTypeI64}},
	pluginabi.ExportAlloc:     {[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}},
	pluginabi.ExportImport:    {[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI64}},
}

var versionExport = exportSignature{nil, []api.ValueType{api.ValueTypeI32}}

// pluginRuntime returns the shared wazero runtime, creating it with the
// WASI and host modules on first use.
func (r *Registry) pluginRuntime(ctx context.Context) (wazero.Runtime, error) {
	r.runtimeOnce.Do(func() {
		runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())

		if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
			runtime.Close(ctx)
			r.runtimeErr = fmt.Errorf("instantiating WASI: %w", err)
			return
		}

		_, err := runtime.NewHostModuleBuilder(pluginabi.HostModule).
			NewFunctionBuilder().
			WithFunc(hostDependency).
			Export(pluginabi.HostDependency).
			Instantiate(ctx)
		if err != nil {
			runtime.Close(ctx)
			r.runtimeErr = fmt.Errorf("instantiating host module: %w", err)
			return
		}

		r.mu.Lock()
		r.runtime = runtime
		r.mu.Unlock()
	})
	if r.runtimeErr != nil {
		return nil, r.runtimeErr
	}
	return r.runtime, nil
}

// LoadPlugin loads the plugin at path and registers its importers. A
// plugin that cannot be used yields a [*LoadError], which is also
// recorded for LoadErrors. Other errors mean the plugin runtime itself
// is unusable.
func (r *Registry) LoadPlugin(ctx context.Context, pluginPath string) error {
	runtime, err := r.pluginRuntime(ctx)
	if err != nil {
		return err
	}

	importers, err := r.loadPlugin(ctx, runtime, pluginPath)
	if err == nil {
		err = r.registerPlugin(importers)
	}
	if err != nil {
		loadErr := &LoadError{Path: pluginPath, Err: err}
		r.mu.Lock()
		r.loadErrors = append(r.loadErrors, loadErr)
		r.mu.Unlock()
		r.logger.Warn("plugin rejected", "path", pluginPath, "error", err)
		return loadErr
	}

	names := make([]string, len(importers))
	for i, entry := range importers {
		names[i] = entry.Descriptor.Name
	}
	r.logger.Info("plugin loaded", "path", pluginPath, "importers", names)
	return nil
}

func (r *Registry) registerPlugin(importers []Resolved) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range importers {
		duplicate := func(other Resolved) bool {
			return other.Descriptor.Name == entry.Descriptor.Name && other.Descriptor.Target == entry.Descriptor.Target
		}
		if slices.ContainsFunc(r.importers, duplicate) || slices.ContainsFunc(importers[:i], duplicate) {
			return fmt.Errorf("importer %q for target %q is already registered", entry.Descriptor.Name, entry.Descriptor.Target)
		}
	}
	r.importers = append(r.importers, importers...)
	return nil
}

func (r *Registry) loadPlugin(ctx context.Context, runtime wazero.Runtime, pluginPath string) ([]Resolved, error) {
	binary, err := os.ReadFile(pluginPath)
	if err != nil {
		return nil, err
	}

	compiled, err := runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlugin, err)
	}

	exports := compiled.ExportedFunctions()
	if err := checkExport(exports, pluginabi.ExportABIVersion, versionExport); err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	probe, err := instantiate(ctx, runtime, compiled, wazero.NewModuleConfig())
	if err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlugin, err)
	}
	defer probe.Close(ctx)

	results, err := probe.ExportedFunction(pluginabi.ExportABIVersion).Call(ctx)
	if err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("%w: calling %s: %v", ErrMalformedPlugin, pluginabi.ExportABIVersion, err)
	}
	major := api.DecodeU32(results[0])
	if !pluginabi.Compatible(major) {
		compiled.Close(ctx)
		return nil, fmt.Errorf("%w: plugin speaks %d, host speaks %d", ErrABIMismatch, major, pluginabi.ContractMajor())
	}

	for name, signature := range requiredExports {
		if err := checkExport(exports, name, signature); err != nil {
			compiled.Close(ctx)
			return nil, err
		}
	}
	if _, ok := compiled.ExportedMemories()[pluginabi.ExportMemory]; !ok {
		compiled.Close(ctx)
		return nil, fmt.Errorf("%w: missing export %q", ErrMalformedPlugin, pluginabi.ExportMemory)
	}

	table, err := readTable(ctx, probe)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	module := &pluginModule{
		path:     pluginPath,
		runtime:  runtime,
		compiled: compiled,
		logger:   r.logger,
	}
	importers := make([]Resolved, len(table))
	for i, entry := range table {
		descriptor := Descriptor{
			Name:       entry.Name,
			Formats:    entry.Formats,
			Extensions: entry.Extensions,
			Target:     entry.Target,
			Plugin:     pluginPath,
			ABIMajor:   major,
		}
		importers[i] = Resolved{
			Descriptor: descriptor,
			Importer:   &pluginImporter{module: module, index: uint32(i), name: entry.Name},
		}
	}
	return importers, nil
}

func checkExport(exports map[string]api.FunctionDefinition, name string, want exportSignature) error {
	definition, ok := exports[name]
	if !ok {
		return fmt.Errorf("%w: missing export %q", ErrMalformedPlugin, name)
	}
	if !slices.Equal(definition.ParamTypes(), want.params) || !slices.Equal(definition.ResultTypes(), want.results) {
		return fmt.Errorf("%w: export %q has type %v -> %v, want %v -> %v", ErrMalformedPlugin, name,
			valueTypeNames(definition.ParamTypes()), valueTypeNames(definition.ResultTypes()),
			valueTypeNames(want.params), valueTypeNames(want.results))
	}
	return nil
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, valueType := range types {
		names[i] = api.ValueTypeName(valueType)
	}
	return names
}

func readTable(ctx context.Context, module api.Module) ([]pluginabi.Descriptor, error) {
	results, err := module.ExportedFunction(pluginabi.ExportImporters).Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: calling %s: %v", ErrMalformedPlugin, pluginabi.ExportImporters, err)
	}
	encoded, err := readPacked(module, results[0])
	if err != nil {
		return nil, fmt.Errorf("%w: importer table: %v", ErrMalformedPlugin, err)
	}

	var table []pluginabi.Descriptor
	if err := codec.Unmarshal(encoded, &table); err != nil {
		return nil, fmt.Errorf("%w: decoding importer table: %v", ErrMalformedPlugin, err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: importer table is empty", ErrMalformedPlugin)
	}
	for i, entry := range table {
		if entry.Name == "" || entry.Target == "" {
			return nil, fmt.Errorf("%w: importer table entry %d lacks a name or target", ErrMalformedPlugin, i)
		}
	}
	return table, nil
}

// readPacked copies the guest bytes addressed by a packed pointer and
// length.
func readPacked(module api.Module, packed uint64) ([]byte, error) {
	ptr, length := pluginabi.Unpack(packed)
	if length == 0 {
		return nil, fmt.Errorf("empty result")
	}
	view, ok := module.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("result %d+%d is outside guest memory", ptr, length)
	}
	return bytes.Clone(view), nil
}

func instantiate(ctx context.Context, runtime wazero.Runtime, compiled wazero.CompiledModule, config wazero.ModuleConfig) (api.Module, error) {
	name := fmt.Sprintf("plugin-%d", instanceCounter.Add(1))
	return runtime.InstantiateModule(ctx, compiled, config.
		WithName(name).
		WithStartFunctions(pluginabi.ExportInitialize))
}

// pluginModule is one compiled plugin, shared by its importers.
type pluginModule struct {
	path     string
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	logger   *slog.Logger
}

// pluginImporter invokes one entry of a plugin's importer table.
type pluginImporter struct {
	module *pluginModule
	index  uint32
	name   string
}

// Import runs the importer in a fresh instance with the source
// directory mounted read-only and the output directory writable.
func (p *pluginImporter) Import(ctx context.Context, request *ImportRequest) Result {
	var stderr bytes.Buffer
	config := wazero.NewModuleConfig().
		WithFSConfig(wazero.NewFSConfig().
			WithReadOnlyDirMount(filepath.Dir(request.SourcePath), pluginabi.SourceMount).
			WithDirMount(filepath.Dir(request.OutputPath), pluginabi.OutputMount)).
		WithStderr(&stderr)

	callCtx := context.WithValue(ctx, dependenciesKey{}, request.Dependencies)
	module, err := instantiate(callCtx, p.module.runtime, p.module.compiled, config)
	if err != nil {
		return Other{Reason: fmt.Sprintf("instantiating plugin %s: %v", p.module.path, err)}
	}
	defer module.Close(ctx)
	defer func() {
		if stderr.Len() > 0 {
			p.module.logger.Debug("plugin stderr", "plugin", p.module.path, "importer", p.name, "output", stderr.String())
		}
	}()

	wire, err := codec.Marshal(pluginabi.ImportRequest{
		Source:       path.Join(pluginabi.SourceMount, filepath.Base(request.SourcePath)),
		Output:       path.Join(pluginabi.OutputMount, filepath.Base(request.OutputPath)),
		SourceFormat: request.SourceFormat,
		Target:       request.Target,
	})
	if err != nil {
		return Other{Reason: fmt.Sprintf("encoding import request: %v", err)}
	}

	allocated, err := module.ExportedFunction(pluginabi.ExportAlloc).Call(callCtx, api.EncodeU32(uint32(len(wire))))
	if err != nil {
		return Other{Reason: fmt.Sprintf("plugin %s: %s trapped: %v", p.name, pluginabi.ExportAlloc, err)}
	}
	ptr := api.DecodeU32(allocated[0])
	if !module.Memory().Write(ptr, wire) {
		return Other{Reason: fmt.Sprintf("plugin %s: allocated buffer %d+%d is outside guest memory", p.name, ptr, len(wire))}
	}

	results, err := module.ExportedFunction(pluginabi.ExportImport).Call(callCtx,
		api.EncodeU32(p.index), api.EncodeU32(ptr), api.EncodeU32(uint32(len(wire))))
	if err != nil {
		return Other{Reason: fmt.Sprintf("plugin %s: %s trapped: %v", p.name, pluginabi.ExportImport, err)}
	}
	encoded, err := readPacked(module, results[0])
	if err != nil {
		return Other{Reason: fmt.Sprintf("plugin %s: reading reply: %v", p.name, err)}
	}

	var reply pluginabi.Reply
	if err := codec.Unmarshal(encoded, &reply); err != nil {
		return Other{Reason: fmt.Sprintf("plugin %s: decoding reply: %v", p.name, err)}
	}

	switch reply.Status {
	case pluginabi.StatusOK:
		return Success{}
	case pluginabi.StatusOther:
		return Other{Reason: reply.Reason}
	case pluginabi.StatusRequireDependencies:
		dependencies := make([]Dependency, len(reply.Dependencies))
		for i, dependency := range reply.Dependencies {
			dependencies[i] = Dependency{Source: dependency.Source, Target: dependency.Target}
		}
		return RequireDependencies{Dependencies: dependencies}
	default:
		return Other{Reason: fmt.Sprintf("plugin %s returned unknown status %q", p.name, reply.Status)}
	}
}

// hostDependency implements treasury.dependency for plugins.
func hostDependency(ctx context.Context, module api.Module, sourcePtr, sourceLen, targetPtr, targetLen, outPtr uint32) int32 {
	dependencies, _ := ctx.Value(dependenciesKey{}).(Dependencies)
	if dependencies == nil {
		return pluginabi.DependencyNotFound
	}
	source, ok := module.Memory().Read(sourcePtr, sourceLen)
	if !ok {
		return pluginabi.DependencyError
	}
	target, ok := module.Memory().Read(targetPtr, targetLen)
	if !ok {
		return pluginabi.DependencyError
	}
	id, found := dependencies.Lookup(string(source), string(target))
	if !found {
		return pluginabi.DependencyNotFound
	}
	if !module.Memory().WriteUint64Le(outPtr, uint64(id)) {
		return pluginabi.DependencyError
	}
	return pluginabi.DependencyFound
}
