// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

//go:build wasip1

package pluginsdk

import (
	"fmt"
	"unsafe"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/codec"
	"github.com/arcana-engine/treasury/lib/pluginabi"
)

// Request describes one import call.
type Request struct {
	SourcePath   string
	OutputPath   string
	SourceFormat string
	Target       string
}

// Dependency asks the host for the id of an already-stored asset.
// source is resolved relative to the source being imported. When it
// returns false, reply with [Require] to have the host store it.
func (r *Request) Dependency(source, target string) (assetid.ID, bool) {
	var out uint64
	status := hostDependency(
		bytesPointer(unsafe.StringData(source)), uint32(len(source)),
		bytesPointer(unsafe.StringData(target)), uint32(len(target)),
		uint32(uintptr(unsafe.Pointer(&out))),
	)
	if status != pluginabi.DependencyFound || out == 0 {
		return 0, false
	}
	return assetid.ID(out), true
}

// ImportFunc performs one import.
type ImportFunc func(request *Request) pluginabi.Reply

// OK reports success; the artifact is at request.OutputPath.
func OK() pluginabi.Reply {
	return pluginabi.Reply{Status: pluginabi.StatusOK}
}

// Fail reports a failure with a formatted reason.
func Fail(format string, args ...any) pluginabi.Reply {
	return pluginabi.Reply{Status: pluginabi.StatusOther, Reason: fmt.Sprintf(format, args...)}
}

// Require asks the host to store dependencies and retry the import.
func Require(dependencies ...pluginabi.Dependency) pluginabi.Reply {
	return pluginabi.Reply{Status: pluginabi.StatusRequireDependencies, Dependencies: dependencies}
}

type registration struct {
	descriptor pluginabi.Descriptor
	fn         ImportFunc
}

var registrations []registration

// Register adds an importer to the plugin's table. Call it from init;
// the table index is the registration order.
func Register(descriptor pluginabi.Descriptor, fn ImportFunc) {
	registrations = append(registrations, registration{descriptor: descriptor, fn: fn})
}

var (
	// allocations holds buffers handed to the host by treasury_alloc
	// until treasury_import consumes them.
	allocations = make(map[uint32][]byte)

	// result keeps the last table or reply reachable while the host
	// reads it.
	result []byte
)

//go:wasmimport treasury dependency
func hostDependency(sourcePtr, sourceLen, targetPtr, targetLen, outPtr uint32) int32

//go:wasmexport treasury_abi_version
func abiVersion() int32 {
	return int32(pluginabi.ContractMajor())
}

//go:wasmexport treasury_importers
func importers() int64 {
	table := make([]pluginabi.Descriptor, len(registrations))
	for i, entry := range registrations {
		table[i] = entry.descriptor
	}
	encoded, err := codec.Marshal(table)
	if err != nil {
		return 0
	}
	return publish(encoded)
}

//go:wasmexport treasury_alloc
func alloc(size int32) int32 {
	if size <= 0 {
		size = 1
	}
	buffer := make([]byte, size)
	ptr := bytesPointer(unsafe.SliceData(buffer))
	allocations[ptr] = buffer
	return int32(ptr)
}

//go:wasmexport treasury_import
func importAsset(index, ptr, length int32) int64 {
	buffer, ok := allocations[uint32(ptr)]
	delete(allocations, uint32(ptr))
	if !ok || int(length) > len(buffer) {
		return reply(Fail("request buffer was not allocated by treasury_alloc"))
	}
	if index < 0 || int(index) >= len(registrations) {
		return reply(Fail("importer index %d out of range", index))
	}

	var wire pluginabi.ImportRequest
	if err := codec.Unmarshal(buffer[:length], &wire); err != nil {
		return reply(Fail("decoding import request: %v", err))
	}

	request := &Request{
		SourcePath:   wire.Source,
		OutputPath:   wire.Output,
		SourceFormat: wire.SourceFormat,
		Target:       wire.Target,
	}
	return reply(invoke(registrations[index].fn, request))
}

func invoke(fn ImportFunc, request *Request) (outcome pluginabi.Reply) {
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = Fail("importer panicked: %v", recovered)
		}
	}()
	return fn(request)
}

func reply(outcome pluginabi.Reply) int64 {
	encoded, err := codec.Marshal(outcome)
	if err != nil {
		return 0
	}
	return publish(encoded)
}

func publish(encoded []byte) int64 {
	result = encoded
	if len(encoded) == 0 {
		return 0
	}
	return int64(pluginabi.Pack(bytesPointer(unsafe.SliceData(encoded)), uint32(len(encoded))))
}

func bytesPointer(p *byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(p)))
}
