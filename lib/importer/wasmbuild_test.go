// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arcana-engine/treasury/lib/codec"
	"github.com/arcana-engine/treasury/lib/pluginabi"
)

// Function types available to test modules.
const (
	typeReturnsI32 byte = iota // () -> i32
	typeReturnsI64             // () -> i64
	typeI32ToI32               // (i32) -> i32
	typeImport                 // (i32, i32, i32) -> i64
)

var wasmTypes = [][]byte{
	{0x60, 0x00, 0x01, 0x7f},
	{0x60, 0x00, 0x01, 0x7e},
	{0x60, 0x01, 0x7f, 0x01, 0x7f},
	{0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7e},
}

// wasmFunction is an exported function whose body pushes one constant.
type wasmFunction struct {
	name     string
	typeCode byte
	constant int64
}

type wasmData struct {
	offset uint32
	bytes  []byte
}

// wasmModule describes a minimal module: constant-returning exported
// functions, one page of exported memory, and active data segments.
// It stands in for a compiled plugin so the host side can be tested
// without a wasm toolchain.
type wasmModule struct {
	functions []wasmFunction
	data      []wasmData
	noMemory  bool
}

func (m wasmModule) encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var types []byte
	types = appendULEB(types, uint64(len(wasmTypes)))
	for _, wasmType := range wasmTypes {
		types = append(types, wasmType...)
	}
	out = appendSection(out, 1, types)

	var functions []byte
	functions = appendULEB(functions, uint64(len(m.functions)))
	for _, function := range m.functions {
		functions = append(functions, function.typeCode)
	}
	out = appendSection(out, 3, functions)

	if !m.noMemory {
		out = appendSection(out, 5, []byte{0x01, 0x00, 0x01})
	}

	exportCount := len(m.functions)
	if !m.noMemory {
		exportCount++
	}
	var exports []byte
	exports = appendULEB(exports, uint64(exportCount))
	for index, function := range m.functions {
		exports = appendName(exports, function.name)
		exports = append(exports, 0x00)
		exports = appendULEB(exports, uint64(index))
	}
	if !m.noMemory {
		exports = appendName(exports, "memory")
		exports = append(exports, 0x02, 0x00)
	}
	out = appendSection(out, 7, exports)

	var code []byte
	code = appendULEB(code, uint64(len(m.functions)))
	for _, function := range m.functions {
		body := []byte{0x00} // no locals
		if function.typeCode == typeReturnsI64 || function.typeCode == typeImport {
			body = append(body, 0x42)
		} else {
			body = append(body, 0x41)
		}
		body = appendSLEB(body, function.constant)
		body = append(body, 0x0b)
		code = appendULEB(code, uint64(len(body)))
		code = append(code, body...)
	}
	out = appendSection(out, 10, code)

	if len(m.data) > 0 {
		var data []byte
		data = appendULEB(data, uint64(len(m.data)))
		for _, segment := range m.data {
			data = append(data, 0x00, 0x41)
			data = appendSLEB(data, int64(segment.offset))
			data = append(data, 0x0b)
			data = appendULEB(data, uint64(len(segment.bytes)))
			data = append(data, segment.bytes...)
		}
		out = appendSection(out, 11, data)
	}
	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = appendULEB(out, uint64(len(content)))
	return append(out, content...)
}

func appendName(out []byte, name string) []byte {
	out = appendULEB(out, uint64(len(name)))
	return append(out, name...)
}

func appendULEB(out []byte, value uint64) []byte {
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func appendSLEB(out []byte, value int64) []byte {
	for {
		b := byte(value & 0x7f)
		value >>= 7
		signBit := b&0x40 != 0
		if (value == 0 && !signBit) || (value == -1 && signBit) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

const (
	tableOffset   = 1024
	replyOffset   = 4096
	requestOffset = 8192
)

// testPlugin builds a contract-conforming module declaring major,
// exporting table, and answering every import with reply.
func testPlugin(t *testing.T, major int32, table []pluginabi.Descriptor, reply pluginabi.Reply) wasmModule {
	t.Helper()
	encodedTable, err := codec.Marshal(table)
	if err != nil {
		t.Fatal(err)
	}
	encodedReply, err := codec.Marshal(reply)
	if err != nil {
		t.Fatal(err)
	}
	return wasmModule{
		functions: []wasmFunction{
			{pluginabi.ExportABIVersion, typeReturnsI32, int64(major)},
			{pluginabi.ExportImporters, typeReturnsI64, int64(pluginabi.Pack(tableOffset, uint32(len(encodedTable))))},
			{pluginabi.ExportAlloc, typeI32ToI32, requestOffset},
			{pluginabi.ExportImport, typeImport, int64(pluginabi.Pack(replyOffset, uint32(len(encodedReply))))},
		},
		data: []wasmData{
			{tableOffset, encodedTable},
			{replyOffset, encodedReply},
		},
	}
}

func writePlugin(t *testing.T, name string, module []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, module, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var textureTable = []pluginabi.Descriptor{{
	Name:       "png-texture",
	Formats:    []string{"png"},
	Extensions: []string{"png"},
	Target:     "texture",
}}
