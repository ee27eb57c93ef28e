// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package pluginabi

import (
	"github.com/Masterminds/semver/v3"
)

// ContractVersion is the version of the plugin contract this build
// speaks. Only the major component is exchanged with plugins; minor
// and patch revisions must stay wire-compatible.
const ContractVersion = "1.0.0"

var contractVersion = semver.MustParse(ContractVersion)

// ContractMajor returns the major component of ContractVersion.
func ContractMajor() uint32 {
	return uint32(contractVersion.Major())
}

// Compatible reports whether a plugin declaring major can be loaded by
// this host.
func Compatible(major uint32) bool {
	return major == ContractMajor()
}

// Export and import names.
const (
	ExportMemory     = "memory"
	ExportInitialize = "_initialize"
	ExportABIVersion = "treasury_abi_version"
	ExportImporters  = "treasury_importers"
	ExportAlloc      = "treasury_alloc"
	ExportImport     = "treasury_import"

	HostModule     = "treasury"
	HostDependency = "dependency"
)

// Results of the host dependency function.
const (
	DependencyFound    int32 = 0
	DependencyNotFound int32 = 1
	DependencyError    int32 = 2
)

// Guest paths at which the host mounts the source directory (read-only)
// and the private output directory.
const (
	SourceMount = "/source"
	OutputMount = "/output"
)

// Pack combines a guest pointer and length into one i64 result.
func Pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// Unpack splits a value produced by Pack.
func Unpack(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
