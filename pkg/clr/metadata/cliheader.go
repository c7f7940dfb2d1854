// Package metadata decodes and verifies the CLI part of a managed image:
// the CLR runtime header, the metadata root and its streams, the
// metadata table header, table rows and the heaps they index.
package metadata

import (
	"encoding/binary"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

// CLIHeaderSize is the size of the CLR runtime header.
const CLIHeaderSize = 72

// CLR header flags
const (
	FlagILOnly           = 0x00000001
	Flag32BitRequired    = 0x00000002
	FlagILLibrary        = 0x00000004
	FlagStrongNameSigned = 0x00000008
	FlagNativeEntryPoint = 0x00000010
	FlagTrackDebugData   = 0x00010000
	Flag32BitPreferred   = 0x00020000

	knownFlags = FlagILOnly | Flag32BitRequired | FlagILLibrary | FlagStrongNameSigned |
		FlagNativeEntryPoint | FlagTrackDebugData | Flag32BitPreferred
)

// CLIHeader is the CLR runtime header named by data directory 14.
type CLIHeader struct {
	Cb                      uint32           `json:"cb" yaml:"cb"`
	MajorRuntimeVersion     uint16           `json:"major_runtime_version" yaml:"major_runtime_version"`
	MinorRuntimeVersion     uint16           `json:"minor_runtime_version" yaml:"minor_runtime_version"`
	Metadata                pe.DataDirectory `json:"metadata" yaml:"metadata"`
	Flags                   uint32           `json:"flags" yaml:"flags"`
	EntryPointToken         uint32           `json:"entry_point_token" yaml:"entry_point_token"`
	Resources               pe.DataDirectory `json:"resources" yaml:"resources"`
	StrongNameSignature     pe.DataDirectory `json:"strong_name_signature" yaml:"strong_name_signature"`
	CodeManagerTable        pe.DataDirectory `json:"-" yaml:"-"`
	VTableFixups            pe.DataDirectory `json:"vtable_fixups" yaml:"vtable_fixups"`
	ExportAddressTableJumps pe.DataDirectory `json:"-" yaml:"-"`
	ManagedNativeHeader     pe.DataDirectory `json:"-" yaml:"-"`
}

// DecodeCLIHeader decodes a CLR runtime header from the start of b.
func DecodeCLIHeader(b []byte) CLIHeader {
	contract.MinLen(b, CLIHeaderSize, "CLI header")
	le := binary.LittleEndian
	return CLIHeader{
		Cb:                      le.Uint32(b[0:]),
		MajorRuntimeVersion:     le.Uint16(b[4:]),
		MinorRuntimeVersion:     le.Uint16(b[6:]),
		Metadata:                pe.DecodeDataDirectory(b[8:]),
		Flags:                   le.Uint32(b[16:]),
		EntryPointToken:         le.Uint32(b[20:]),
		Resources:               pe.DecodeDataDirectory(b[24:]),
		StrongNameSignature:     pe.DecodeDataDirectory(b[32:]),
		CodeManagerTable:        pe.DecodeDataDirectory(b[40:]),
		VTableFixups:            pe.DecodeDataDirectory(b[48:]),
		ExportAddressTableJumps: pe.DecodeDataDirectory(b[56:]),
		ManagedNativeHeader:     pe.DecodeDataDirectory(b[64:]),
	}
}

// IsStrongNameSigned reports whether the STRONGNAMESIGNED flag is set.
func (h *CLIHeader) IsStrongNameSigned() bool {
	return h.Flags&FlagStrongNameSigned != 0
}
