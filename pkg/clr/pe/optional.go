package pe

import (
	"encoding/binary"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
)

// Format selects the optional header layout.
type Format uint16

// Optional header magic numbers
const (
	FormatPE32     Format = 0x10b
	FormatPE32Plus Format = 0x20b
)

func (f Format) String() string {
	switch f {
	case FormatPE32:
		return "PE32"
	case FormatPE32Plus:
		return "PE32+"
	}
	return "unknown"
}

// Fixed part sizes of the two layouts, excluding data directories.
const (
	OptionalHeader32Size = 96
	OptionalHeader64Size = 112
	MaxDataDirectories   = 16
)

// Data directory indices
const (
	DirExport = iota
	DirImport
	DirResource
	DirException
	DirSecurity
	DirBaseReloc
	DirDebug
	DirArchitecture
	DirGlobalPtr
	DirTLS
	DirLoadConfig
	DirBoundImport
	DirIAT
	DirDelayImport
	DirCLRRuntime
	DirReserved
)

// Subsystems accepted for managed images.
const (
	SubsystemWindowsGUI = 2
	SubsystemWindowsCUI = 3
)

// OptionalHeader holds the fields of either optional header layout. Format
// records which one was decoded; 64-bit fields are widened for PE32.
type OptionalHeader struct {
	Format                  Format
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	BaseOfData              uint32 // PE32 only
	ImageBase               uint64
	SectionAlignment        uint32
	FileAlignment           uint32
	MajorOSVersion          uint16
	MinorOSVersion          uint16
	MajorImageVersion       uint16
	MinorImageVersion       uint16
	MajorSubsystemVersion   uint16
	MinorSubsystemVersion   uint16
	Win32VersionValue       uint32
	SizeOfImage             uint32
	SizeOfHeaders           uint32
	CheckSum                uint32
	Subsystem               uint16
	DllCharacteristics      uint16
	SizeOfStackReserve      uint64
	SizeOfStackCommit       uint64
	SizeOfHeapReserve       uint64
	SizeOfHeapCommit        uint64
	LoaderFlags             uint32
	NumberOfRvaAndSizes     uint32
	DataDirectories         [MaxDataDirectories]DataDirectory
}

// FixedSize returns the size of the layout for f without data directories,
// or 0 for an unknown format.
func (f Format) FixedSize() int {
	switch f {
	case FormatPE32:
		return OptionalHeader32Size
	case FormatPE32Plus:
		return OptionalHeader64Size
	}
	return 0
}

// DecodeOptionalHeader decodes the fixed part of an optional header of the
// given format and ndirs data directories following it.
func DecodeOptionalHeader(b []byte, f Format, ndirs int) OptionalHeader {
	fixed := f.FixedSize()
	contract.Check(fixed != 0, "unknown optional header format 0x%x", uint16(f))
	contract.MinLen(b, fixed+ndirs*DataDirSize, "optional header")

	le := binary.LittleEndian
	h := OptionalHeader{
		Format:                  f,
		MajorLinkerVersion:      b[2],
		MinorLinkerVersion:      b[3],
		SizeOfCode:              le.Uint32(b[4:]),
		SizeOfInitializedData:   le.Uint32(b[8:]),
		SizeOfUninitializedData: le.Uint32(b[12:]),
		AddressOfEntryPoint:     le.Uint32(b[16:]),
		BaseOfCode:              le.Uint32(b[20:]),
		SectionAlignment:        le.Uint32(b[32:]),
		FileAlignment:           le.Uint32(b[36:]),
		MajorOSVersion:          le.Uint16(b[40:]),
		MinorOSVersion:          le.Uint16(b[42:]),
		MajorImageVersion:       le.Uint16(b[44:]),
		MinorImageVersion:       le.Uint16(b[46:]),
		MajorSubsystemVersion:   le.Uint16(b[48:]),
		MinorSubsystemVersion:   le.Uint16(b[50:]),
		Win32VersionValue:       le.Uint32(b[52:]),
		SizeOfImage:             le.Uint32(b[56:]),
		SizeOfHeaders:           le.Uint32(b[60:]),
		CheckSum:                le.Uint32(b[64:]),
		Subsystem:               le.Uint16(b[68:]),
		DllCharacteristics:      le.Uint16(b[70:]),
	}

	switch f {
	case FormatPE32:
		h.BaseOfData = le.Uint32(b[24:])
		h.ImageBase = uint64(le.Uint32(b[28:]))
		h.SizeOfStackReserve = uint64(le.Uint32(b[72:]))
		h.SizeOfStackCommit = uint64(le.Uint32(b[76:]))
		h.SizeOfHeapReserve = uint64(le.Uint32(b[80:]))
		h.SizeOfHeapCommit = uint64(le.Uint32(b[84:]))
		h.LoaderFlags = le.Uint32(b[88:])
		h.NumberOfRvaAndSizes = le.Uint32(b[92:])
	case FormatPE32Plus:
		h.ImageBase = le.Uint64(b[24:])
		h.SizeOfStackReserve = le.Uint64(b[72:])
		h.SizeOfStackCommit = le.Uint64(b[80:])
		h.SizeOfHeapReserve = le.Uint64(b[88:])
		h.SizeOfHeapCommit = le.Uint64(b[96:])
		h.LoaderFlags = le.Uint32(b[104:])
		h.NumberOfRvaAndSizes = le.Uint32(b[108:])
	}

	if ndirs > MaxDataDirectories {
		ndirs = MaxDataDirectories
	}
	for i := 0; i < ndirs; i++ {
		h.DataDirectories[i] = DecodeDataDirectory(b[fixed+i*DataDirSize:])
	}
	return h
}

// Directory returns data directory i, or a zero directory if the header
// declares fewer.
func (h *OptionalHeader) Directory(i int) DataDirectory {
	if i < 0 || i >= int(h.NumberOfRvaAndSizes) || i >= MaxDataDirectories {
		return DataDirectory{}
	}
	return h.DataDirectories[i]
}
