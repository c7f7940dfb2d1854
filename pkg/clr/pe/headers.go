package pe

import (
	"encoding/binary"
	"fmt"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
)

// Layout constants
const (
	MinImageSize     = 128  // smallest file considered at all
	LfanewOffset     = 0x3C // offset of the PE header pointer in the DOS header
	SignatureSize    = 4
	FileHeaderSize   = 20
	SectionEntrySize = 40
	DataDirSize      = 8
	MaxSections      = 96
)

// Signature is the 4 byte PE signature "PE\0\0".
var Signature = [SignatureSize]byte{'P', 'E', 0, 0}

// Machine types
const (
	MachineI386  = 0x014c
	MachineIA64  = 0x0200
	MachineARM   = 0x01c0
	MachineARMNT = 0x01c4
	MachineAMD64 = 0x8664
	MachineARM64 = 0xAA64
)

// File header characteristics
const (
	FileRelocsStripped     = 0x0001
	FileExecutableImage    = 0x0002
	FileLineNumsStripped   = 0x0004
	FileLocalSymsStripped  = 0x0008
	FileAggressiveWSTrim   = 0x0010
	FileLargeAddressAware  = 0x0020
	FileReserved40         = 0x0040
	FileBytesReversedLo    = 0x0080
	File32BitMachine       = 0x0100
	FileDebugStripped      = 0x0200
	FileRemovableRunFromSw = 0x0400
	FileNetRunFromSwap     = 0x0800
	FileSystem             = 0x1000
	FileDLL                = 0x2000
	FileUpSystemOnly       = 0x4000
	FileBytesReversedHi    = 0x8000
)

// FileHeader is the COFF file header that follows the PE signature.
type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// DecodeFileHeader decodes a COFF file header from the start of b.
func DecodeFileHeader(b []byte) FileHeader {
	contract.MinLen(b, FileHeaderSize, "file header")
	return FileHeader{
		Machine:              binary.LittleEndian.Uint16(b[0:]),
		NumberOfSections:     binary.LittleEndian.Uint16(b[2:]),
		TimeDateStamp:        binary.LittleEndian.Uint32(b[4:]),
		PointerToSymbolTable: binary.LittleEndian.Uint32(b[8:]),
		NumberOfSymbols:      binary.LittleEndian.Uint32(b[12:]),
		SizeOfOptionalHeader: binary.LittleEndian.Uint16(b[16:]),
		Characteristics:      binary.LittleEndian.Uint16(b[18:]),
	}
}

// IsDLL reports whether the image is a library.
func (h FileHeader) IsDLL() bool {
	return h.Characteristics&FileDLL != 0
}

// MachineTypeName returns the human-readable name for a machine type.
func MachineTypeName(machine uint16) string {
	switch machine {
	case MachineI386:
		return "x86"
	case MachineAMD64:
		return "x64"
	case MachineARM:
		return "ARM"
	case MachineARMNT:
		return "ARMNT"
	case MachineARM64:
		return "ARM64"
	case MachineIA64:
		return "IA64"
	default:
		return fmt.Sprintf("0x%04x", machine)
	}
}

func isKnownMachine(machine uint16) bool {
	switch machine {
	case MachineI386, MachineAMD64, MachineARM, MachineARMNT, MachineARM64, MachineIA64:
		return true
	}
	return false
}

// DataDirectory is an (RVA, size) pair.
type DataDirectory struct {
	RVA  uint32 `json:"rva" yaml:"rva"`
	Size uint32 `json:"size" yaml:"size"`
}

// DecodeDataDirectory decodes an (RVA, size) pair from the start of b.
func DecodeDataDirectory(b []byte) DataDirectory {
	contract.MinLen(b, DataDirSize, "data directory")
	return DataDirectory{
		RVA:  binary.LittleEndian.Uint32(b[0:]),
		Size: binary.LittleEndian.Uint32(b[4:]),
	}
}

// IsZero reports whether both fields are zero.
func (d DataDirectory) IsZero() bool {
	return d.RVA == 0 && d.Size == 0
}

// IsConsistent reports whether the directory is either fully present or
// fully absent.
func (d DataDirectory) IsConsistent() bool {
	return (d.RVA == 0) == (d.Size == 0)
}
