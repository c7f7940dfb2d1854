package pe

import (
	"bytes"
	"encoding/binary"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/checked"
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
)

// Section characteristics
const (
	SectionTypeNoPad            = 0x00000008
	SectionCntCode              = 0x00000020
	SectionCntInitializedData   = 0x00000040
	SectionCntUninitializedData = 0x00000080
	SectionLnkOther             = 0x00000100
	SectionLnkInfo              = 0x00000200
	SectionLnkRemove            = 0x00000800
	SectionLnkComdat            = 0x00001000
	SectionGPRel                = 0x00008000
	SectionAlignMask            = 0x00F00000
	SectionLnkNRelocOvfl        = 0x01000000
	SectionMemDiscardable       = 0x02000000
	SectionMemNotCached         = 0x04000000
	SectionMemNotPaged          = 0x08000000
	SectionMemShared            = 0x10000000
	SectionMemExecute           = 0x20000000
	SectionMemRead              = 0x40000000
	SectionMemWrite             = 0x80000000

	// bits only meaningful in object files
	sectionObjectOnly = SectionTypeNoPad | SectionLnkOther | SectionLnkInfo |
		SectionLnkRemove | SectionLnkComdat | SectionAlignMask | SectionLnkNRelocOvfl
)

// SectionHeader is one entry of the section table.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// DecodeSectionHeader decodes a section table entry from the start of b.
func DecodeSectionHeader(b []byte) SectionHeader {
	contract.MinLen(b, SectionEntrySize, "section header")
	le := binary.LittleEndian
	var s SectionHeader
	copy(s.Name[:], b[0:8])
	s.VirtualSize = le.Uint32(b[8:])
	s.VirtualAddress = le.Uint32(b[12:])
	s.SizeOfRawData = le.Uint32(b[16:])
	s.PointerToRawData = le.Uint32(b[20:])
	s.PointerToRelocations = le.Uint32(b[24:])
	s.PointerToLinenumbers = le.Uint32(b[28:])
	s.NumberOfRelocations = le.Uint16(b[32:])
	s.NumberOfLinenumbers = le.Uint16(b[34:])
	s.Characteristics = le.Uint32(b[36:])
	return s
}

// NameString returns the section name without trailing NULs.
func (s *SectionHeader) NameString() string {
	if i := bytes.IndexByte(s.Name[:], 0); i >= 0 {
		return string(s.Name[:i])
	}
	return string(s.Name[:])
}

// Size returns the number of bytes the section occupies in memory before
// alignment.
func (s *SectionHeader) Size() uint32 {
	if s.VirtualSize == 0 {
		return s.SizeOfRawData
	}
	return s.VirtualSize
}

// AlignedSize returns Size rounded up to alignment; ok is false on overflow.
func (s *SectionHeader) AlignedSize(alignment uint32) (uint32, bool) {
	return checked.AlignUp(s.Size(), alignment)
}

// Sections is a verified section table, ascending by virtual address.
type Sections []SectionHeader

// Find returns the section containing the virtual address va: the last
// section whose VirtualAddress <= va, provided va <= VirtualAddress +
// VirtualSize.
func (ss Sections) Find(va uint32) (*SectionHeader, bool) {
	best := -1
	lo, hi := 0, len(ss)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		switch v := ss[mid].VirtualAddress; {
		case v == va:
			return &ss[mid], true
		case v < va:
			best = mid
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	if best < 0 {
		return nil, false
	}

	s := &ss[best]
	end, ok := checked.Add(s.VirtualAddress, s.VirtualSize)
	if !ok || va > end {
		return nil, false
	}
	return s, true
}

// ToOffset translates the n byte range at rva to a file offset. The whole
// range must lie in the raw data of a single section.
func (ss Sections) ToOffset(rva, n uint32) (uint64, bool) {
	s, ok := ss.Find(rva)
	if !ok || s.SizeOfRawData == 0 {
		return 0, false
	}
	rel := uint64(rva - s.VirtualAddress)
	if !checked.Within(rel, uint64(n), uint64(s.SizeOfRawData)) {
		return 0, false
	}
	return uint64(s.PointerToRawData) + rel, true
}
