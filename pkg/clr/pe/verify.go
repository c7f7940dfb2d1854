package pe

import (
	"bytes"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/checked"
)

// Verification stages, in the order they run.
const (
	StageSize           = "size"
	StageSignature      = "pe signature"
	StageFileHeader     = "pe header"
	StageOptionalHeader = "optional header"
	StageSections       = "section table"
)

const (
	minFileAlignment = 512
	maxFileAlignment = 64 * 1024
	// the CLR runtime header is directory 14
	minDataDirectories = DirCLRRuntime + 1

	fileHeaderForbidden = FileReserved40 | FileBytesReversedLo | FileSystem | FileBytesReversedHi
)

// File is a PE image whose container structures passed verification.
type File struct {
	Image    *Image
	PEOffset uint32
	Header   FileHeader
	Optional OptionalHeader
	Sections Sections
}

// Verify runs the PE stages of image verification: size floor, PE
// signature, file header, optional header and section table. It stops at
// the first failure and returns an *errs.VerifyError naming the stage.
func Verify(img *Image) (*File, error) {
	v := &verifier{img: img, size: uint64(img.Len())}
	stages := []func() error{
		v.checkSize,
		v.checkSignature,
		v.checkFileHeader,
		v.checkOptionalHeader,
		v.checkSections,
	}
	for _, stage := range stages {
		if err := stage(); err != nil {
			return nil, err
		}
	}
	return &v.file, nil
}

type verifier struct {
	img  *Image
	size uint64
	file File

	optOffset uint64
}

func (v *verifier) checkSize() error {
	if v.size < MinImageSize {
		return errs.Verify(StageSize, "file is %d bytes, need at least %d", v.size, MinImageSize)
	}
	v.file.Image = v.img
	return nil
}

func (v *verifier) checkSignature() error {
	lfanew, err := v.img.U32(LfanewOffset)
	if err != nil {
		return errs.Verify(StageSignature, "%v", err)
	}
	if !checked.Within(uint64(lfanew), SignatureSize+FileHeaderSize, v.size) {
		return errs.Verify(StageSignature, "PE header offset 0x%x outside file", lfanew)
	}
	sig, err := v.img.Slice(uint64(lfanew), SignatureSize)
	if err != nil {
		return errs.Verify(StageSignature, "%v", err)
	}
	if !bytes.Equal(sig, Signature[:]) {
		return errs.Verify(StageSignature, "bad PE signature %q", sig)
	}
	v.file.PEOffset = lfanew
	return nil
}

func (v *verifier) checkFileHeader() error {
	b, err := v.img.Slice(uint64(v.file.PEOffset)+SignatureSize, FileHeaderSize)
	if err != nil {
		return errs.Verify(StageFileHeader, "%v", err)
	}
	h := DecodeFileHeader(b)

	switch {
	case !isKnownMachine(h.Machine):
		return errs.Verify(StageFileHeader, "unsupported machine %s", MachineTypeName(h.Machine))
	case h.NumberOfSections == 0 || h.NumberOfSections > MaxSections:
		return errs.Verify(StageFileHeader, "bad section count %d", h.NumberOfSections)
	case h.PointerToSymbolTable != 0 || h.NumberOfSymbols != 0:
		return errs.Verify(StageFileHeader, "image carries a COFF symbol table")
	case h.Characteristics&FileExecutableImage == 0:
		return errs.Verify(StageFileHeader, "image is not executable")
	case h.Characteristics&fileHeaderForbidden != 0:
		return errs.Verify(StageFileHeader, "reserved characteristics 0x%04x set", h.Characteristics&fileHeaderForbidden)
	case h.SizeOfOptionalHeader < 2:
		return errs.Verify(StageFileHeader, "optional header size %d too small", h.SizeOfOptionalHeader)
	}

	v.optOffset = uint64(v.file.PEOffset) + SignatureSize + FileHeaderSize
	if !checked.Within(v.optOffset, uint64(h.SizeOfOptionalHeader), v.size) {
		return errs.Verify(StageFileHeader, "optional header runs past end of file")
	}
	v.file.Header = h
	return nil
}

func (v *verifier) checkOptionalHeader() error {
	declared := uint64(v.file.Header.SizeOfOptionalHeader)
	magic, err := v.img.U16(v.optOffset)
	if err != nil {
		return errs.Verify(StageOptionalHeader, "%v", err)
	}
	format := Format(magic)
	fixed := uint64(format.FixedSize())
	if fixed == 0 {
		return errs.Verify(StageOptionalHeader, "unknown magic 0x%x", magic)
	}
	if fixed > declared {
		return errs.Verify(StageOptionalHeader, "%s header needs %d bytes, declared %d", format, fixed, declared)
	}

	ndirs, err := v.img.U32(v.optOffset + fixed - 4)
	if err != nil {
		return errs.Verify(StageOptionalHeader, "%v", err)
	}
	if ndirs < minDataDirectories {
		return errs.Verify(StageOptionalHeader, "only %d data directories", ndirs)
	}
	dirBytes, ok := checked.Mul(uint64(ndirs), DataDirSize)
	if !ok {
		return errs.Verify(StageOptionalHeader, "data directory size overflows")
	}
	total, ok := checked.Add(fixed, dirBytes)
	if !ok || total > declared {
		return errs.Verify(StageOptionalHeader, "%d data directories do not fit in %d bytes", ndirs, declared)
	}

	b, err := v.img.Slice(v.optOffset, declared)
	if err != nil {
		return errs.Verify(StageOptionalHeader, "%v", err)
	}
	n := int(ndirs)
	if n > MaxDataDirectories {
		n = MaxDataDirectories
	}
	h := DecodeOptionalHeader(b, format, n)

	switch {
	case !checked.IsPowerOfTwo(h.FileAlignment) || h.FileAlignment < minFileAlignment || h.FileAlignment > maxFileAlignment:
		return errs.Verify(StageOptionalHeader, "bad file alignment 0x%x", h.FileAlignment)
	case !checked.IsPowerOfTwo(h.SectionAlignment) || h.SectionAlignment < h.FileAlignment:
		return errs.Verify(StageOptionalHeader, "bad section alignment 0x%x", h.SectionAlignment)
	case h.LoaderFlags != 0:
		return errs.Verify(StageOptionalHeader, "loader flags 0x%x", h.LoaderFlags)
	case h.Win32VersionValue != 0:
		return errs.Verify(StageOptionalHeader, "win32 version value 0x%x", h.Win32VersionValue)
	case h.Subsystem != SubsystemWindowsGUI && h.Subsystem != SubsystemWindowsCUI:
		return errs.Verify(StageOptionalHeader, "unsupported subsystem %d", h.Subsystem)
	}

	v.file.Optional = h
	return nil
}

func (v *verifier) checkSections() error {
	count := uint64(v.file.Header.NumberOfSections)
	off := v.optOffset + uint64(v.file.Header.SizeOfOptionalHeader)
	b, err := v.img.Slice(off, count*SectionEntrySize)
	if err != nil {
		return errs.Verify(StageSections, "section table runs past end of file")
	}

	sections := make(Sections, count)
	for i := range sections {
		sections[i] = DecodeSectionHeader(b[i*SectionEntrySize:])
		if err := v.checkSection(&sections[i]); err != nil {
			return err
		}
	}
	if err := CheckContiguous(sections, v.file.Optional.SectionAlignment); err != nil {
		return err
	}

	last := &sections[len(sections)-1]
	size, ok := last.AlignedSize(v.file.Optional.SectionAlignment)
	if !ok {
		return errs.Verify(StageSections, "section %q size overflows", last.NameString())
	}
	end, ok := checked.Add(last.VirtualAddress, size)
	if !ok || end > v.file.Optional.SizeOfImage {
		return errs.Verify(StageSections, "sections extend past SizeOfImage 0x%x", v.file.Optional.SizeOfImage)
	}

	v.file.Sections = sections
	return nil
}

func (v *verifier) checkSection(s *SectionHeader) error {
	opt := &v.file.Optional
	name := s.NameString()

	switch {
	case s.Characteristics&sectionObjectOnly != 0:
		return errs.Verify(StageSections, "section %q has object file characteristics 0x%x", name, s.Characteristics&sectionObjectOnly)
	case s.PointerToRelocations != 0 || s.NumberOfRelocations != 0:
		return errs.Verify(StageSections, "section %q has relocations", name)
	case s.PointerToLinenumbers != 0 || s.NumberOfLinenumbers != 0:
		return errs.Verify(StageSections, "section %q has line numbers", name)
	case s.VirtualAddress == 0 || !checked.IsAligned(s.VirtualAddress, opt.SectionAlignment):
		return errs.Verify(StageSections, "section %q address 0x%x not aligned", name, s.VirtualAddress)
	case s.VirtualSize == 0:
		return errs.Verify(StageSections, "section %q has zero virtual size", name)
	}

	if s.SizeOfRawData == 0 {
		return nil
	}
	switch {
	case !checked.IsAligned(s.PointerToRawData, opt.FileAlignment):
		return errs.Verify(StageSections, "section %q raw data pointer 0x%x not aligned", name, s.PointerToRawData)
	case !checked.IsAligned(s.SizeOfRawData, opt.FileAlignment):
		return errs.Verify(StageSections, "section %q raw size 0x%x not aligned", name, s.SizeOfRawData)
	case !checked.Within(uint64(s.PointerToRawData), uint64(s.SizeOfRawData), v.size):
		return errs.Verify(StageSections, "section %q raw data outside file", name)
	}
	return nil
}

// CheckContiguous verifies that each section starts exactly where the
// previous one ends once aligned to alignment, so addresses are strictly
// ascending with no gaps or overlaps.
func CheckContiguous(ss Sections, alignment uint32) error {
	for i := 1; i < len(ss); i++ {
		prev, cur := &ss[i-1], &ss[i]
		size, ok := prev.AlignedSize(alignment)
		if !ok {
			return errs.Verify(StageSections, "section %q size overflows", prev.NameString())
		}
		next, ok := checked.Add(prev.VirtualAddress, size)
		if !ok {
			return errs.Verify(StageSections, "section %q end overflows", prev.NameString())
		}
		if next != cur.VirtualAddress {
			return errs.Verify(StageSections, "section %q at 0x%x, expected 0x%x", cur.NameString(), cur.VirtualAddress, next)
		}
	}
	return nil
}
