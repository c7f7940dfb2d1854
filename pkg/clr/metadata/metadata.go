package metadata

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/checked"
	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

// Verification stages, continuing after the PE stages.
const (
	StageCLIHeader   = "CLI header"
	StageRoot        = "metadata root"
	StageTableHeader = "metadata table header"
)

// reserved byte 7 of the #~ header is always 1
const tableHeaderReserved1 = 1

type streamRange struct {
	present bool
	offset  uint64 // file offset
	size    uint64
}

// Metadata is the verified CLI part of an image. It holds no bytes of its
// own; every read goes through the image and fails once it is closed.
type Metadata struct {
	img    *pe.Image
	File   *pe.File
	CLI    CLIHeader
	Root   Root
	Tables TableHeader
	Layout *Layout

	rootOffset uint64
	streams    [numStreams]streamRange
}

// Verify runs the CLI stages of image verification on a verified PE file:
// CLI header, metadata root and metadata table header.
func Verify(f *pe.File) (*Metadata, error) {
	md := &Metadata{img: f.Image, File: f}
	for _, stage := range []func() error{md.checkCLIHeader, md.checkRoot, md.checkTableHeader} {
		if err := stage(); err != nil {
			return nil, err
		}
	}
	return md, nil
}

func (md *Metadata) checkCLIHeader() error {
	dir := md.File.Optional.Directory(pe.DirCLRRuntime)
	if dir.IsZero() {
		return errs.Verify(StageCLIHeader, "no CLR runtime header")
	}
	s, ok := md.File.Sections.Find(dir.RVA)
	if !ok {
		return errs.Verify(StageCLIHeader, "RVA 0x%x not in any section", dir.RVA)
	}
	if s.SizeOfRawData == 0 {
		return errs.Verify(StageCLIHeader, "section %q has no raw data", s.NameString())
	}
	rel := uint64(dir.RVA - s.VirtualAddress)
	if !checked.Within(rel, uint64(dir.Size), uint64(s.SizeOfRawData)) {
		return errs.Verify(StageCLIHeader, "header outside section %q", s.NameString())
	}
	if dir.Size < CLIHeaderSize {
		return errs.Verify(StageCLIHeader, "header size %d too small", dir.Size)
	}

	b, err := md.img.Slice(uint64(s.PointerToRawData)+rel, CLIHeaderSize)
	if err != nil {
		return errs.Verify(StageCLIHeader, "%v", err)
	}
	h := DecodeCLIHeader(b)

	switch {
	case h.Cb < CLIHeaderSize:
		return errs.Verify(StageCLIHeader, "cb %d too small", h.Cb)
	case h.MajorRuntimeVersion != 2:
		return errs.Verify(StageCLIHeader, "runtime version %d.%d", h.MajorRuntimeVersion, h.MinorRuntimeVersion)
	case h.Flags&FlagILOnly == 0:
		return errs.Verify(StageCLIHeader, "ILONLY not set")
	case h.Flags&FlagNativeEntryPoint != 0:
		return errs.Verify(StageCLIHeader, "native entry point")
	case h.Flags&^knownFlags != 0:
		return errs.Verify(StageCLIHeader, "unknown flags 0x%x", h.Flags&^knownFlags)
	case !h.Resources.IsConsistent(), !h.StrongNameSignature.IsConsistent(),
		!h.CodeManagerTable.IsConsistent(), !h.VTableFixups.IsConsistent():
		return errs.Verify(StageCLIHeader, "inconsistent data directory")
	case !h.ExportAddressTableJumps.IsZero() || !h.ManagedNativeHeader.IsZero():
		return errs.Verify(StageCLIHeader, "export jumps or native header present")
	case h.StrongNameSignature.IsZero() == h.IsStrongNameSigned():
		return errs.Verify(StageCLIHeader, "strong name signature does not match flags")
	case h.Metadata.IsZero() || !h.Metadata.IsConsistent():
		return errs.Verify(StageCLIHeader, "no metadata")
	}

	off, ok := md.File.Sections.ToOffset(h.Metadata.RVA, h.Metadata.Size)
	if !ok {
		return errs.Verify(StageCLIHeader, "metadata outside section raw data")
	}
	md.CLI = h
	md.rootOffset = off
	return nil
}

func (md *Metadata) checkRoot() error {
	b, err := md.img.Slice(md.rootOffset, uint64(md.CLI.Metadata.Size))
	if err != nil {
		return errs.Verify(StageRoot, "%v", err)
	}
	root, err := ParseRoot(b)
	if err != nil {
		return err
	}
	for _, sh := range root.Streams {
		md.streams[sh.ID] = streamRange{
			present: true,
			offset:  md.rootOffset + uint64(sh.Offset),
			size:    uint64(sh.Size),
		}
	}
	md.Root = *root
	return nil
}

func (md *Metadata) checkTableHeader() error {
	r := md.streams[StreamTables]
	b, err := md.img.Slice(r.offset, r.size)
	if err != nil {
		return errs.Verify(StageTableHeader, "%v", err)
	}
	if len(b) < TableHeaderFixedSize {
		return errs.Verify(StageTableHeader, "#~ stream is %d bytes", len(b))
	}
	// the row counts follow the fixed header, one per bit set in Valid
	valid := binary.LittleEndian.Uint64(b[8:])
	if TableHeaderSize(valid) > len(b) {
		return errs.Verify(StageTableHeader, "row counts run past #~ stream")
	}
	h := DecodeTableHeader(b)

	switch {
	case h.Reserved0 != 0 || h.Reserved1 != tableHeaderReserved1:
		return errs.Verify(StageTableHeader, "reserved fields 0x%x, 0x%x", h.Reserved0, h.Reserved1)
	case h.MajorVersion != 2 || h.MinorVersion != 0:
		return errs.Verify(StageTableHeader, "schema version %d.%d", h.MajorVersion, h.MinorVersion)
	case h.HeapSizes&^heapSizesKnown != 0:
		return errs.Verify(StageTableHeader, "unknown heap size bits 0x%x", uint8(h.HeapSizes))
	case h.Sorted&^h.Valid != 0:
		return errs.Verify(StageTableHeader, "sorted tables 0x%x not valid", h.Sorted&^h.Valid)
	case h.Valid>>NumTables != 0:
		return errs.Verify(StageTableHeader, "unknown tables 0x%x", h.Valid>>NumTables<<NumTables)
	case h.Valid == 0:
		return errs.Verify(StageTableHeader, "no tables")
	}

	layout, ok := NewLayout(&h)
	if !ok || layout.End > r.size {
		return errs.Verify(StageTableHeader, "tables run past #~ stream")
	}
	md.Tables = h
	md.Layout = layout
	return nil
}

func (md *Metadata) stream(id StreamID) ([]byte, error) {
	r := md.streams[id]
	if !r.present {
		if err := md.img.CheckValid(); err != nil {
			return nil, err
		}
		return nil, md.malformed("no %s stream", id)
	}
	return md.img.Slice(r.offset, r.size)
}

func (md *Metadata) malformed(format string, args ...interface{}) error {
	return errors.Wrapf(errs.Malformed(md.img.Name()), format, args...)
}

// HasStream reports whether the root declared stream id.
func (md *Metadata) HasStream(id StreamID) bool {
	return md.streams[id].present
}

// Image returns the image the metadata was read from.
func (md *Metadata) Image() *pe.Image {
	return md.img
}

// Table returns table t.
func (md *Metadata) Table(t TableID) *Table {
	return &Table{md: md, layout: md.Layout.Table(t)}
}

// Table gives indexed access to the rows of one metadata table.
type Table struct {
	md     *Metadata
	layout *TableLayout
}

// ID returns the table's ID.
func (t *Table) ID() TableID {
	return t.layout.ID
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return int(t.layout.Rows)
}

// Row returns row i (0-based).
func (t *Table) Row(i int) (Row, error) {
	if i < 0 || i >= t.Len() {
		return Row{}, errs.OutOfRange(i, t.Len())
	}
	off := t.md.streams[StreamTables].offset + t.layout.Offset + uint64(i)*uint64(t.layout.RowSize)
	b, err := t.md.img.Slice(off, uint64(t.layout.RowSize))
	if err != nil {
		return Row{}, err
	}
	return NewRow(t.layout, i, b), nil
}
