// Package testimage builds small, well-formed managed images for tests.
// Every field the reader verifies can be set through the Builder or
// patched afterwards through the offsets recorded in Image.
package testimage

import (
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// Fixed placement of the generated image.
const (
	PEOffset      = 0x80
	FileAlignment = 0x200
	SectionAlign  = 0x2000
	TextRVA       = 0x2000
	TextOffset    = 0x200
	CLIHeaderSize = 72

	pe32OptionalSize     = 96 + 16*8
	pe32PlusOptionalSize = 112 + 16*8
)

// Table IDs written by the builder.
const (
	tableModule      = 0x00
	tableTypeDef     = 0x02
	tableAssembly    = 0x20
	tableAssemblyRef = 0x23
	tableFile        = 0x26
)

// Type is one TypeDef row.
type Type struct {
	Namespace string
	Name      string
	Flags     uint32
	Extends   uint32 // raw TypeDefOrRef coded index
}

// TypeRef returns the TypeDefOrRef coded index of TypeRef row rid.
func TypeRef(rid uint32) uint32 {
	return rid<<2 | 1
}

// Identity is one Assembly or AssemblyRef row.
type Identity struct {
	Name      string
	Culture   string
	Version   [4]uint16
	Flags     uint32
	PublicKey []byte
}

// File is one File row.
type File struct {
	Name       string
	NoMetadata bool
}

// Builder describes the image to generate. New returns one with defaults
// that pass verification.
type Builder struct {
	Machine         uint16
	PE32Plus        bool
	Characteristics uint16
	Subsystem       uint16
	RelocSection    bool // append a second, empty-ish section

	CLIFlags  uint32
	Version   string
	HeapSizes uint8
	Sorted    uint64
	Streams   []string // stream headers to emit, in order

	ModuleName  string
	MVID        uuid.UUID
	Types       []Type
	Assembly    *Identity
	References  []Identity
	Files       []File
	UserStrings []string
}

// New returns a Builder for a PE32 x86 DLL with one module and no types.
func New() *Builder {
	return &Builder{
		Machine:         0x014c,
		Characteristics: 0x0002 | 0x0100 | 0x2000, // executable, 32-bit, DLL
		Subsystem:       3,
		CLIFlags:        0x00000001, // ILONLY
		Version:         "v4.0.30319",
		Streams:         []string{"#~", "#Strings", "#US", "#GUID", "#Blob"},
		ModuleName:      "test.dll",
		MVID:            uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef"),
	}
}

// Image is a generated image with the file offsets of its structures.
type Image struct {
	Bytes []byte

	FileHeaderOffset   int
	OptionalOffset     int
	SectionTableOffset int
	CLIHeaderOffset    int
	RootOffset         int
	TablesOffset       int // start of the #~ stream
	RowsOffset         int // first row of the first table
	StringsOffset      int

	// UserStrings holds the #US heap offset of each Builder.UserStrings
	// entry.
	UserStrings []uint32
}

// PutU16 overwrites the 16-bit value at off.
func (img *Image) PutU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(img.Bytes[off:], v)
}

// PutU32 overwrites the 32-bit value at off.
func (img *Image) PutU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(img.Bytes[off:], v)
}

// PutU64 overwrites the 64-bit value at off.
func (img *Image) PutU64(off int, v uint64) {
	binary.LittleEndian.PutUint64(img.Bytes[off:], v)
}

// Build generates the image.
func (b *Builder) Build() *Image {
	img := &Image{}
	le := binary.LittleEndian

	md := b.metadata(img)

	text := make([]byte, CLIHeaderSize, CLIHeaderSize+len(md))
	le.PutUint32(text[0:], CLIHeaderSize)
	le.PutUint16(text[4:], 2)
	le.PutUint16(text[6:], 5)
	le.PutUint32(text[8:], TextRVA+CLIHeaderSize)
	le.PutUint32(text[12:], uint32(len(md)))
	le.PutUint32(text[16:], b.CLIFlags)
	text = append(text, md...)
	textRaw := alignUp(len(text), FileAlignment)

	optSize := pe32OptionalSize
	if b.PE32Plus {
		optSize = pe32PlusOptionalSize
	}
	nsect := 1
	if b.RelocSection {
		nsect = 2
	}
	img.FileHeaderOffset = PEOffset + 4
	img.OptionalOffset = img.FileHeaderOffset + 20
	img.SectionTableOffset = img.OptionalOffset + optSize
	if img.SectionTableOffset+40*nsect > TextOffset {
		panic("testimage: headers do not fit before the first section")
	}

	total := TextOffset + textRaw
	relocRVA := TextRVA + alignUp(len(text), SectionAlign)
	imageEnd := relocRVA
	if b.RelocSection {
		total += FileAlignment
		imageEnd += SectionAlign
	}
	buf := make([]byte, total)
	img.Bytes = buf

	// DOS header
	buf[0], buf[1] = 'M', 'Z'
	le.PutUint32(buf[0x3C:], PEOffset)
	copy(buf[PEOffset:], "PE\x00\x00")

	fh := buf[img.FileHeaderOffset:]
	le.PutUint16(fh[0:], b.Machine)
	le.PutUint16(fh[2:], uint16(nsect))
	le.PutUint16(fh[16:], uint16(optSize))
	le.PutUint16(fh[18:], b.Characteristics)

	opt := buf[img.OptionalOffset:]
	dirs := 96
	if b.PE32Plus {
		le.PutUint16(opt[0:], 0x20b)
		le.PutUint64(opt[24:], 0x180000000)
		le.PutUint64(opt[72:], 0x100000)
		le.PutUint64(opt[80:], 0x1000)
		le.PutUint64(opt[88:], 0x100000)
		le.PutUint64(opt[96:], 0x1000)
		le.PutUint32(opt[108:], 16)
		dirs = 112
	} else {
		le.PutUint16(opt[0:], 0x10b)
		le.PutUint32(opt[28:], 0x400000)
		le.PutUint32(opt[72:], 0x100000)
		le.PutUint32(opt[76:], 0x1000)
		le.PutUint32(opt[80:], 0x100000)
		le.PutUint32(opt[84:], 0x1000)
		le.PutUint32(opt[92:], 16)
	}
	opt[2] = 8
	le.PutUint32(opt[4:], uint32(textRaw))
	le.PutUint32(opt[20:], TextRVA)
	le.PutUint32(opt[32:], SectionAlign)
	le.PutUint32(opt[36:], FileAlignment)
	le.PutUint16(opt[40:], 4)
	le.PutUint16(opt[48:], 4)
	le.PutUint32(opt[56:], uint32(imageEnd))
	le.PutUint32(opt[60:], TextOffset)
	le.PutUint16(opt[68:], b.Subsystem)
	le.PutUint16(opt[70:], 0x8540)
	// CLR runtime header directory
	le.PutUint32(opt[dirs+14*8:], TextRVA)
	le.PutUint32(opt[dirs+14*8+4:], CLIHeaderSize)

	st := buf[img.SectionTableOffset:]
	copy(st[0:8], ".text")
	le.PutUint32(st[8:], uint32(len(text)))
	le.PutUint32(st[12:], TextRVA)
	le.PutUint32(st[16:], uint32(textRaw))
	le.PutUint32(st[20:], TextOffset)
	le.PutUint32(st[36:], 0x60000020)
	if b.RelocSection {
		st = st[40:]
		copy(st[0:8], ".reloc")
		le.PutUint32(st[8:], 0x0C)
		le.PutUint32(st[12:], uint32(relocRVA))
		le.PutUint32(st[16:], FileAlignment)
		le.PutUint32(st[20:], uint32(TextOffset+textRaw))
		le.PutUint32(st[36:], 0x42000040)
	}

	copy(buf[TextOffset:], text)
	img.CLIHeaderOffset = TextOffset
	img.RootOffset = TextOffset + CLIHeaderSize
	img.TablesOffset += img.RootOffset
	img.RowsOffset += img.RootOffset
	img.StringsOffset += img.RootOffset
	return img
}

// metadata returns the metadata root and its streams. Stream offsets in
// img are left relative to the root.
func (b *Builder) metadata(img *Image) []byte {
	var (
		strs  = newHeap(1)
		blobs = newHeap(1)
		us    = newHeap(1)
		guids = mixedEndian(b.MVID)
	)

	tables, rowsAt := b.tables(strs, blobs)
	for _, s := range b.UserStrings {
		img.UserStrings = append(img.UserStrings, us.userString(s))
	}

	streams := map[string][]byte{
		"#~":       pad4(tables),
		"#Strings": pad4(strs.buf),
		"#US":      pad4(us.buf),
		"#GUID":    guids,
		"#Blob":    pad4(blobs.buf),
	}

	le := binary.LittleEndian
	version := make([]byte, alignUp(len(b.Version)+1, 4))
	copy(version, b.Version)

	headerSize := 16 + len(version) + 4
	for _, name := range b.Streams {
		headerSize += 8 + alignUp(len(name)+1, 4)
	}

	root := make([]byte, 16, headerSize)
	le.PutUint32(root[0:], 0x424A5342)
	le.PutUint16(root[4:], 1)
	le.PutUint16(root[6:], 1)
	le.PutUint32(root[12:], uint32(len(version)))
	root = append(root, version...)
	root = le.AppendUint16(root, 0)
	root = le.AppendUint16(root, uint16(len(b.Streams)))

	offset := headerSize
	var body []byte
	for _, name := range b.Streams {
		data := streams[name]
		root = le.AppendUint32(root, uint32(offset))
		root = le.AppendUint32(root, uint32(len(data)))
		n := make([]byte, alignUp(len(name)+1, 4))
		copy(n, name)
		root = append(root, n...)

		switch name {
		case "#~":
			img.TablesOffset = offset
			img.RowsOffset = offset + rowsAt
		case "#Strings":
			img.StringsOffset = offset
		}
		body = append(body, data...)
		offset += len(data)
	}
	return append(root, body...)
}

// tables returns the #~ stream and the offset of its first row.
func (b *Builder) tables(strs, blobs *heap) ([]byte, int) {
	rows := map[int]int{tableModule: 1}
	if len(b.Types) > 0 {
		rows[tableTypeDef] = len(b.Types)
	}
	if b.Assembly != nil {
		rows[tableAssembly] = 1
	}
	if len(b.References) > 0 {
		rows[tableAssemblyRef] = len(b.References)
	}
	if len(b.Files) > 0 {
		rows[tableFile] = len(b.Files)
	}

	var valid uint64
	for t := range rows {
		valid |= 1 << t
	}

	le := binary.LittleEndian
	out := make([]byte, 24)
	out[4] = 2
	out[6] = b.HeapSizes
	out[7] = 1
	le.PutUint64(out[8:], valid)
	le.PutUint64(out[16:], b.Sorted&valid)
	for t := 0; t < 64; t++ {
		if valid&(1<<t) != 0 {
			out = le.AppendUint32(out, uint32(rows[t]))
		}
	}
	rowsAt := len(out)

	w := &rowWriter{buf: out}
	strW, guidW, blobW := 2, 2, 2
	if b.HeapSizes&0x1 != 0 {
		strW = 4
	}
	if b.HeapSizes&0x2 != 0 {
		guidW = 4
	}
	if b.HeapSizes&0x4 != 0 {
		blobW = 4
	}
	// TypeDefOrRef has two tag bits; TypeRef and TypeSpec are never written
	extendsW := 2
	if rows[tableTypeDef] >= 1<<14 {
		extendsW = 4
	}

	// Module
	w.put(2, 0)
	w.put(strW, strs.str(b.ModuleName))
	w.put(guidW, 1)
	w.put(guidW, 0)
	w.put(guidW, 0)

	for _, t := range b.Types {
		w.put(4, t.Flags)
		w.put(strW, strs.str(t.Name))
		w.put(strW, strs.str(t.Namespace))
		w.put(extendsW, t.Extends)
		w.put(2, 1) // FieldList
		w.put(2, 1) // MethodList
	}

	if a := b.Assembly; a != nil {
		w.put(4, 0x8004) // SHA1
		for _, v := range a.Version {
			w.put(2, uint32(v))
		}
		w.put(4, a.Flags)
		w.put(blobW, blobs.blob(a.PublicKey))
		w.put(strW, strs.str(a.Name))
		w.put(strW, strs.str(a.Culture))
	}

	for _, r := range b.References {
		for _, v := range r.Version {
			w.put(2, uint32(v))
		}
		w.put(4, r.Flags)
		w.put(blobW, blobs.blob(r.PublicKey))
		w.put(strW, strs.str(r.Name))
		w.put(strW, strs.str(r.Culture))
		w.put(blobW, 0)
	}

	for _, f := range b.Files {
		var flags uint32
		if f.NoMetadata {
			flags = 1
		}
		w.put(4, flags)
		w.put(strW, strs.str(f.Name))
		w.put(blobW, 0)
	}
	return w.buf, rowsAt
}

type rowWriter struct {
	buf []byte
}

func (w *rowWriter) put(width int, v uint32) {
	if width == 2 {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v))
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

type heap struct {
	buf  []byte
	seen map[string]uint32
}

func newHeap(initial int) *heap {
	return &heap{buf: make([]byte, initial), seen: map[string]uint32{}}
}

func (h *heap) str(s string) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := h.seen[s]; ok {
		return off
	}
	off := uint32(len(h.buf))
	h.buf = append(append(h.buf, s...), 0)
	h.seen[s] = off
	return off
}

func (h *heap) blob(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	off := uint32(len(h.buf))
	h.buf = CompressUint(h.buf, uint32(len(b)))
	h.buf = append(h.buf, b...)
	return off
}

func (h *heap) userString(s string) uint32 {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	u, err := enc.Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	off := uint32(len(h.buf))
	h.buf = CompressUint(h.buf, uint32(len(u)+1))
	h.buf = append(h.buf, u...)
	h.buf = append(h.buf, 0)
	return off
}

// CompressUint appends the ECMA-335 compressed encoding of v to b.
func CompressUint(b []byte, v uint32) []byte {
	switch {
	case v < 0x80:
		return append(b, byte(v))
	case v < 0x4000:
		return append(b, byte(v>>8)|0x80, byte(v))
	default:
		return append(b, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v))
	}
}

func mixedEndian(u uuid.UUID) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	copy(b[8:], u[8:])
	return b
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}
