package metadata

import (
	"encoding/binary"
	"fmt"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
)

// Row is one row of a metadata table. It does not own memory: b is the
// row's slice of the image.
type Row struct {
	layout *TableLayout
	index  int
	b      []byte
}

// NewRow wraps the bytes of row index of the table laid out by tl.
func NewRow(tl *TableLayout, index int, b []byte) Row {
	contract.MinLen(b, tl.RowSize, tl.ID.String()+" row")
	return Row{layout: tl, index: index, b: b[:tl.RowSize]}
}

// Table returns the table the row belongs to.
func (r Row) Table() TableID {
	return r.layout.ID
}

// Index returns the 0-based row index.
func (r Row) Index() int {
	return r.index
}

// Token returns the metadata token of the row.
func (r Row) Token() Token {
	return NewToken(r.layout.ID, uint32(r.index+1))
}

// NumColumns returns the number of columns in the row.
func (r Row) NumColumns() int {
	return len(r.layout.Columns)
}

// ColumnName returns the schema name of column i.
func (r Row) ColumnName(i int) string {
	return r.layout.Columns[i].Name
}

// Column reads column i, widened to uint32.
func (r Row) Column(i int) uint32 {
	contract.InRange(i, 0, len(r.layout.Columns), "column")
	c := &r.layout.Columns[i]
	switch c.Width {
	case 1:
		return uint32(r.b[c.Offset])
	case 2:
		return uint32(binary.LittleEndian.Uint16(r.b[c.Offset:]))
	case 4:
		return binary.LittleEndian.Uint32(r.b[c.Offset:])
	}
	contract.Check(false, "column %s has width %d", c.Name, c.Width)
	return 0
}

// Coded reads column i as a coded index and decodes it to a token.
func (r Row) Coded(i int) (Token, bool) {
	c := &r.layout.Columns[i]
	contract.Check(c.Kind == KindCoded, "column %s is not a coded index", c.Name)
	return c.Coded.Decode(r.Column(i))
}

// Version is a four part assembly version.
type Version struct {
	Major    uint16 `json:"major" yaml:"major"`
	Minor    uint16 `json:"minor" yaml:"minor"`
	Build    uint16 `json:"build" yaml:"build"`
	Revision uint16 `json:"revision" yaml:"revision"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// ModuleRow is a row of the Module table.
type ModuleRow struct{ Row }

func (r ModuleRow) Generation() uint16   { return uint16(r.Column(0)) }
func (r ModuleRow) NameOffset() uint32   { return r.Column(1) }
func (r ModuleRow) MvidIndex() uint32    { return r.Column(2) }
func (r ModuleRow) EncIDIndex() uint32   { return r.Column(3) }
func (r ModuleRow) EncBaseIndex() uint32 { return r.Column(4) }

// TypeDef flags
const (
	TypeVisibilityMask     = 0x00000007
	TypeNotPublic          = 0x00000000
	TypePublic             = 0x00000001
	TypeNestedPublic       = 0x00000002
	TypeNestedPrivate      = 0x00000003
	TypeNestedFamily       = 0x00000004
	TypeNestedAssembly     = 0x00000005
	TypeNestedFamANDAssem  = 0x00000006
	TypeNestedFamORAssem   = 0x00000007
	TypeClassSemanticsMask = 0x00000020
	TypeInterface          = 0x00000020
	TypeAbstract           = 0x00000080
	TypeSealed             = 0x00000100
	TypeSpecialName        = 0x00000400
)

// TypeDefRow is a row of the TypeDef table.
type TypeDefRow struct{ Row }

func (r TypeDefRow) Flags() uint32           { return r.Column(0) }
func (r TypeDefRow) NameOffset() uint32      { return r.Column(1) }
func (r TypeDefRow) NamespaceOffset() uint32 { return r.Column(2) }
func (r TypeDefRow) Extends() (Token, bool)  { return r.Coded(3) }
func (r TypeDefRow) FieldList() uint32       { return r.Column(4) }
func (r TypeDefRow) MethodList() uint32      { return r.Column(5) }

// AssemblyRow is a row of the Assembly table.
type AssemblyRow struct{ Row }

func (r AssemblyRow) HashAlgID() uint32      { return r.Column(0) }
func (r AssemblyRow) Flags() uint32          { return r.Column(5) }
func (r AssemblyRow) PublicKeyIndex() uint32 { return r.Column(6) }
func (r AssemblyRow) NameOffset() uint32     { return r.Column(7) }
func (r AssemblyRow) CultureOffset() uint32  { return r.Column(8) }

// Version returns the assembly version.
func (r AssemblyRow) Version() Version {
	return Version{
		Major:    uint16(r.Column(1)),
		Minor:    uint16(r.Column(2)),
		Build:    uint16(r.Column(3)),
		Revision: uint16(r.Column(4)),
	}
}

// AssemblyRefRow is a row of the AssemblyRef table.
type AssemblyRefRow struct{ Row }

func (r AssemblyRefRow) Flags() uint32                 { return r.Column(4) }
func (r AssemblyRefRow) PublicKeyOrTokenIndex() uint32 { return r.Column(5) }
func (r AssemblyRefRow) NameOffset() uint32            { return r.Column(6) }
func (r AssemblyRefRow) CultureOffset() uint32         { return r.Column(7) }
func (r AssemblyRefRow) HashValueIndex() uint32        { return r.Column(8) }

// Version returns the referenced assembly version.
func (r AssemblyRefRow) Version() Version {
	return Version{
		Major:    uint16(r.Column(0)),
		Minor:    uint16(r.Column(1)),
		Build:    uint16(r.Column(2)),
		Revision: uint16(r.Column(3)),
	}
}

// File flags
const (
	FileContainsMetaData   = 0x0000
	FileContainsNoMetaData = 0x0001
)

// FileRow is a row of the File table.
type FileRow struct{ Row }

func (r FileRow) Flags() uint32          { return r.Column(0) }
func (r FileRow) NameOffset() uint32     { return r.Column(1) }
func (r FileRow) HashValueIndex() uint32 { return r.Column(2) }

// HasMetadata reports whether the file is a module rather than a plain
// resource file.
func (r FileRow) HasMetadata() bool {
	return r.Flags()&FileContainsNoMetaData == 0
}
