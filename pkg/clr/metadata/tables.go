package metadata

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
)

// TableID identifies a metadata table (ECMA-335 II.22).
type TableID uint8

// Metadata tables
const (
	TableModule                 TableID = 0x00
	TableTypeRef                TableID = 0x01
	TableTypeDef                TableID = 0x02
	TableFieldPtr               TableID = 0x03
	TableField                  TableID = 0x04
	TableMethodPtr              TableID = 0x05
	TableMethodDef              TableID = 0x06
	TableParamPtr               TableID = 0x07
	TableParam                  TableID = 0x08
	TableInterfaceImpl          TableID = 0x09
	TableMemberRef              TableID = 0x0A
	TableConstant               TableID = 0x0B
	TableCustomAttribute        TableID = 0x0C
	TableFieldMarshal           TableID = 0x0D
	TableDeclSecurity           TableID = 0x0E
	TableClassLayout            TableID = 0x0F
	TableFieldLayout            TableID = 0x10
	TableStandAloneSig          TableID = 0x11
	TableEventMap               TableID = 0x12
	TableEventPtr               TableID = 0x13
	TableEvent                  TableID = 0x14
	TablePropertyMap            TableID = 0x15
	TablePropertyPtr            TableID = 0x16
	TableProperty               TableID = 0x17
	TableMethodSemantics        TableID = 0x18
	TableMethodImpl             TableID = 0x19
	TableModuleRef              TableID = 0x1A
	TableTypeSpec               TableID = 0x1B
	TableImplMap                TableID = 0x1C
	TableFieldRVA               TableID = 0x1D
	TableEncLog                 TableID = 0x1E
	TableEncMap                 TableID = 0x1F
	TableAssembly               TableID = 0x20
	TableAssemblyProcessor      TableID = 0x21
	TableAssemblyOS             TableID = 0x22
	TableAssemblyRef            TableID = 0x23
	TableAssemblyRefProcessor   TableID = 0x24
	TableAssemblyRefOS          TableID = 0x25
	TableFile                   TableID = 0x26
	TableExportedType           TableID = 0x27
	TableManifestResource       TableID = 0x28
	TableNestedClass            TableID = 0x29
	TableGenericParam           TableID = 0x2A
	TableMethodSpec             TableID = 0x2B
	TableGenericParamConstraint TableID = 0x2C

	// MaxTableID is the highest table ID this reader understands.
	MaxTableID = TableGenericParamConstraint
)

// NumTables is the number of known tables.
const NumTables = int(MaxTableID) + 1

func (t TableID) String() string {
	if int(t) < NumTables {
		return schema[t].name
	}
	return fmt.Sprintf("Table(0x%02x)", uint8(t))
}

// TableHeaderFixedSize is the size of the #~ header before the row counts.
const TableHeaderFixedSize = 24

// TableHeader is the header at the start of the #~ stream.
type TableHeader struct {
	Reserved0    uint32
	MajorVersion uint8
	MinorVersion uint8
	HeapSizes    HeapSizes
	Reserved1    uint8
	Valid        uint64
	Sorted       uint64

	// rows holds one count per bit set in Valid, in ascending table order.
	rows [64]uint32
}

// TableHeaderSize returns the full header size, row counts included, for
// a Valid mask.
func TableHeaderSize(valid uint64) int {
	return TableHeaderFixedSize + 4*bits.OnesCount64(valid)
}

// DecodeTableHeader decodes a #~ header from the start of b. b must hold
// at least TableHeaderSize(valid) bytes.
func DecodeTableHeader(b []byte) TableHeader {
	contract.MinLen(b, TableHeaderFixedSize, "table header")
	le := binary.LittleEndian
	h := TableHeader{
		Reserved0:    le.Uint32(b[0:]),
		MajorVersion: b[4],
		MinorVersion: b[5],
		HeapSizes:    HeapSizes(b[6]),
		Reserved1:    b[7],
		Valid:        le.Uint64(b[8:]),
		Sorted:       le.Uint64(b[16:]),
	}
	n := bits.OnesCount64(h.Valid)
	contract.MinLen(b, TableHeaderFixedSize+4*n, "table row counts")
	for i := 0; i < n; i++ {
		h.rows[i] = le.Uint32(b[TableHeaderFixedSize+4*i:])
	}
	return h
}

// IsPresent reports whether table t has its bit set in Valid.
func (h *TableHeader) IsPresent(t TableID) bool {
	return t < 64 && h.Valid&(1<<t) != 0
}

// IsSorted reports whether table t has its bit set in Sorted.
func (h *TableHeader) IsSorted(t TableID) bool {
	return t < 64 && h.Sorted&(1<<t) != 0
}

// RowCount returns the number of rows in table t. The count of a present
// table sits at the index given by the number of present tables below it.
func (h *TableHeader) RowCount(t TableID) uint32 {
	if !h.IsPresent(t) {
		return 0
	}
	below := h.Valid & (uint64(1)<<t - 1)
	return h.rows[bits.OnesCount64(below)]
}
