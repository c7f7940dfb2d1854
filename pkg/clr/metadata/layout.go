package metadata

import (
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/checked"
)

// ColumnLayout is a column placed at a byte offset within a row.
type ColumnLayout struct {
	Column
	Offset int
	Width  int
}

// TableLayout places one table inside the #~ stream.
type TableLayout struct {
	ID      TableID
	Rows    uint32
	RowSize int
	Offset  uint64 // from the start of the #~ stream
	Columns []ColumnLayout
}

// Layout holds the row layout of every known table for one image. Widths
// of heap, table and coded indices depend on the header's HeapSizes and
// row counts, so each column's offset is the previous column's offset
// plus its resolved width.
type Layout struct {
	Tables [NumTables]TableLayout

	// End is the offset just past the last row of the last present table.
	End uint64
}

// NewLayout computes the layout of every table described by h. ok is
// false if the total size overflows.
func NewLayout(h *TableHeader) (*Layout, bool) {
	l := &Layout{}
	pos := uint64(TableHeaderSize(h.Valid))
	for t := TableID(0); int(t) < NumTables; t++ {
		tl := &l.Tables[t]
		tl.ID = t
		tl.Rows = h.RowCount(t)
		cols := Columns(t)
		tl.Columns = make([]ColumnLayout, len(cols))
		off := 0
		for i, c := range cols {
			w := ColumnWidth(h, c)
			tl.Columns[i] = ColumnLayout{Column: c, Offset: off, Width: w}
			off += w
		}
		tl.RowSize = off

		if !h.IsPresent(t) {
			continue
		}
		tl.Offset = pos
		size, ok := checked.Mul(uint64(tl.Rows), uint64(tl.RowSize))
		if !ok {
			return nil, false
		}
		if pos, ok = checked.Add(pos, size); !ok {
			return nil, false
		}
	}
	l.End = pos
	return l, true
}

// ColumnWidth returns the width in bytes of column c for the table header h.
func ColumnWidth(h *TableHeader, c Column) int {
	switch c.Kind {
	case KindHeap:
		return h.HeapSizes.IndexWidth(c.Heap)
	case KindIndex:
		if h.RowCount(c.Table) < 1<<16 {
			return 2
		}
		return 4
	case KindCoded:
		var max uint32
		for _, t := range c.Coded.Tables {
			if t == tableUnused {
				continue
			}
			if n := h.RowCount(t); n > max {
				max = n
			}
		}
		if max < 1<<(16-c.Coded.TagBits) {
			return 2
		}
		return 4
	}
	return c.Size
}

// Table returns the layout of table t.
func (l *Layout) Table(t TableID) *TableLayout {
	return &l.Tables[t]
}

// Column returns the layout of the named column, or nil.
func (tl *TableLayout) Column(name string) *ColumnLayout {
	for i := range tl.Columns {
		if tl.Columns[i].Name == name {
			return &tl.Columns[i]
		}
	}
	return nil
}
