package pe

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
)

func section(va, size uint32) SectionHeader {
	return SectionHeader{VirtualAddress: va, VirtualSize: size, SizeOfRawData: size, PointerToRawData: va / 4}
}

// findLinear is the reference: the last section starting at or below va
// that still covers it.
func findLinear(ss Sections, va uint32) int {
	found := -1
	for i := range ss {
		if ss[i].VirtualAddress <= va {
			found = i
		}
	}
	if found < 0 || uint64(va) > uint64(ss[found].VirtualAddress)+uint64(ss[found].VirtualSize) {
		return -1
	}
	return found
}

func TestSectionsFindPinned(t *testing.T) {
	ss := Sections{section(0x1000, 0x800), section(0x2000, 0x1000), section(0x4000, 0x10)}

	tests := []struct {
		name     string
		va       uint32
		expected int
	}{
		{name: "before first", va: 0xFFF, expected: -1},
		{name: "first start", va: 0x1000, expected: 0},
		{name: "inside first", va: 0x1234, expected: 0},
		{name: "end of first inclusive", va: 0x1800, expected: 0},
		{name: "gap after first", va: 0x1801, expected: -1},
		{name: "second start", va: 0x2000, expected: 1},
		{name: "end of second", va: 0x3000, expected: 1},
		{name: "third", va: 0x4008, expected: 2},
		{name: "past last", va: 0x4011, expected: -1},
	}

	for _, tc := range tests {
		s, ok := ss.Find(tc.va)
		if tc.expected < 0 {
			assert.Assert(t, !ok, "case %s", tc.name)
			continue
		}
		assert.Assert(t, ok, "case %s", tc.name)
		assert.Equal(t, &ss[tc.expected], s, "case %s", tc.name)
	}
}

func TestSectionsFindMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for round := 0; round < 200; round++ {
		n := 1 + r.Intn(12)
		ss := make(Sections, n)
		va := uint32(0x1000)
		for i := range ss {
			va += uint32(1 + r.Intn(0x3000))
			ss[i] = section(va, uint32(r.Intn(0x2000)))
		}
		limit := int(va) + 0x4000
		for probe := 0; probe < 100; probe++ {
			va := uint32(r.Intn(limit))
			want := findLinear(ss, va)
			got, ok := ss.Find(va)
			if want < 0 {
				assert.Assert(t, !ok, "round %d va 0x%x", round, va)
			} else {
				assert.Assert(t, ok, "round %d va 0x%x", round, va)
				assert.Equal(t, &ss[want], got, "round %d va 0x%x", round, va)
			}
		}
	}
}

func TestSectionsToOffset(t *testing.T) {
	ss := Sections{
		{VirtualAddress: 0x2000, VirtualSize: 0x300, SizeOfRawData: 0x200, PointerToRawData: 0x400},
	}

	off, ok := ss.ToOffset(0x2010, 0x10)
	assert.Assert(t, ok)
	assert.Equal(t, uint64(0x410), off)

	// mapped but beyond the raw data
	_, ok = ss.ToOffset(0x2250, 4)
	assert.Assert(t, !ok)
	_, ok = ss.ToOffset(0x21F0, 0x20)
	assert.Assert(t, !ok)
	_, ok = ss.ToOffset(0x1000, 4)
	assert.Assert(t, !ok)
}

func TestCheckContiguous(t *testing.T) {
	tests := []struct {
		name     string
		sections Sections
		ok       bool
	}{
		{name: "single", sections: Sections{section(0x2000, 0x10)}, ok: true},
		{name: "adjacent after alignment", sections: Sections{section(0x2000, 0x10), section(0x4000, 0x2000), section(0x6000, 1)}, ok: true},
		{name: "raw size when virtual size is zero", sections: Sections{{VirtualAddress: 0x2000, SizeOfRawData: 0x2200}, section(0x6000, 1)}, ok: true},
		{name: "gap", sections: Sections{section(0x2000, 0x10), section(0x6000, 0x10)}, ok: false},
		{name: "overlap", sections: Sections{section(0x2000, 0x2001), section(0x4000, 0x10)}, ok: false},
		{name: "descending", sections: Sections{section(0x4000, 0x10), section(0x2000, 0x10)}, ok: false},
		{name: "overflow", sections: Sections{section(0xFFFFE000, 0x1000), section(0, 0x10)}, ok: false},
	}

	for _, tc := range tests {
		err := CheckContiguous(tc.sections, 0x2000)
		if tc.ok {
			assert.NilError(t, err, "case %s", tc.name)
			continue
		}
		assert.Assert(t, errors.Is(err, errs.ErrMalformedImage), "case %s", tc.name)
	}
}
