package metadata

import (
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
)

// HeapID identifies a metadata heap.
type HeapID int

const (
	HeapStrings HeapID = iota
	HeapGUID
	HeapBlob
	HeapUserStrings
)

func (h HeapID) String() string {
	switch h {
	case HeapStrings:
		return "#Strings"
	case HeapGUID:
		return "#GUID"
	case HeapBlob:
		return "#Blob"
	case HeapUserStrings:
		return "#US"
	}
	return "heap(?)"
}

// HeapSizes is the HeapSizes byte of the #~ header.
type HeapSizes uint8

// HeapSizes bits
const (
	HeapSizesLargeStrings HeapSizes = 0x01
	HeapSizesLargeGUID    HeapSizes = 0x02
	HeapSizesLargeBlob    HeapSizes = 0x04

	heapSizesKnown = HeapSizesLargeStrings | HeapSizesLargeGUID | HeapSizesLargeBlob
)

// IndexWidth returns the width in bytes (2 or 4) of an index into heap.
// Only the #Strings, #GUID and #Blob heaps are indexed from table rows;
// asking for any other heap is a bug in the caller.
func (h HeapSizes) IndexWidth(heap HeapID) int {
	var bit HeapSizes
	switch heap {
	case HeapStrings:
		bit = HeapSizesLargeStrings
	case HeapGUID:
		bit = HeapSizesLargeGUID
	case HeapBlob:
		bit = HeapSizesLargeBlob
	default:
		contract.Check(false, "no index width for heap %s", heap)
	}
	if h&bit != 0 {
		return 4
	}
	return 2
}
