package metadata

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/checked"
	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

const guidSize = 16

// DecodeCompressedUint decodes an ECMA-335 compressed unsigned integer
// (II.23.2) from the start of b, returning the value and its encoded size.
func DecodeCompressedUint(b []byte) (v uint32, n int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	switch {
	case b[0]&0x80 == 0:
		return uint32(b[0]), 1, true
	case b[0]&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, false
		}
		return uint32(b[0]&0x3F)<<8 | uint32(b[1]), 2, true
	case b[0]&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, false
		}
		return uint32(b[0]&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, true
	}
	return 0, 0, false
}

// String returns the NUL-terminated UTF-8 string at offset off of the
// #Strings heap.
func (md *Metadata) String(off uint32) (string, error) {
	heap, err := md.stream(StreamStrings)
	if err != nil {
		return "", err
	}
	if uint64(off) >= uint64(len(heap)) {
		return "", md.malformed("string offset 0x%x past #Strings heap of %d bytes", off, len(heap))
	}
	n, ok := pe.StrLen(heap[off:], len(heap)-int(off))
	if !ok {
		return "", md.malformed("string at 0x%x not terminated", off)
	}
	return string(heap[off : int(off)+n]), nil
}

// GUID returns the GUID at 1-based index idx of the #GUID heap. Index 0
// is the nil GUID. GUIDs are stored with their first three fields
// little-endian; the result is in RFC 4122 byte order.
func (md *Metadata) GUID(idx uint32) (uuid.UUID, error) {
	if idx == 0 {
		if err := md.img.CheckValid(); err != nil {
			return uuid.Nil, err
		}
		return uuid.Nil, nil
	}
	heap, err := md.stream(StreamGUID)
	if err != nil {
		return uuid.Nil, err
	}
	off := uint64(idx-1) * guidSize
	if !checked.Within(off, guidSize, uint64(len(heap))) {
		return uuid.Nil, md.malformed("GUID index %d past #GUID heap of %d bytes", idx, len(heap))
	}
	return guidFromMixedEndian(heap[off : off+guidSize]), nil
}

func guidFromMixedEndian(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}

// Blob returns the bytes of the blob at offset off of the #Blob heap.
func (md *Metadata) Blob(off uint32) ([]byte, error) {
	heap, err := md.stream(StreamBlob)
	if err != nil {
		return nil, err
	}
	return md.blobAt(heap, off, StreamBlob)
}

func (md *Metadata) blobAt(heap []byte, off uint32, id StreamID) ([]byte, error) {
	if uint64(off) >= uint64(len(heap)) {
		return nil, md.malformed("blob offset 0x%x past %s heap of %d bytes", off, id, len(heap))
	}
	size, n, ok := DecodeCompressedUint(heap[off:])
	if !ok {
		return nil, md.malformed("bad blob length at 0x%x in %s", off, id)
	}
	start := uint64(off) + uint64(n)
	if !checked.Within(start, uint64(size), uint64(len(heap))) {
		return nil, md.malformed("blob at 0x%x runs past %s heap", off, id)
	}
	return heap[start : start+uint64(size)], nil
}

// UserString returns the string at offset off of the #US heap. Entries
// are UTF-16LE followed by one flag byte.
func (md *Metadata) UserString(off uint32) (string, error) {
	heap, err := md.stream(StreamUserStrings)
	if err != nil {
		return "", err
	}
	b, err := md.blobAt(heap, off, StreamUserStrings)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	if len(b)%2 != 1 {
		return "", md.malformed("user string at 0x%x has even length %d", off, len(b))
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := dec.Bytes(b[:len(b)-1])
	if err != nil {
		return "", md.malformed("user string at 0x%x: %v", off, errors.Cause(err))
	}
	return string(s), nil
}
