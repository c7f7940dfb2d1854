// Package pe implements the PE/COFF container layer of a managed image:
// the mapped byte view, the PE header codecs, the verifier for the PE
// stages and the section locator.
package pe

import (
	"encoding/binary"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/checked"
)

// errBounds is returned by the image accessors for reads past the end.
var errBounds = errors.New("read past end of image")

// Mapper maps a file into memory. The returned unmap func releases the
// mapping and may be nil.
type Mapper interface {
	Map(path string) (data []byte, unmap func() error, err error)
}

// MmapMapper maps files read-only with mmap.
type MmapMapper struct{}

// Map implements Mapper.
func (MmapMapper) Map(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if fi.Size() == 0 {
		// mmap rejects empty files; an empty image is simply malformed.
		return []byte{}, nil, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Unmap, nil
}

// Image is an immutable, length-tagged view over the bytes of a file.
// Every accessor checks bounds against Len before reading.
type Image struct {
	name   string
	data   []byte
	unmap  func() error
	closed atomic.Bool
}

// Map opens the file at path through m.
func Map(m Mapper, path string) (*Image, error) {
	data, unmap, err := m.Map(path)
	if err != nil {
		return nil, errs.Unavailable(path, err)
	}
	return &Image{name: path, data: data, unmap: unmap}, nil
}

// FromBytes wraps a caller owned buffer. The buffer must not be modified
// while the image is in use.
func FromBytes(name string, data []byte) *Image {
	return &Image{name: name, data: data}
}

// Name returns the path or name the image was created with.
func (img *Image) Name() string {
	return img.name
}

// Len returns the size of the image in bytes.
func (img *Image) Len() int {
	return len(img.data)
}

// Valid reports whether the image is still open.
func (img *Image) Valid() bool {
	return !img.closed.Load()
}

// CheckValid returns ErrUseAfterDispose once the image is closed.
func (img *Image) CheckValid() error {
	if img.closed.Load() {
		return errs.Disposed(img.name)
	}
	return nil
}

// Close releases the mapping. Callers must ensure no other goroutine is
// inside an accessor when Close is called.
func (img *Image) Close() error {
	if img.closed.Swap(true) {
		return nil
	}
	unmap := img.unmap
	img.data, img.unmap = nil, nil
	if unmap != nil {
		return unmap()
	}
	return nil
}

// Slice returns the n bytes at off.
func (img *Image) Slice(off, n uint64) ([]byte, error) {
	if err := img.CheckValid(); err != nil {
		return nil, err
	}
	if !checked.Within(off, n, uint64(len(img.data))) {
		return nil, errors.Wrapf(errBounds, "%d bytes at 0x%x", n, off)
	}
	return img.data[off : off+n : off+n], nil
}

// Tail returns every byte from off to the end of the image.
func (img *Image) Tail(off uint64) ([]byte, error) {
	if err := img.CheckValid(); err != nil {
		return nil, err
	}
	if off > uint64(len(img.data)) {
		return nil, errors.Wrapf(errBounds, "offset 0x%x", off)
	}
	return img.data[off:], nil
}

// U8 reads the byte at off.
func (img *Image) U8(off uint64) (uint8, error) {
	b, err := img.Slice(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16 at off.
func (img *Image) U16(off uint64) (uint16, error) {
	b, err := img.Slice(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32 at off.
func (img *Image) U32(off uint64) (uint32, error) {
	b, err := img.Slice(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64 at off.
func (img *Image) U64(off uint64) (uint64, error) {
	b, err := img.Slice(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// StrLen returns the length of the NUL-terminated run at the start of b,
// scanning at most max bytes. ok is false if no terminator was found.
func StrLen(b []byte, max int) (n int, ok bool) {
	if max > len(b) {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		if b[i] == 0 {
			return i, true
		}
	}
	return max, false
}
