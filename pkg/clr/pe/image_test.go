package pe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"github.com/scottwis/tiny-sub001/internal/testimage"
	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
)

func TestImageBounds(t *testing.T) {
	img := FromBytes("mem", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})

	v16, err := img.U16(1)
	assert.NilError(t, err)
	assert.Equal(t, uint16(0x0302), v16)

	v32, err := img.U32(5)
	assert.NilError(t, err)
	assert.Equal(t, uint32(0x09080706), v32)

	v64, err := img.U64(1)
	assert.NilError(t, err)
	assert.Equal(t, uint64(0x0908070605040302), v64)

	_, err = img.U32(6)
	assert.Assert(t, err != nil)
	_, err = img.Slice(^uint64(0), 2)
	assert.Assert(t, err != nil)

	tail, err := img.Tail(9)
	assert.NilError(t, err)
	assert.Equal(t, 0, len(tail))
	_, err = img.Tail(10)
	assert.Assert(t, err != nil)
}

func TestImageClose(t *testing.T) {
	img := FromBytes("mem", make([]byte, 16))
	assert.Assert(t, img.Valid())
	assert.NilError(t, img.Close())
	assert.NilError(t, img.Close())
	assert.Assert(t, !img.Valid())

	_, err := img.U8(0)
	assert.Assert(t, errors.Is(err, errs.ErrUseAfterDispose))
	assert.Assert(t, errors.Is(img.CheckValid(), errs.ErrUseAfterDispose))
}

func TestStrLen(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		max  int
		n    int
		ok   bool
	}{
		{name: "terminated", in: []byte("#~\x00\x00"), max: 32, n: 2, ok: true},
		{name: "empty", in: []byte{0}, max: 1, n: 0, ok: true},
		{name: "limit before terminator", in: []byte("#Strings\x00"), max: 4, n: 4, ok: false},
		{name: "runs off slice", in: []byte("abc"), max: 32, n: 3, ok: false},
	}

	for _, tc := range tests {
		n, ok := StrLen(tc.in, tc.max)
		assert.Equal(t, tc.ok, ok, "ok %s", tc.name)
		assert.Equal(t, tc.n, n, "length %s", tc.name)
	}
}

func TestMmapMapper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.dll")
	built := testimage.New().Build()
	assert.NilError(t, os.WriteFile(path, built.Bytes, 0o644))

	img, err := Map(MmapMapper{}, path)
	assert.NilError(t, err)
	assert.Equal(t, len(built.Bytes), img.Len())
	assert.Equal(t, path, img.Name())

	_, err = Verify(img)
	assert.NilError(t, err)
	assert.NilError(t, img.Close())

	empty := filepath.Join(dir, "empty.dll")
	assert.NilError(t, os.WriteFile(empty, nil, 0o644))
	img, err = Map(MmapMapper{}, empty)
	assert.NilError(t, err)
	assert.Equal(t, 0, img.Len())
	assert.NilError(t, img.Close())
}

func TestMapMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.dll")
	_, err := Map(MmapMapper{}, path)
	assert.Assert(t, errors.Is(err, errs.ErrResourceUnavailable))
	assert.Assert(t, errors.Is(err, os.ErrNotExist))
	assert.Assert(t, cmp.Contains(err.Error(), path))
}
