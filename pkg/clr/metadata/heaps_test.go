package metadata

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gotest.tools/assert"

	"github.com/scottwis/tiny-sub001/internal/testimage"
	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
)

func TestDecodeCompressedUint(t *testing.T) {
	tests := []struct {
		in    []byte
		value uint32
		size  int
		ok    bool
	}{
		{[]byte{0x03}, 0x03, 1, true},
		{[]byte{0x7F}, 0x7F, 1, true},
		{[]byte{0x80, 0x80}, 0x80, 2, true},
		{[]byte{0xAE, 0x57}, 0x2E57, 2, true},
		{[]byte{0xBF, 0xFF}, 0x3FFF, 2, true},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 0x4000, 4, true},
		{[]byte{0xDF, 0xFF, 0xFF, 0xFF}, 0x1FFFFFFF, 4, true},
		{nil, 0, 0, false},
		{[]byte{0x80}, 0, 0, false},
		{[]byte{0xC0, 0x00, 0x00}, 0, 0, false},
		{[]byte{0xE0, 0x00, 0x00, 0x00}, 0, 0, false},
		{[]byte{0xFF}, 0, 0, false},
	}

	for _, tc := range tests {
		v, n, ok := DecodeCompressedUint(tc.in)
		assert.Equal(t, tc.ok, ok, "input % x", tc.in)
		assert.Equal(t, tc.value, v, "input % x", tc.in)
		assert.Equal(t, tc.size, n, "input % x", tc.in)
	}

	for _, v := range []uint32{0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0x123456, 0x1FFFFFFF} {
		b := testimage.CompressUint(nil, v)
		got, n, ok := DecodeCompressedUint(b)
		assert.Assert(t, ok)
		assert.Equal(t, v, got)
		assert.Equal(t, len(b), n)
	}
}

func TestHeaps(t *testing.T) {
	for _, heaps := range []uint8{0, 0x7} {
		b := testimage.New()
		b.HeapSizes = heaps
		b.UserStrings = []string{"hello", "", "héllo ✓ \U0001F600"}
		b.Assembly = &testimage.Identity{
			Name:      "Test",
			Version:   [4]uint16{1, 2, 3, 4},
			PublicKey: []byte{0x00, 0x24, 0x00, 0x00, 0x04, 0x80},
		}
		b.References = []testimage.Identity{{Name: "mscorlib", Version: [4]uint16{4, 0, 0, 0}}}
		b.Files = []testimage.File{{Name: "extra.netmodule"}}
		md, img := verifyBuilt(t, b)

		row, err := md.Table(TableModule).Row(0)
		assert.NilError(t, err)
		module := ModuleRow{row}

		name, err := md.String(module.NameOffset())
		assert.NilError(t, err)
		assert.Equal(t, "test.dll", name, "heap sizes %d", heaps)

		empty, err := md.String(0)
		assert.NilError(t, err)
		assert.Equal(t, "", empty)

		mvid, err := md.GUID(module.MvidIndex())
		assert.NilError(t, err)
		assert.Equal(t, b.MVID, mvid)

		nilGUID, err := md.GUID(module.EncIDIndex())
		assert.NilError(t, err)
		assert.Equal(t, uuid.Nil, nilGUID)
		nilGUID, err = md.GUID(module.EncBaseIndex())
		assert.NilError(t, err)
		assert.Equal(t, uuid.Nil, nilGUID)
		assert.Equal(t, uint16(0), module.Generation())

		for i, s := range b.UserStrings {
			got, err := md.UserString(img.UserStrings[i])
			assert.NilError(t, err)
			assert.Equal(t, s, got)
		}

		row, err = md.Table(TableAssembly).Row(0)
		assert.NilError(t, err)
		asm := AssemblyRow{row}
		assert.Equal(t, Version{1, 2, 3, 4}, asm.Version())
		key, err := md.Blob(asm.PublicKeyIndex())
		assert.NilError(t, err)
		assert.DeepEqual(t, b.Assembly.PublicKey, key)

		empty, err = md.String(asm.CultureOffset())
		assert.NilError(t, err)
		assert.Equal(t, "", empty)

		row, err = md.Table(TableAssemblyRef).Row(0)
		assert.NilError(t, err)
		ref := AssemblyRefRow{row}
		assert.Equal(t, Version{4, 0, 0, 0}, ref.Version())
		hash, err := md.Blob(ref.HashValueIndex())
		assert.NilError(t, err)
		assert.Equal(t, 0, len(hash))

		row, err = md.Table(TableFile).Row(0)
		assert.NilError(t, err)
		file := FileRow{row}
		assert.Assert(t, file.HasMetadata())
		hash, err = md.Blob(file.HashValueIndex())
		assert.NilError(t, err)
		assert.Equal(t, 0, len(hash))
	}
}

func TestHeapsRejectBadIndices(t *testing.T) {
	md, _ := verifyBuilt(t, testimage.New())

	_, err := md.String(0xFFFF)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	_, err = md.GUID(2)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	_, err = md.Blob(0xFFFF)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	_, err = md.UserString(0xFFFF)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
}

func TestHeapsMissingStreams(t *testing.T) {
	b := testimage.New()
	b.Streams = []string{"#~", "#Strings"}
	md, _ := verifyBuilt(t, b)

	assert.Assert(t, md.HasStream(StreamStrings))
	assert.Assert(t, !md.HasStream(StreamGUID))

	_, err := md.GUID(1)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	_, err = md.UserString(1)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	_, err = md.Blob(1)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))

	u, err := md.GUID(0)
	assert.NilError(t, err)
	assert.Equal(t, uuid.Nil, u)
}
