package metadata

import (
	"encoding/binary"
	"strings"
	"testing"

	"gotest.tools/assert"
)

type streamSpec struct {
	name   string
	offset uint32
	size   uint32
}

// rootBytes encodes a metadata root of total bytes with the given version
// string and stream headers.
func rootBytes(version string, streams []streamSpec, total int) []byte {
	le := binary.LittleEndian
	v := make([]byte, (len(version)+4)&^3)
	copy(v, version)

	b := make([]byte, 16)
	le.PutUint32(b[0:], RootSignature)
	le.PutUint16(b[4:], 1)
	le.PutUint16(b[6:], 1)
	le.PutUint32(b[12:], uint32(len(v)))
	b = append(b, v...)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, uint16(len(streams)))
	for _, s := range streams {
		b = le.AppendUint32(b, s.offset)
		b = le.AppendUint32(b, s.size)
		name := make([]byte, (len(s.name)+4)&^3)
		copy(name, s.name)
		b = append(b, name...)
	}
	if total > len(b) {
		b = append(b, make([]byte, total-len(b))...)
	}
	return b
}

var defaultStreams = []streamSpec{
	{"#~", 0x80, 0x20},
	{"#Strings", 0xA0, 0x10},
	{"#US", 0xB0, 0x04},
	{"#GUID", 0xB4, 0x10},
	{"#Blob", 0xC4, 0x08},
}

func TestParseRoot(t *testing.T) {
	root, err := ParseRoot(rootBytes("v4.0.30319", defaultStreams, 0x100))
	assert.NilError(t, err)
	assert.Equal(t, "v4.0.30319", root.Version)
	assert.Equal(t, uint16(1), root.MajorVersion)
	assert.Equal(t, 5, len(root.Streams))

	ids := []StreamID{StreamTables, StreamStrings, StreamUserStrings, StreamGUID, StreamBlob}
	for i, s := range root.Streams {
		assert.Equal(t, defaultStreams[i].name, s.Name)
		assert.Equal(t, ids[i], s.ID, "stream %s", s.Name)
		assert.Equal(t, defaultStreams[i].offset, s.Offset)
		assert.Equal(t, defaultStreams[i].size, s.Size)
	}

	root, err = ParseRoot(rootBytes("Standard CLI 2005", defaultStreams[:1], 0x100))
	assert.NilError(t, err)
	assert.Equal(t, 1, len(root.Streams))
}

func TestParseRootRejects(t *testing.T) {
	le := binary.LittleEndian
	valid := func() []byte { return rootBytes("v4.0.30319", defaultStreams, 0x100) }
	// the version occupies 12 bytes, so the flags sit at 28 and the
	// first stream header at 32
	tests := []struct {
		name  string
		build func() []byte
	}{
		{"short", func() []byte { return valid()[:15] }},
		{"bad signature", func() []byte { b := valid(); b[0] = 'X'; return b }},
		{"major version", func() []byte { b := valid(); le.PutUint16(b[4:], 2); return b }},
		{"minor version", func() []byte { b := valid(); le.PutUint16(b[6:], 0); return b }},
		{"reserved", func() []byte { b := valid(); b[8] = 1; return b }},
		{"zero version length", func() []byte { b := valid(); le.PutUint32(b[12:], 0); return b }},
		{"unaligned version length", func() []byte { b := valid(); le.PutUint32(b[12:], 10); return b }},
		{"version length over 256", func() []byte { b := valid(); le.PutUint32(b[12:], 260); return b }},
		{"version past end", func() []byte { return valid()[:24] }},
		{"version not terminated", func() []byte { b := valid(); copy(b[16:28], "v4.0.3031999"); return b }},
		{"unsupported version", func() []byte { return rootBytes("v2.0.50727", defaultStreams, 0x100) }},
		{"flags", func() []byte { b := valid(); le.PutUint16(b[28:], 1); return b }},
		{"no streams", func() []byte { return rootBytes("v4.0.30319", nil, 0x100) }},
		{"six streams", func() []byte {
			return rootBytes("v4.0.30319", append(defaultStreams[:5:5], streamSpec{"#~", 0xF0, 0}), 0x100)
		}},
		{"duplicate stream", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{"#~", 0x80, 0x20}, {"#~", 0x80, 0x20}}, 0x100)
		}},
		{"unknown stream", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{"#~", 0x80, 0x20}, {"#Pdb", 0xA0, 0x10}}, 0x100)
		}},
		{"uncompressed tables stream", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{"#-", 0x80, 0x20}}, 0x100)
		}},
		{"missing tables stream", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{"#Strings", 0x80, 0x20}}, 0x100)
		}},
		{"stream name not terminated", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{strings.Repeat("#", 32), 0x80, 0x20}}, 0x100)
		}},
		{"unaligned stream offset", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{"#~", 0x82, 0x20}}, 0x100)
		}},
		{"unaligned stream size", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{"#~", 0x80, 0x1E}}, 0x100)
		}},
		{"stream outside metadata", func() []byte {
			return rootBytes("v4.0.30319", []streamSpec{{"#~", 0xF0, 0x20}}, 0x100)
		}},
		{"stream headers truncated", func() []byte { return valid()[:40] }},
	}

	for _, tc := range tests {
		_, err := ParseRoot(tc.build())
		assert.Equal(t, StageRoot, stageOf(t, err), "case %s", tc.name)
	}
}

func TestValidVersion(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"v4.0.30319", true},
		{"v4.0.0", true},
		{"v4.0.", false},
		{"v4.0.3031x", false},
		{"v4.0", false},
		{"v2.0.50727", false},
		{"Standard CLI 2005", true},
		{"Standard CLI 2010", true},
		{"Standard CLI 2004", false},
		{"Standard CLI 2011", false},
		{"Standard CLI 05", false},
		{"Standard CLI", false},
		{"", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, ValidVersion(tc.version), "version %q", tc.version)
	}
}
