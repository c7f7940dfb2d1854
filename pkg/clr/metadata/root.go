package metadata

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/internal/checked"
	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

// RootSignature is "BSJB" read as a little-endian uint32.
const RootSignature = 0x424A5342

const (
	rootFixedSize     = 16 // signature, versions, reserved, length
	maxVersionLength  = 256
	maxStreams        = 5
	maxStreamNameSize = 32
	streamHeaderFixed = 8
)

// StreamID identifies one of the metadata streams.
type StreamID int

const (
	StreamStrings StreamID = iota
	StreamUserStrings
	StreamBlob
	StreamGUID
	StreamTables
	numStreams
)

var streamNames = map[string]StreamID{
	"#Strings": StreamStrings,
	"#US":      StreamUserStrings,
	"#Blob":    StreamBlob,
	"#GUID":    StreamGUID,
	"#~":       StreamTables,
}

func (id StreamID) String() string {
	for name, v := range streamNames {
		if v == id {
			return name
		}
	}
	return "stream(" + strconv.Itoa(int(id)) + ")"
}

// StreamHeader locates one stream relative to the metadata root.
type StreamHeader struct {
	ID     StreamID `json:"-" yaml:"-"`
	Name   string   `json:"name" yaml:"name"`
	Offset uint32   `json:"offset" yaml:"offset"`
	Size   uint32   `json:"size" yaml:"size"`
}

// Root is the decoded metadata root.
type Root struct {
	MajorVersion uint16         `json:"major_version" yaml:"major_version"`
	MinorVersion uint16         `json:"minor_version" yaml:"minor_version"`
	Version      string         `json:"version" yaml:"version"`
	Flags        uint16         `json:"flags" yaml:"flags"`
	Streams      []StreamHeader `json:"streams" yaml:"streams"`
}

// ParseRoot decodes and verifies the metadata root held in b, whose length
// is the size declared by the CLR header. Every offset is checked against
// len(b) before it is used.
func ParseRoot(b []byte) (*Root, error) {
	limit := uint64(len(b))
	if limit < rootFixedSize {
		return nil, errs.Verify(StageRoot, "metadata is %d bytes", limit)
	}

	le := binary.LittleEndian
	if sig := le.Uint32(b[0:]); sig != RootSignature {
		return nil, errs.Verify(StageRoot, "bad signature 0x%08x", sig)
	}
	root := &Root{
		MajorVersion: le.Uint16(b[4:]),
		MinorVersion: le.Uint16(b[6:]),
	}
	if root.MajorVersion != 1 || root.MinorVersion != 1 {
		return nil, errs.Verify(StageRoot, "unsupported metadata version %d.%d", root.MajorVersion, root.MinorVersion)
	}
	if reserved := le.Uint32(b[8:]); reserved != 0 {
		return nil, errs.Verify(StageRoot, "reserved field is 0x%x", reserved)
	}

	length := uint64(le.Uint32(b[12:]))
	if length == 0 || length > maxVersionLength || !checked.IsAligned(length, 4) {
		return nil, errs.Verify(StageRoot, "bad version length %d", length)
	}
	if !checked.Within(rootFixedSize, length, limit) {
		return nil, errs.Verify(StageRoot, "version string runs past metadata")
	}
	n, ok := pe.StrLen(b[rootFixedSize:], int(length))
	if !ok {
		return nil, errs.Verify(StageRoot, "version string not terminated")
	}
	root.Version = string(b[rootFixedSize : rootFixedSize+n])
	if !ValidVersion(root.Version) {
		return nil, errs.Verify(StageRoot, "unsupported version string %q", root.Version)
	}

	pos := rootFixedSize + length
	if !checked.Within(pos, 4, limit) {
		return nil, errs.Verify(StageRoot, "stream count runs past metadata")
	}
	root.Flags = le.Uint16(b[pos:])
	count := le.Uint16(b[pos+2:])
	pos += 4
	if root.Flags != 0 {
		return nil, errs.Verify(StageRoot, "flags are 0x%x", root.Flags)
	}
	if count < 1 || count > maxStreams {
		return nil, errs.Verify(StageRoot, "bad stream count %d", count)
	}

	var seen [numStreams]bool
	root.Streams = make([]StreamHeader, 0, count)
	for i := 0; i < int(count); i++ {
		sh, next, err := parseStreamHeader(b, pos)
		if err != nil {
			return nil, err
		}
		if seen[sh.ID] {
			return nil, errs.Verify(StageRoot, "duplicate stream %s", sh.Name)
		}
		seen[sh.ID] = true
		root.Streams = append(root.Streams, sh)
		pos = next
	}
	if !seen[StreamTables] {
		return nil, errs.Verify(StageRoot, "no #~ stream")
	}
	return root, nil
}

func parseStreamHeader(b []byte, pos uint64) (StreamHeader, uint64, error) {
	limit := uint64(len(b))
	if !checked.Within(pos, streamHeaderFixed, limit) {
		return StreamHeader{}, 0, errs.Verify(StageRoot, "stream header runs past metadata")
	}
	sh := StreamHeader{
		Offset: binary.LittleEndian.Uint32(b[pos:]),
		Size:   binary.LittleEndian.Uint32(b[pos+4:]),
	}
	pos += streamHeaderFixed

	n, ok := pe.StrLen(b[pos:], maxStreamNameSize)
	if !ok {
		return StreamHeader{}, 0, errs.Verify(StageRoot, "stream name not terminated")
	}
	sh.Name = string(b[pos : pos+uint64(n)])
	padded, _ := checked.AlignUp(uint64(n)+1, 4)
	if !checked.Within(pos, padded, limit) {
		return StreamHeader{}, 0, errs.Verify(StageRoot, "stream name runs past metadata")
	}
	pos += padded

	id, ok := streamNames[sh.Name]
	if !ok {
		return StreamHeader{}, 0, errs.Verify(StageRoot, "unknown stream %q", sh.Name)
	}
	sh.ID = id

	if !checked.IsAligned(sh.Offset, 4) || !checked.IsAligned(sh.Size, 4) {
		return StreamHeader{}, 0, errs.Verify(StageRoot, "stream %s not 4 byte aligned", sh.Name)
	}
	if !checked.Within(uint64(sh.Offset), uint64(sh.Size), limit) {
		return StreamHeader{}, 0, errs.Verify(StageRoot, "stream %s outside metadata", sh.Name)
	}
	return sh, pos, nil
}

// ValidVersion reports whether s is an accepted metadata version string:
// "v4.0." followed by a build number, or "Standard CLI " followed by a year
// from 2005 to 2010.
func ValidVersion(s string) bool {
	if build, ok := strings.CutPrefix(s, "v4.0."); ok {
		if build == "" {
			return false
		}
		for _, c := range build {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	}
	if year, ok := strings.CutPrefix(s, "Standard CLI "); ok {
		if len(year) != 4 {
			return false
		}
		y, err := strconv.Atoi(year)
		return err == nil && y >= 2005 && y <= 2010
	}
	return false
}
