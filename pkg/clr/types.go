package clr

import "github.com/scottwis/tiny-sub001/pkg/clr/metadata"

// AssemblyInfo summarizes the headers of a verified image.
type AssemblyInfo struct {
	Name            string             `json:"name" yaml:"name"`
	File            string             `json:"file" yaml:"file"`
	Machine         string             `json:"machine" yaml:"machine"`
	Format          string             `json:"format" yaml:"format"`
	DLL             bool               `json:"dll" yaml:"dll"`
	Subsystem       uint16             `json:"subsystem" yaml:"subsystem"`
	RuntimeVersion  string             `json:"runtime_version" yaml:"runtime_version"`
	MetadataVersion string             `json:"metadata_version" yaml:"metadata_version"`
	CLIFlags        uint32             `json:"cli_flags" yaml:"cli_flags"`
	EntryPoint      string             `json:"entry_point,omitempty" yaml:"entry_point,omitempty"`
	Sections        []SectionInfo      `json:"sections" yaml:"sections"`
	Streams         []StreamInfo       `json:"streams" yaml:"streams"`
	Tables          []TableInfo        `json:"tables" yaml:"tables"`
	Manifest        *AssemblyIdentity  `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	References      []AssemblyIdentity `json:"references,omitempty" yaml:"references,omitempty"`
}

// SectionInfo describes one PE section.
type SectionInfo struct {
	Index          int    `json:"index" yaml:"index"` // 1-based section index
	Name           string `json:"name" yaml:"name"`
	VirtualAddress uint32 `json:"virtual_address" yaml:"virtual_address"`
	VirtualSize    uint32 `json:"virtual_size" yaml:"virtual_size"`
	RawOffset      uint32 `json:"raw_offset" yaml:"raw_offset"`
	RawSize        uint32 `json:"raw_size" yaml:"raw_size"`
}

// StreamInfo describes one metadata stream.
type StreamInfo struct {
	Name   string `json:"name" yaml:"name"`
	Offset uint32 `json:"offset" yaml:"offset"` // relative to the metadata root
	Size   uint32 `json:"size" yaml:"size"`
}

// TableInfo describes one present metadata table.
type TableInfo struct {
	Name    string `json:"name" yaml:"name"`
	Rows    uint32 `json:"rows" yaml:"rows"`
	RowSize int    `json:"row_size" yaml:"row_size"`
	Sorted  bool   `json:"sorted" yaml:"sorted"`
}

// AssemblyIdentity is the identity recorded in an Assembly or AssemblyRef
// row.
type AssemblyIdentity struct {
	Name      string           `json:"name" yaml:"name"`
	Version   metadata.Version `json:"version" yaml:"version"`
	Culture   string           `json:"culture,omitempty" yaml:"culture,omitempty"`
	Flags     uint32           `json:"flags" yaml:"flags"`
	PublicKey string           `json:"public_key,omitempty" yaml:"public_key,omitempty"` // hex
}

// ModuleInfo summarizes one module of an assembly.
type ModuleInfo struct {
	Index       int    `json:"index" yaml:"index"`
	Name        string `json:"name" yaml:"name"`
	HasMetadata bool   `json:"has_metadata" yaml:"has_metadata"`
	GUID        string `json:"guid,omitempty" yaml:"guid,omitempty"`
	Types       int    `json:"types" yaml:"types"`
}

// TypeInfo describes a type definition.
type TypeInfo struct {
	Token      string `json:"token" yaml:"token"`
	Namespace  string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Name       string `json:"name" yaml:"name"`
	FullName   string `json:"full_name" yaml:"full_name"`
	Visibility string `json:"visibility" yaml:"visibility"`
	Flags      uint32 `json:"flags" yaml:"flags"`
	Extends    string `json:"extends,omitempty" yaml:"extends,omitempty"`
}
