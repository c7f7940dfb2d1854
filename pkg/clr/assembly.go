package clr

import (
	"encoding/hex"
	"fmt"

	"github.com/scottwis/tiny-sub001/pkg/clr/internal/contract"
	"github.com/scottwis/tiny-sub001/pkg/clr/lazy"
	"github.com/scottwis/tiny-sub001/pkg/clr/metadata"
	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

// Assembly is an opened managed image and the modules it references.
type Assembly struct {
	md   *metadata.Metadata
	opts *options
	main *Module

	name     lazy.Value[string]
	modules  lazy.Value[ModuleCollection]
	manifest lazy.Value[AssemblyIdentity]
}

func newAssembly(md *metadata.Metadata, o *options) *Assembly {
	a := &Assembly{md: contract.NotNil(md, "metadata"), opts: o}
	a.main = newModule(a, md, false)
	return a
}

func (a *Assembly) check() error {
	return a.md.Image().CheckValid()
}

// File returns the name the image was opened with.
func (a *Assembly) File() string {
	return a.md.Image().Name()
}

// Name returns the assembly name from the Assembly table, or the manifest
// module's name for an image without one.
func (a *Assembly) Name() (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	p, err := a.name.Get(func() (*string, error) {
		id, err := a.Manifest()
		if err != nil {
			return nil, err
		}
		if id != nil {
			return &id.Name, nil
		}
		name, err := a.main.Name()
		if err != nil {
			return nil, err
		}
		return &name, nil
	})
	if err != nil {
		return "", err
	}
	return *p, nil
}

// Modules returns the assembly's modules.
func (a *Assembly) Modules() (*ModuleCollection, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.modules.Get(func() (*ModuleCollection, error) {
		return newModuleCollection(a), nil
	})
}

// Manifest returns the identity in the Assembly table, or nil if the
// image is a module without one.
func (a *Assembly) Manifest() (*AssemblyIdentity, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	t := a.md.Table(metadata.TableAssembly)
	if t.Len() == 0 {
		return nil, nil
	}
	return a.manifest.Get(func() (*AssemblyIdentity, error) {
		row, err := t.Row(0)
		if err != nil {
			return nil, err
		}
		r := metadata.AssemblyRow{Row: row}
		return a.identity(r.NameOffset(), r.CultureOffset(), r.PublicKeyIndex(), r.Flags(), r.Version())
	})
}

// References returns the identities in the AssemblyRef table.
func (a *Assembly) References() ([]AssemblyIdentity, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	t := a.md.Table(metadata.TableAssemblyRef)
	refs := make([]AssemblyIdentity, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row, err := t.Row(i)
		if err != nil {
			return nil, err
		}
		r := metadata.AssemblyRefRow{Row: row}
		id, err := a.identity(r.NameOffset(), r.CultureOffset(), r.PublicKeyOrTokenIndex(), r.Flags(), r.Version())
		if err != nil {
			return nil, err
		}
		refs = append(refs, *id)
	}
	return refs, nil
}

func (a *Assembly) identity(name, culture, key, flags uint32, v metadata.Version) (*AssemblyIdentity, error) {
	id := &AssemblyIdentity{Version: v, Flags: flags}
	var err error
	if id.Name, err = a.md.String(name); err != nil {
		return nil, err
	}
	if id.Culture, err = a.md.String(culture); err != nil {
		return nil, err
	}
	if key != 0 {
		b, err := a.md.Blob(key)
		if err != nil {
			return nil, err
		}
		id.PublicKey = hex.EncodeToString(b)
	}
	return id, nil
}

// Info summarizes the image headers, streams and tables.
func (a *Assembly) Info() (*AssemblyInfo, error) {
	name, err := a.Name()
	if err != nil {
		return nil, err
	}
	manifest, err := a.Manifest()
	if err != nil {
		return nil, err
	}
	refs, err := a.References()
	if err != nil {
		return nil, err
	}

	f := a.md.File
	cli := a.md.CLI
	info := &AssemblyInfo{
		Name:            name,
		File:            a.File(),
		Machine:         pe.MachineTypeName(f.Header.Machine),
		Format:          f.Optional.Format.String(),
		DLL:             f.Header.IsDLL(),
		Subsystem:       f.Optional.Subsystem,
		RuntimeVersion:  fmt.Sprintf("%d.%d", cli.MajorRuntimeVersion, cli.MinorRuntimeVersion),
		MetadataVersion: a.md.Root.Version,
		CLIFlags:        cli.Flags,
		Manifest:        manifest,
		References:      refs,
	}
	if tok := metadata.Token(cli.EntryPointToken); !tok.IsNil() {
		info.EntryPoint = tok.String()
	}
	for i := range f.Sections {
		s := &f.Sections[i]
		info.Sections = append(info.Sections, SectionInfo{
			Index:          i + 1,
			Name:           s.NameString(),
			VirtualAddress: s.VirtualAddress,
			VirtualSize:    s.VirtualSize,
			RawOffset:      s.PointerToRawData,
			RawSize:        s.SizeOfRawData,
		})
	}
	for _, s := range a.md.Root.Streams {
		info.Streams = append(info.Streams, StreamInfo{Name: s.Name, Offset: s.Offset, Size: s.Size})
	}
	for t := metadata.TableID(0); t <= metadata.MaxTableID; t++ {
		if !a.md.Tables.IsPresent(t) {
			continue
		}
		tl := a.md.Layout.Table(t)
		info.Tables = append(info.Tables, TableInfo{
			Name:    t.String(),
			Rows:    tl.Rows,
			RowSize: tl.RowSize,
			Sorted:  a.md.Tables.IsSorted(t),
		})
	}
	return info, nil
}

// Close closes every loaded auxiliary module and then the image. Objects
// obtained from the assembly fail with errs.ErrUseAfterDispose afterwards.
// Close is idempotent.
func (a *Assembly) Close() error {
	if !a.md.Image().Valid() {
		return nil
	}
	var firstErr error
	if c := a.modules.Peek(); c != nil {
		c.list.Loaded(func(_ int, m *Module) {
			if err := m.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		})
	}
	if err := a.md.Image().Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
