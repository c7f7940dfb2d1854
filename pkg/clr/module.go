package clr

import (
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/lazy"
	"github.com/scottwis/tiny-sub001/pkg/clr/metadata"
	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

// ModuleCollection holds the manifest module at index 0 followed by one
// module per File table row. Auxiliary modules are loaded on first access.
type ModuleCollection struct {
	asm  *Assembly
	list *lazy.List[Module]
}

type moduleSource struct {
	index int
	file  metadata.FileRow
}

func newModuleCollection(a *Assembly) *ModuleCollection {
	c := &ModuleCollection{asm: a}
	files := a.md.Table(metadata.TableFile)
	c.list = lazy.NewList(1+files.Len(),
		func(i int) (moduleSource, error) {
			if i == 0 {
				return moduleSource{}, nil
			}
			row, err := files.Row(i - 1)
			if err != nil {
				return moduleSource{}, err
			}
			return moduleSource{index: i, file: metadata.FileRow{Row: row}}, nil
		},
		c.load,
		a.check,
		lazy.WithDiscard(func(m *Module) {
			if err := m.close(); err != nil {
				a.opts.log.Debugf("close discarded module: %v", err)
			}
		}),
	)
	return c
}

// Count returns the number of modules.
func (c *ModuleCollection) Count() (int, error) {
	return c.list.Count()
}

// Get returns module i. Module 0 is the manifest module.
func (c *ModuleCollection) Get(i int) (*Module, error) {
	return c.list.Get(i)
}

// All returns every module, loading those not yet loaded.
func (c *ModuleCollection) All() ([]*Module, error) {
	return c.list.All()
}

func (c *ModuleCollection) load(src moduleSource) (*Module, error) {
	if src.index == 0 {
		return c.asm.main, nil
	}

	a := c.asm
	name, err := a.md.String(src.file.NameOffset())
	if err != nil {
		return nil, err
	}
	if name == "" || name != filepath.Base(name) {
		return nil, errors.Wrapf(errs.Malformed(a.File()), "bad module file name %q", name)
	}
	if !src.file.HasMetadata() {
		return &Module{asm: a, fileName: name}, nil
	}

	if a.opts.moduleDir == "" {
		return nil, errs.Unavailable(name, errors.New("no module directory"))
	}
	path := filepath.Join(a.opts.moduleDir, name)
	img, err := pe.Map(a.opts.mapper, path)
	if err != nil {
		return nil, err
	}
	md, err := load(img, a.opts.log)
	if err != nil {
		return nil, err
	}
	a.opts.log.Debugf("loaded module %s from %s", name, path)
	m := newModule(a, md, true)
	m.fileName = name
	return m, nil
}

// Module is one module of an assembly. A module listed in the File table
// without metadata is represented by a placeholder that only has a name.
type Module struct {
	asm      *Assembly
	md       *metadata.Metadata // nil for a placeholder
	owned    bool               // md's image belongs to this module
	fileName string

	name  lazy.Value[string]
	guid  lazy.Value[uuid.UUID]
	types lazy.Value[lazy.List[TypeDefinition]]
}

func newModule(a *Assembly, md *metadata.Metadata, owned bool) *Module {
	return &Module{asm: a, md: md, owned: owned}
}

func (m *Module) check() error {
	if err := m.asm.check(); err != nil {
		return err
	}
	if m.md != nil {
		return m.md.Image().CheckValid()
	}
	return nil
}

func (m *Module) close() error {
	if !m.owned || m.md == nil {
		return nil
	}
	return m.md.Image().Close()
}

func (m *Module) noMetadata() error {
	return errors.Wrapf(errs.ErrNoMetadata, "%s", m.fileName)
}

// HasMetadata reports whether the module carries metadata.
func (m *Module) HasMetadata() bool {
	return m.md != nil
}

// Name returns the module name from the Module table. For a placeholder
// it is the file name from the File table.
func (m *Module) Name() (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	if m.md == nil {
		return m.fileName, nil
	}
	p, err := m.name.Get(func() (*string, error) {
		row, err := m.moduleRow()
		if err != nil {
			return nil, err
		}
		name, err := m.md.String(row.NameOffset())
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

// GUID returns the module version ID.
func (m *Module) GUID() (uuid.UUID, error) {
	if err := m.check(); err != nil {
		return uuid.Nil, err
	}
	if m.md == nil {
		return uuid.Nil, m.noMetadata()
	}
	p, err := m.guid.Get(func() (*uuid.UUID, error) {
		row, err := m.moduleRow()
		if err != nil {
			return nil, err
		}
		g, err := m.md.GUID(row.MvidIndex())
		if err != nil {
			return nil, err
		}
		return &g, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return *p, nil
}

func (m *Module) moduleRow() (metadata.ModuleRow, error) {
	t := m.md.Table(metadata.TableModule)
	if t.Len() == 0 {
		return metadata.ModuleRow{}, errors.Wrap(errs.Malformed(m.md.Image().Name()), "empty Module table")
	}
	row, err := t.Row(0)
	if err != nil {
		return metadata.ModuleRow{}, err
	}
	return metadata.ModuleRow{Row: row}, nil
}

// Types returns the module's type definitions, one per TypeDef row.
func (m *Module) Types() (*lazy.List[TypeDefinition], error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	if m.md == nil {
		return nil, m.noMetadata()
	}
	return m.types.Get(func() (*lazy.List[TypeDefinition], error) {
		t := m.md.Table(metadata.TableTypeDef)
		return lazy.NewList(t.Len(),
			func(i int) (metadata.TypeDefRow, error) {
				row, err := t.Row(i)
				return metadata.TypeDefRow{Row: row}, err
			},
			m.newTypeDefinition,
			m.check,
		), nil
	})
}

// UserString returns the string at offset off of the #US heap, as
// referenced by ldstr.
func (m *Module) UserString(off uint32) (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	if m.md == nil {
		return "", m.noMetadata()
	}
	return m.md.UserString(off)
}

// Info summarizes the module. index is its position in the collection.
func (m *Module) Info(index int) (*ModuleInfo, error) {
	name, err := m.Name()
	if err != nil {
		return nil, err
	}
	info := &ModuleInfo{Index: index, Name: name, HasMetadata: m.HasMetadata()}
	if !m.HasMetadata() {
		return info, nil
	}
	g, err := m.GUID()
	if err != nil {
		return nil, err
	}
	info.GUID = g.String()
	types, err := m.Types()
	if err != nil {
		return nil, err
	}
	if info.Types, err = types.Count(); err != nil {
		return nil, err
	}
	return info, nil
}
