package clr

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/lazy"
	"github.com/scottwis/tiny-sub001/pkg/clr/metadata"
)

// Visibility is the visibility of a type definition.
type Visibility uint32

var visibilityNames = [...]string{
	metadata.TypeNotPublic:         "NotPublic",
	metadata.TypePublic:            "Public",
	metadata.TypeNestedPublic:      "NestedPublic",
	metadata.TypeNestedPrivate:     "NestedPrivate",
	metadata.TypeNestedFamily:      "NestedFamily",
	metadata.TypeNestedAssembly:    "NestedAssembly",
	metadata.TypeNestedFamANDAssem: "NestedFamANDAssem",
	metadata.TypeNestedFamORAssem:  "NestedFamORAssem",
}

func (v Visibility) String() string {
	if int(v) < len(visibilityNames) {
		return visibilityNames[v]
	}
	return "Visibility(" + strconv.Itoa(int(v)) + ")"
}

// IsNested reports whether v is one of the nested visibilities.
func (v Visibility) IsNested() bool {
	return v >= metadata.TypeNestedPublic
}

// TypeDefinition is a row of a module's TypeDef table. Its fixed fields
// are decoded when it is built; names are decoded on first access.
type TypeDefinition struct {
	mod     *Module
	token   metadata.Token
	flags   uint32
	nameOff uint32
	nsOff   uint32
	extends metadata.Token

	name      lazy.Value[string]
	namespace lazy.Value[string]
}

func (m *Module) newTypeDefinition(r metadata.TypeDefRow) (*TypeDefinition, error) {
	extends, ok := r.Extends()
	if !ok {
		return nil, errors.Wrapf(errs.Malformed(m.md.Image().Name()), "type %s: bad Extends", r.Token())
	}
	return &TypeDefinition{
		mod:     m,
		token:   r.Token(),
		flags:   r.Flags(),
		nameOff: r.NameOffset(),
		nsOff:   r.NamespaceOffset(),
		extends: extends,
	}, nil
}

// Module returns the module that defines the type.
func (t *TypeDefinition) Module() *Module {
	return t.mod
}

// Token returns the TypeDef token.
func (t *TypeDefinition) Token() (metadata.Token, error) {
	if err := t.mod.check(); err != nil {
		return 0, err
	}
	return t.token, nil
}

// Flags returns the TypeAttributes.
func (t *TypeDefinition) Flags() (uint32, error) {
	if err := t.mod.check(); err != nil {
		return 0, err
	}
	return t.flags, nil
}

// Visibility returns the visibility bits of the flags.
func (t *TypeDefinition) Visibility() (Visibility, error) {
	flags, err := t.Flags()
	if err != nil {
		return 0, err
	}
	return Visibility(flags & metadata.TypeVisibilityMask), nil
}

// Extends returns the TypeDef, TypeRef or TypeSpec token of the base
// type. It is a nil token for interfaces and System.Object.
func (t *TypeDefinition) Extends() (metadata.Token, error) {
	if err := t.mod.check(); err != nil {
		return 0, err
	}
	return t.extends, nil
}

// Name returns the type name.
func (t *TypeDefinition) Name() (string, error) {
	return t.str(&t.name, t.nameOff)
}

// Namespace returns the namespace, which is empty for nested types and
// types in the global namespace.
func (t *TypeDefinition) Namespace() (string, error) {
	return t.str(&t.namespace, t.nsOff)
}

// FullName returns the namespace qualified name.
func (t *TypeDefinition) FullName() (string, error) {
	ns, err := t.Namespace()
	if err != nil {
		return "", err
	}
	name, err := t.Name()
	if err != nil {
		return "", err
	}
	if ns == "" {
		return name, nil
	}
	return ns + "." + name, nil
}

func (t *TypeDefinition) str(v *lazy.Value[string], off uint32) (string, error) {
	if err := t.mod.check(); err != nil {
		return "", err
	}
	p, err := v.Get(func() (*string, error) {
		s, err := t.mod.md.String(off)
		if err != nil {
			return nil, err
		}
		return &s, nil
	})
	if err != nil {
		return "", err
	}
	return *p, nil
}

// Info summarizes the type definition.
func (t *TypeDefinition) Info() (*TypeInfo, error) {
	ns, err := t.Namespace()
	if err != nil {
		return nil, err
	}
	name, err := t.Name()
	if err != nil {
		return nil, err
	}
	full, err := t.FullName()
	if err != nil {
		return nil, err
	}
	vis, err := t.Visibility()
	if err != nil {
		return nil, err
	}
	info := &TypeInfo{
		Token:      t.token.String(),
		Namespace:  ns,
		Name:       name,
		FullName:   full,
		Visibility: vis.String(),
		Flags:      t.flags,
	}
	if !t.extends.IsNil() {
		info.Extends = t.extends.String()
	}
	return info, nil
}
