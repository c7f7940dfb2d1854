package clr

import (
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"

	"github.com/scottwis/tiny-sub001/internal/testimage"
	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/metadata"
)

func TestTypeDefinitions(t *testing.T) {
	asm, _ := openBuilt(t, sampleBuilder())
	defer asm.Close()

	modules, err := asm.Modules()
	assert.NilError(t, err)
	m, err := modules.Get(0)
	assert.NilError(t, err)
	types, err := m.Types()
	assert.NilError(t, err)
	n, err := types.Count()
	assert.NilError(t, err)
	assert.Equal(t, 4, n)

	all, err := types.All()
	assert.NilError(t, err)
	var infos []TypeInfo
	for _, td := range all {
		info, err := td.Info()
		assert.NilError(t, err)
		infos = append(infos, *info)
	}

	expected := []TypeInfo{
		{Token: "0x02000001", Name: "<Module>", FullName: "<Module>", Visibility: "NotPublic"},
		{
			Token:      "0x02000002",
			Namespace:  "Acme.Widgets",
			Name:       "Widget",
			FullName:   "Acme.Widgets.Widget",
			Visibility: "Public",
			Flags:      metadata.TypePublic,
			Extends:    "0x01000001",
		},
		{
			Token:      "0x02000003",
			Namespace:  "Acme.Widgets",
			Name:       "IGadget",
			FullName:   "Acme.Widgets.IGadget",
			Visibility: "Public",
			Flags:      metadata.TypePublic | metadata.TypeInterface | metadata.TypeAbstract,
		},
		{
			Token:      "0x02000004",
			Name:       "Inner",
			FullName:   "Inner",
			Visibility: "NestedPrivate",
			Flags:      metadata.TypeNestedPrivate,
			Extends:    "0x01000001",
		},
	}
	assert.DeepEqual(t, expected, infos)

	widget, err := types.Get(1)
	assert.NilError(t, err)
	assert.Assert(t, widget == all[1])
	tok, err := widget.Token()
	assert.NilError(t, err)
	assert.Equal(t, metadata.NewToken(metadata.TableTypeDef, 2), tok)
	extends, err := widget.Extends()
	assert.NilError(t, err)
	assert.Equal(t, metadata.TableTypeRef, extends.Table())
	assert.Equal(t, uint32(1), extends.RID())

	inner, err := types.Get(3)
	assert.NilError(t, err)
	vis, err := inner.Visibility()
	assert.NilError(t, err)
	assert.Assert(t, vis.IsNested())

	_, err = types.Get(4)
	assert.Assert(t, errors.Is(err, errs.ErrIndexOutOfRange))

	same, err := m.Types()
	assert.NilError(t, err)
	assert.Assert(t, same == types)
}

func TestTypeDefinitionBadExtends(t *testing.T) {
	b := testimage.New()
	// tag 3 is not a TypeDefOrRef table
	b.Types = []testimage.Type{{Name: "Broken", Extends: 1<<2 | 3}, {Name: "Fine"}}
	asm, _ := openBuilt(t, b)
	defer asm.Close()

	modules, err := asm.Modules()
	assert.NilError(t, err)
	m, err := modules.Get(0)
	assert.NilError(t, err)
	types, err := m.Types()
	assert.NilError(t, err)

	_, err = types.Get(0)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	fine, err := types.Get(1)
	assert.NilError(t, err)
	name, err := fine.Name()
	assert.NilError(t, err)
	assert.Equal(t, "Fine", name)
}

func TestVisibility(t *testing.T) {
	tests := []struct {
		v      Visibility
		name   string
		nested bool
	}{
		{metadata.TypeNotPublic, "NotPublic", false},
		{metadata.TypePublic, "Public", false},
		{metadata.TypeNestedPublic, "NestedPublic", true},
		{metadata.TypeNestedFamORAssem, "NestedFamORAssem", true},
		{42, "Visibility(42)", true},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.name, tc.v.String())
		assert.Equal(t, tc.nested, tc.v.IsNested(), "visibility %s", tc.name)
	}
}
