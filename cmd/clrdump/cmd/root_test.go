package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"

	"github.com/scottwis/tiny-sub001/internal/testimage"
	"github.com/scottwis/tiny-sub001/pkg/clr"
	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
)

func writeImage(t *testing.T) string {
	t.Helper()
	b := testimage.New()
	b.ModuleName = "Acme.Widgets.dll"
	b.Assembly = &testimage.Identity{Name: "Acme.Widgets", Version: [4]uint16{1, 0, 0, 0}}
	b.References = []testimage.Identity{{Name: "mscorlib", Version: [4]uint16{4, 0, 0, 0}}}
	b.Types = []testimage.Type{
		{Name: "<Module>"},
		{Namespace: "Acme.Widgets", Name: "Widget <T>", Flags: 1, Extends: testimage.TypeRef(1)},
	}
	b.Files = []testimage.File{{Name: "notes.txt", NoMetadata: true}}

	path := filepath.Join(t.TempDir(), "Acme.Widgets.dll")
	assert.NilError(t, os.WriteFile(path, b.Build().Bytes, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := BuildRoot()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(""))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTypesJSON(t *testing.T) {
	path := writeImage(t)
	stdout, _, err := run(t, "types", path)
	assert.NilError(t, err)

	// html characters are written as is
	assert.Check(t, cmp.Contains(stdout, "Widget <T>"))

	var got typesResult
	assert.NilError(t, json.Unmarshal([]byte(stdout), &got))
	expected := typesResult{
		Module: "Acme.Widgets.dll",
		Types: []*clr.TypeInfo{
			{Token: "0x02000001", Name: "<Module>", FullName: "<Module>", Visibility: "NotPublic"},
			{
				Token:      "0x02000002",
				Namespace:  "Acme.Widgets",
				Name:       "Widget <T>",
				FullName:   "Acme.Widgets.Widget <T>",
				Visibility: "Public",
				Flags:      1,
				Extends:    "0x01000001",
			},
		},
	}
	assert.Assert(t, gocmp.Equal(expected, got), gocmp.Diff(expected, got))
}

func TestModulesYAML(t *testing.T) {
	path := writeImage(t)
	stdout, _, err := run(t, "modules", "-o", "yaml", path)
	assert.NilError(t, err)

	var got modulesResult
	assert.NilError(t, yaml.Unmarshal([]byte(stdout), &got))
	expected := modulesResult{Modules: []*clr.ModuleInfo{
		{Index: 0, Name: "Acme.Widgets.dll", HasMetadata: true, GUID: "01234567-89ab-cdef-0123-456789abcdef", Types: 2},
		{Index: 1, Name: "notes.txt"},
	}}
	assert.Assert(t, gocmp.Equal(expected, got), gocmp.Diff(expected, got))
}

func TestInfoPretty(t *testing.T) {
	path := writeImage(t)
	stdout, _, err := run(t, "info", "--pretty", path)
	assert.NilError(t, err)
	assert.Check(t, cmp.Contains(stdout, "\n  \"info\": {\n"))

	var got infoResult
	assert.NilError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "Acme.Widgets", got.Info.Name)
	assert.Equal(t, path, got.Info.File)
	assert.Equal(t, "v4.0.30319", got.Info.MetadataVersion)
	assert.Equal(t, "1.0.0.0", got.Info.Manifest.Version.String())
	assert.Equal(t, 1, len(got.Info.References))
	assert.Equal(t, "mscorlib", got.Info.References[0].Name)
}

func TestPlainOutput(t *testing.T) {
	path := writeImage(t)
	stdout, _, err := run(t, "types", "-o", "plain", path)
	assert.NilError(t, err)
	assert.Check(t, cmp.Contains(stdout, "Acme.Widgets.Widget <T>"))
	assert.Check(t, cmp.Contains(stdout, "0x02000002"))
}

func TestTypesOfPlaceholderModule(t *testing.T) {
	path := writeImage(t)
	_, _, err := run(t, "types", "--module", "1", path)
	assert.Assert(t, errors.Is(err, errs.ErrNoMetadata))

	_, _, err = run(t, "types", "--module", "2", path)
	assert.Assert(t, errors.Is(err, errs.ErrIndexOutOfRange))
}

func TestUnknownOutput(t *testing.T) {
	path := writeImage(t)
	_, _, err := run(t, "info", "-o", "xml", path)
	assert.ErrorContains(t, err, "unexpected output format")
}

func TestDebugLogsRejection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dll")
	assert.NilError(t, os.WriteFile(path, make([]byte, 1024), 0o644))

	stdout, stderr, err := run(t, "info", path)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	assert.Equal(t, "", stdout)
	assert.Assert(t, !strings.Contains(stderr, "rejected"))

	stdout, stderr, err = run(t, "info", "--debug", path)
	assert.Assert(t, errors.Is(err, errs.ErrMalformedImage))
	assert.Equal(t, "", stdout)
	assert.Check(t, cmp.Contains(stderr, "rejected at pe signature"))
}
