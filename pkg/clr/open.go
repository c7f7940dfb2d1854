// Package clr reads managed (.NET) executables. An image is verified in
// full when it is opened; names, GUIDs and type definitions are decoded
// on first access and cached.
//
// All objects may be used from multiple goroutines. Closing an Assembly
// while other goroutines are still reading from it is not supported.
package clr

import (
	"path/filepath"

	"github.com/loft-sh/log"
	"github.com/pkg/errors"

	"github.com/scottwis/tiny-sub001/pkg/clr/errs"
	"github.com/scottwis/tiny-sub001/pkg/clr/metadata"
	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

// Open maps the file at path and verifies it as a managed image.
func Open(path string, opts ...Option) (*Assembly, error) {
	o := newOptions(opts)
	if o.moduleDir == "" {
		o.moduleDir = filepath.Dir(path)
	}

	img, err := pe.Map(o.mapper, path)
	if err != nil {
		return nil, err
	}
	md, err := load(img, o.log)
	if err != nil {
		return nil, err
	}
	return newAssembly(md, o), nil
}

// OpenBytes verifies data as a managed image. name identifies the image
// in errors. data must not be modified while the Assembly is open.
// Auxiliary modules are only loaded when WithModuleDir is given.
func OpenBytes(name string, data []byte, opts ...Option) (*Assembly, error) {
	o := newOptions(opts)
	md, err := load(pe.FromBytes(name, data), o.log)
	if err != nil {
		return nil, err
	}
	return newAssembly(md, o), nil
}

// load verifies img. On failure the image is closed and the stage that
// rejected it is logged; the caller only learns that it is malformed.
func load(img *pe.Image, logger log.Logger) (*metadata.Metadata, error) {
	md, err := verify(img)
	if err == nil {
		return md, nil
	}

	var ve *errs.VerifyError
	if errors.As(err, &ve) {
		logger.Debugf("%s rejected at %s: %s", img.Name(), ve.Stage, ve.Reason)
	} else {
		logger.Debugf("%s rejected: %v", img.Name(), err)
	}
	if cerr := img.Close(); cerr != nil {
		logger.Debugf("unmap %s: %v", img.Name(), cerr)
	}
	return nil, errs.Malformed(img.Name())
}

func verify(img *pe.Image) (*metadata.Metadata, error) {
	f, err := pe.Verify(img)
	if err != nil {
		return nil, err
	}
	return metadata.Verify(f)
}
