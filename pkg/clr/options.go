package clr

import (
	"github.com/loft-sh/log"

	"github.com/scottwis/tiny-sub001/pkg/clr/pe"
)

// Option configures Open and OpenBytes.
type Option func(*options)

type options struct {
	log       log.Logger
	mapper    pe.Mapper
	moduleDir string
}

func newOptions(opts []Option) *options {
	o := &options{
		log:    log.Discard,
		mapper: pe.MmapMapper{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used for diagnostics. Verification failures
// and module loads are logged at debug level.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMapper sets the mapper used to load the image and its auxiliary
// modules.
func WithMapper(m pe.Mapper) Option {
	return func(o *options) {
		if m != nil {
			o.mapper = m
		}
	}
}

// WithModuleDir sets the directory auxiliary modules are loaded from. Open
// defaults it to the directory of the manifest file. OpenBytes has no
// default, and auxiliary modules with metadata fail to load without it.
func WithModuleDir(dir string) Option {
	return func(o *options) {
		o.moduleDir = dir
	}
}
