package flags

import (
	flag "github.com/spf13/pflag"
)

// Output formats
const (
	OutputJSON  = "json"
	OutputYAML  = "yaml"
	OutputPlain = "plain"
)

type GlobalFlags struct {
	Debug  bool
	Output string
	Pretty bool

	ModuleDir string
}

// SetGlobalFlags applies the global flags
func SetGlobalFlags(flags *flag.FlagSet) *GlobalFlags {
	globalFlags := &GlobalFlags{}

	flags.BoolVar(&globalFlags.Debug, "debug", false, "Log why an image was rejected and which modules were loaded")
	flags.StringVarP(&globalFlags.Output, "output", "o", OutputJSON, "The output format to use. Can be json, yaml or plain")
	flags.BoolVar(&globalFlags.Pretty, "pretty", false, "Pretty-print JSON output")
	flags.StringVar(&globalFlags.ModuleDir, "module-dir", "", "Directory to load auxiliary modules from. Defaults to the directory of the file")
	return globalFlags
}
