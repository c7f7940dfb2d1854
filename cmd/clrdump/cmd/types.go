package cmd

import (
	"github.com/spf13/cobra"

	"github.com/scottwis/tiny-sub001/cmd/clrdump/cmd/flags"
	"github.com/scottwis/tiny-sub001/pkg/clr"
)

// TypesCmd holds the configuration
type TypesCmd struct {
	*flags.GlobalFlags

	Module int
}

// NewTypesCmd creates a new types command
func NewTypesCmd(flags *flags.GlobalFlags) *cobra.Command {
	cmd := &TypesCmd{
		GlobalFlags: flags,
	}
	typesCmd := &cobra.Command{
		Use:   "types <file>",
		Short: "List the type definitions of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.Run(cobraCmd, args[0])
		},
	}

	typesCmd.Flags().IntVar(&cmd.Module, "module", 0, "Index of the module to list, 0 is the manifest module")
	return typesCmd
}

// Run runs the command logic
func (cmd *TypesCmd) Run(cobraCmd *cobra.Command, path string) error {
	asm, err := openAssembly(path, cmd.GlobalFlags, newLogger(cobraCmd, cmd.GlobalFlags))
	if err != nil {
		return err
	}
	defer asm.Close()

	modules, err := asm.Modules()
	if err != nil {
		return err
	}
	m, err := modules.Get(cmd.Module)
	if err != nil {
		return err
	}
	name, err := m.Name()
	if err != nil {
		return err
	}
	types, err := m.Types()
	if err != nil {
		return err
	}
	all, err := types.All()
	if err != nil {
		return err
	}

	result := typesResult{Module: name, Types: make([]*clr.TypeInfo, 0, len(all))}
	for _, t := range all {
		info, err := t.Info()
		if err != nil {
			return err
		}
		result.Types = append(result.Types, info)
	}
	return printResult(cobraCmd, cmd.GlobalFlags, result)
}

type typesResult struct {
	Module string          `json:"module" yaml:"module"`
	Types  []*clr.TypeInfo `json:"types" yaml:"types"`
}

func (r typesResult) header() []string {
	return []string{"Token", "Name", "Visibility", "Extends"}
}

func (r typesResult) rows() [][]string {
	rows := make([][]string, 0, len(r.Types))
	for _, t := range r.Types {
		rows = append(rows, []string{t.Token, t.FullName, t.Visibility, t.Extends})
	}
	return rows
}
