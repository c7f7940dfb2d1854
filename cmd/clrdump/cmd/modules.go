package cmd

import (
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scottwis/tiny-sub001/cmd/clrdump/cmd/flags"
	"github.com/scottwis/tiny-sub001/pkg/clr"
)

// ModulesCmd holds the configuration
type ModulesCmd struct {
	*flags.GlobalFlags
}

// NewModulesCmd creates a new modules command
func NewModulesCmd(flags *flags.GlobalFlags) *cobra.Command {
	cmd := &ModulesCmd{
		GlobalFlags: flags,
	}
	return &cobra.Command{
		Use:   "modules <file>",
		Short: "List the modules of an assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.Run(cobraCmd, args[0])
		},
	}
}

// Run runs the command logic
func (cmd *ModulesCmd) Run(cobraCmd *cobra.Command, path string) error {
	asm, err := openAssembly(path, cmd.GlobalFlags, newLogger(cobraCmd, cmd.GlobalFlags))
	if err != nil {
		return err
	}
	defer asm.Close()

	infos, err := moduleInfos(asm)
	if err != nil {
		return err
	}
	return printResult(cobraCmd, cmd.GlobalFlags, modulesResult{Modules: infos})
}

// moduleInfos loads every module concurrently.
func moduleInfos(asm *clr.Assembly) ([]*clr.ModuleInfo, error) {
	modules, err := asm.Modules()
	if err != nil {
		return nil, err
	}
	count, err := modules.Count()
	if err != nil {
		return nil, err
	}

	infos := make([]*clr.ModuleInfo, count)
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			m, err := modules.Get(i)
			if err != nil {
				return err
			}
			infos[i], err = m.Info(i)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

type modulesResult struct {
	Modules []*clr.ModuleInfo `json:"modules" yaml:"modules"`
}

func (r modulesResult) header() []string {
	return []string{"Index", "Name", "GUID", "Types"}
}

func (r modulesResult) rows() [][]string {
	rows := make([][]string, 0, len(r.Modules))
	for _, m := range r.Modules {
		guid := m.GUID
		if !m.HasMetadata {
			guid = "(no metadata)"
		}
		rows = append(rows, []string{strconv.Itoa(m.Index), m.Name, guid, strconv.Itoa(m.Types)})
	}
	return rows
}
