package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/scottwis/tiny-sub001/cmd/clrdump/cmd/flags"
	"github.com/scottwis/tiny-sub001/pkg/clr"
)

// InfoCmd holds the configuration
type InfoCmd struct {
	*flags.GlobalFlags
}

// NewInfoCmd creates a new info command
func NewInfoCmd(flags *flags.GlobalFlags) *cobra.Command {
	cmd := &InfoCmd{
		GlobalFlags: flags,
	}
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show headers, sections, streams and table sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.Run(cobraCmd, args[0])
		},
	}
}

// Run runs the command logic
func (cmd *InfoCmd) Run(cobraCmd *cobra.Command, path string) error {
	asm, err := openAssembly(path, cmd.GlobalFlags, newLogger(cobraCmd, cmd.GlobalFlags))
	if err != nil {
		return err
	}
	defer asm.Close()

	info, err := asm.Info()
	if err != nil {
		return err
	}
	return printResult(cobraCmd, cmd.GlobalFlags, infoResult{Info: info})
}

type infoResult struct {
	Info *clr.AssemblyInfo `json:"info" yaml:"info"`
}

func (r infoResult) header() []string {
	return []string{"Field", "Value"}
}

func (r infoResult) rows() [][]string {
	i := r.Info
	rows := [][]string{
		{"Name", i.Name},
		{"File", i.File},
		{"Machine", i.Machine},
		{"Format", i.Format},
		{"DLL", strconv.FormatBool(i.DLL)},
		{"Runtime", i.RuntimeVersion},
		{"Metadata", i.MetadataVersion},
		{"Flags", fmt.Sprintf("0x%08x", i.CLIFlags)},
	}
	if i.EntryPoint != "" {
		rows = append(rows, []string{"Entry point", i.EntryPoint})
	}
	if m := i.Manifest; m != nil {
		rows = append(rows, []string{"Version", m.Version.String()})
	}
	for _, s := range i.Sections {
		rows = append(rows, []string{"Section " + s.Name, fmt.Sprintf("rva 0x%x size 0x%x", s.VirtualAddress, s.VirtualSize)})
	}
	for _, s := range i.Streams {
		rows = append(rows, []string{"Stream " + s.Name, fmt.Sprintf("offset 0x%x size 0x%x", s.Offset, s.Size)})
	}
	for _, t := range i.Tables {
		rows = append(rows, []string{"Table " + t.Name, strconv.FormatUint(uint64(t.Rows), 10)})
	}
	for _, ref := range i.References {
		rows = append(rows, []string{"Reference", ref.Name + " " + ref.Version.String()})
	}
	return rows
}
