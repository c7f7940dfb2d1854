package cmd

import (
	"fmt"
	"os"

	"github.com/loft-sh/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scottwis/tiny-sub001/cmd/clrdump/cmd/flags"
	"github.com/scottwis/tiny-sub001/pkg/clr"
)

// NewRootCmd returns a new root command
func NewRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "clrdump",
		Short:         "Dump headers, modules and types of managed executables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// Execute builds the root command and runs it. This is called by main.main().
func Execute() {
	rootCmd := BuildRoot()

	err := rootCmd.Execute()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// BuildRoot creates the root command with all subcommands attached.
func BuildRoot() *cobra.Command {
	rootCmd := NewRootCmd()
	persistentFlags := rootCmd.PersistentFlags()
	globalFlags := flags.SetGlobalFlags(persistentFlags)

	rootCmd.AddCommand(NewInfoCmd(globalFlags))
	rootCmd.AddCommand(NewModulesCmd(globalFlags))
	rootCmd.AddCommand(NewTypesCmd(globalFlags))
	return rootCmd
}

// newLogger returns the diagnostics logger. It writes to stderr so that it
// never mixes with the command output.
func newLogger(cobraCmd *cobra.Command, globalFlags *flags.GlobalFlags) log.Logger {
	level := logrus.InfoLevel
	if globalFlags.Debug {
		level = logrus.DebugLevel
	}
	return log.NewStdoutLogger(cobraCmd.InOrStdin(), cobraCmd.ErrOrStderr(), cobraCmd.ErrOrStderr(), level)
}

func openAssembly(path string, globalFlags *flags.GlobalFlags, logger log.Logger) (*clr.Assembly, error) {
	opts := []clr.Option{clr.WithLogger(logger)}
	if globalFlags.ModuleDir != "" {
		opts = append(opts, clr.WithModuleDir(globalFlags.ModuleDir))
	}
	return clr.Open(path, opts...)
}
