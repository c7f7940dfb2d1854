package cmd

import (
	"encoding/json"
	"io"

	"github.com/loft-sh/log"
	"github.com/loft-sh/log/table"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scottwis/tiny-sub001/cmd/clrdump/cmd/flags"
)

// tabular is implemented by results that have a plain table rendering.
type tabular interface {
	header() []string
	rows() [][]string
}

// printResult writes v to the command's output in the selected format.
func printResult(cobraCmd *cobra.Command, globalFlags *flags.GlobalFlags, v tabular) error {
	out := cobraCmd.OutOrStdout()
	switch globalFlags.Output {
	case flags.OutputJSON:
		return writeJSON(out, v, globalFlags.Pretty)
	case flags.OutputYAML:
		return writeYAML(out, v)
	case flags.OutputPlain:
		logger := log.NewStdoutLogger(cobraCmd.InOrStdin(), out, cobraCmd.ErrOrStderr(), logrus.InfoLevel)
		table.PrintTable(logger, v.header(), v.rows())
		return nil
	}
	return errors.Errorf("unexpected output format, choose either json, yaml or plain. Got %s", globalFlags.Output)
}

func writeJSON(w io.Writer, v interface{}, pretty bool) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false) // Don't escape &, <, > as \u0026, \u003c, \u003e
	if pretty {
		encoder.SetIndent("", "  ")
	}
	return errors.Wrap(encoder.Encode(v), "encode json")
}

func writeYAML(w io.Writer, v interface{}) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "encode yaml")
	}
	return encoder.Close()
}
