package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/compiler"
	"github.com/aretw0/callflow/internal/presentation/tui"
	"github.com/aretw0/callflow/internal/validator"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errInvalidFlow = errors.New("flow has errors")

var validateCmd = &cobra.Command{
	Use:   "validate [flow]",
	Short: "Check the flow for consistency",
	Long: `Crawls the flow from its start node and reports dead links,
unreachable nodes, unparseable nodes and gates on undeclared variables.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, start, err := flowPath(cmd, args)
		if err != nil {
			return err
		}
		report, err := runValidate(path, start)
		if err != nil {
			return err
		}

		md := tui.ReportMarkdown(filepath.Base(path), report)
		out := md
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if render, err := tui.NewRenderer(0); err == nil {
				if rendered, err := render(md); err == nil {
					out = rendered
				}
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), out)

		if !report.Valid() {
			return errInvalidFlow
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path, start string) (*validator.Report, error) {
	loader, declared, err := callflow.OpenFlow(path)
	if err != nil {
		return nil, err
	}
	if start == "" {
		start = declared
	}
	return validator.ValidateGraph(loader, compiler.NewParser(), start)
}
