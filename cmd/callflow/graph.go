package main

import (
	"fmt"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [flow]",
	Short: "Export the flow as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart of the flow. With --call the diagram
highlights the nodes that call visited and where it currently is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		callID, _ := cmd.Flags().GetString("call")

		var overlay *graph.GraphOverlay
		if callID != "" {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sessions, _, closer, err := callflow.OpenSessions(cfg, logger)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			sess, err := sessions.Load(cmd.Context(), callID)
			if err != nil {
				return fmt.Errorf("call %s: %w", callID, err)
			}
			overlay = graph.OverlayFromSession(sess)
		}

		path, start, err := flowPath(cmd, args)
		if err != nil {
			return err
		}
		g, _, err := callflow.LoadFlow(path, start)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("call", "", "Overlay the path of a stored call")
}
