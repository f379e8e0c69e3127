package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored call sessions",
	Long:  `List, inspect and remove call snapshots in the configured session store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd, func(m *session.Manager) error {
			sums, err := m.Summaries(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sums) == 0 {
				fmt.Fprintln(out, "No stored calls found.")
				return nil
			}
			for _, s := range sums {
				if s.Err != nil {
					fmt.Fprintf(out, "- %s (unreadable: %v)\n", s.ID, s.Err)
					continue
				}
				status := string(s.Status)
				if s.EndReason != "" {
					status += "/" + s.EndReason
				}
				fmt.Fprintf(out, "- %s  %s  node=%s turns=%d updated=%s\n",
					s.ID, status, s.NodeID, s.Turns, s.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <call-id>",
	Short: "Print the snapshot of a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd, func(m *session.Manager) error {
			s, err := m.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("loading call %q: %w", args[0], err)
			}
			data, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm [call-id...]",
	Short: "Remove stored calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		ended, _ := cmd.Flags().GetBool("ended")
		if !all && !ended && len(args) == 0 {
			return fmt.Errorf("give at least one call id, --ended or --all")
		}
		return withSessions(cmd, func(m *session.Manager) error {
			if ended && !all {
				pruned, err := m.Prune(cmd.Context())
				for _, id := range pruned {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed call %q\n", id)
				}
				return err
			}
			ids := args
			if all {
				var err error
				if ids, err = m.List(cmd.Context()); err != nil {
					return fmt.Errorf("listing sessions: %w", err)
				}
			}
			failed := 0
			for _, id := range ids {
				if err := m.Delete(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error removing %q: %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed call %q\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d removals failed", failed, len(ids))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd, sessionInspectCmd, sessionRmCmd)
	sessionRmCmd.Flags().Bool("all", false, "Remove every stored call")
	sessionRmCmd.Flags().Bool("ended", false, "Remove only calls that have ended")
}

func withSessions(cmd *cobra.Command, fn func(*session.Manager) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, _, closer, err := callflow.OpenSessions(cfg, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}
	return fn(m)
}
