package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "callflow",
	Short: "Callflow orchestrates voice agent calls over a conversation flow",
	Long: `Callflow runs outbound and inbound voice calls against a flow of
conversation nodes: it decides transitions, extracts variables, speaks
replies through pooled TTS backends and keeps call state in redis.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "callflow.yaml", "Path to the callflow configuration file")
	rootCmd.PersistentFlags().String("flow", "", "Flow file or directory (overrides flow.path)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides log.level)")
}

// loadConfig reads the configuration named by --config and applies the
// persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if flow, _ := cmd.Flags().GetString("flow"); flow != "" {
		cfg.Flow.Path = flow
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	logger, err := logging.FromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("config: log: %w", err)
	}
	return cfg, logger, nil
}

// flowPath resolves the flow for commands that work without a config file:
// an argument wins, then --flow, then flow.path from the config.
func flowPath(cmd *cobra.Command, args []string) (path, start string, err error) {
	if len(args) > 0 {
		return args[0], "", nil
	}
	if flow, _ := cmd.Flags().GetString("flow"); flow != "" {
		return flow, "", nil
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", "", fmt.Errorf("no flow given and %w", err)
	}
	return cfg.Flow.Path, cfg.Flow.Start, nil
}
