package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/presentation/tui"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/runner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a call in the terminal",
	Long: `Runs one call with the configured model and flow, reading the
caller's utterances from stdin instead of a speech-to-text stream.
With --json each input line is a JSON object and each turn is written
as one JSON line, which suits scripted conversations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		jsonMode, _ := cmd.Flags().GetBool("json")
		callID, _ := cmd.Flags().GetString("call-id")
		vars, _ := cmd.Flags().GetStringToString("var")
		silence, _ := cmd.Flags().GetDuration("silence")
		inbound, _ := cmd.Flags().GetBool("inbound")
		trace, _ := cmd.Flags().GetBool("trace")
		if callID == "" {
			callID = "sim-" + uuid.NewString()[:8]
		}

		svc, err := callflow.BuildServices(cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		engine, err := callflow.New(svc, append(callflow.EngineOptions(cfg), callflow.WithLogger(logger))...)
		if err != nil {
			return err
		}

		var handler runner.IOHandler
		if jsonMode {
			handler = runner.NewJSONHandler(os.Stdin, os.Stdout)
		} else {
			opts := []runner.TextHandlerOption{runner.WithNodeTrace(trace)}
			if term.IsTerminal(int(os.Stdout.Fd())) {
				tui.PrintBanner(os.Stdout, filepath.Base(cfg.Flow.Path))
				if render, err := tui.NewRenderer(0); err == nil {
					opts = append(opts, runner.WithTextHandlerRenderer(render))
				}
			}
			handler = runner.NewTextHandler(os.Stdin, os.Stdout, opts...)
		}

		r := runner.NewRunner(
			runner.WithInputHandler(handler),
			runner.WithLogger(logger),
			runner.WithSilenceTimeout(silence),
			runner.WithSkipGreeting(inbound),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		seed := make(domain.Variables, len(vars))
		for k, v := range vars {
			seed[k] = v
		}
		if err := engine.Simulate(ctx, callID, seed, r); err != nil {
			return fmt.Errorf("call %s: %w", callID, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Bool("json", false, "Read and write JSON lines instead of text")
	simulateCmd.Flags().String("call-id", "", "Call id (a random one by default)")
	simulateCmd.Flags().StringToString("var", nil, "Seed variable as key=value, repeatable")
	simulateCmd.Flags().Duration("silence", 0, "End the call when the caller is silent this long (0 waits forever)")
	simulateCmd.Flags().Bool("inbound", false, "Let the caller speak first")
	simulateCmd.Flags().Bool("trace", false, "Print node transitions")
}
