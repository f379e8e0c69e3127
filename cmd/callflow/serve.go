package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/callflow"
	httpAdapter "github.com/aretw0/callflow/pkg/adapters/http"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var _ httpAdapter.Engine = (*callflow.Engine)(nil)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the call control HTTP server",
	Long: `Starts the orchestrator as an HTTP service. The media transport
posts caller utterances and integration responses per call id and reads
replies back; /calls/{id}/events streams state changes as they commit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.Server.Addr = addr
		}

		svc, err := callflow.BuildServices(cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if svc.Health != nil {
			if err := svc.Health.Start(ctx, cfg.TTS.HealthSchedule); err != nil {
				return fmt.Errorf("tts health: %w", err)
			}
		}

		streams := httpAdapter.NewStreamManager(logger.With("component", "events"))
		opts := append(callflow.EngineOptions(cfg),
			callflow.WithLogger(logger),
			callflow.WithLifecycleHooks(streams.Hooks()),
		)
		engine, err := callflow.New(svc, opts...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: httpAdapter.NewHandler(engine,
				httpAdapter.WithReadiness(engine.Ready),
				httpAdapter.WithGatherer(svc.Registry),
				httpAdapter.WithStreams(streams),
				httpAdapter.WithIDGenerator(uuid.NewString),
				httpAdapter.WithLogger(logger.With("component", "http")),
			),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("callflow server listening", "addr", srv.Addr, "flow", cfg.Flow.Path, "nodes", svc.Graph.Len())
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop taking requests first, then hang up whatever is still live.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown did not complete", "err", err)
			_ = srv.Close()
		}
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Error("ending live calls", "err", err)
		}
		logger.Info("callflow server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address (overrides server.addr)")
}
