package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/use-agent/carscout/api"
	"github.com/use-agent/carscout/runner"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var notifier runner.Notifier
		if e.Notifier != nil {
			notifier = e.Notifier
		}
		rm := runner.New(e.Orchestrator, e.Store, notifier, cfg.Server.MaxConcurrentRuns)

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewRouter(ctx, rm, cfg, time.Now()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "http server")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		if err := rm.Shutdown(shutdownCtx); err != nil {
			slog.Error("runs still executing at shutdown", "error", err)
		}
		slog.Info("carscout stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server.port")
	rootCmd.AddCommand(serveCmd)
}
