package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/strata"
	httpAdapter "github.com/aretw0/strata/internal/adapters/http"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Serves session stacks over HTTP: image upload and rendering, undo/redo, transforms and mutation events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		a, err := buildApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, strata.Version)
		}

		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           httpAdapter.NewHandler(a.httpServer()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting Strata server",
				"addr", srv.Addr,
				"data", cfg.DataDir,
				"backend", cfg.Backend,
				"version_backend", cfg.VersionBackend,
				"executor", cfg.ExecutorURL,
				"local_executor", cfg.LocalExecutor)
			serverErrors <- srv.ListenAndServe()
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			logger.Info("shutdown signal received")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("Strata server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default :8080)")
	serveCmd.Flags().String("uploads", "", "Directory the upload service writes arrays to")
	serveCmd.Flags().String("executor-url", "", "Base URL of the operation executor")
	serveCmd.Flags().Bool("local-executor", false, "Run the built-in operations in-process")
	serveCmd.Flags().String("operations", "", "YAML or JSON file of external command operations for the local executor")
	serveCmd.Flags().Duration("executor-timeout", 0, "Deadline of one executor call")
	serveCmd.Flags().Bool("distributed-lock", false, "Serialize mutations across replicas through redis")
	serveCmd.Flags().Int("cache-size", 0, "Number of rendered images kept in memory")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
}
