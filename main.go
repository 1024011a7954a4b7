package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"premerge/internal/api"
	"premerge/internal/config"
	"premerge/internal/logging"
	"premerge/internal/middleware"
	"premerge/internal/session"
	"premerge/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configPath string
		repoDir    string
	)

	cmd := &cobra.Command{
		Use:           "premerged",
		Short:         "Serve merge conflict predictions for editors",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, repoDir)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default premerge.toml or .premerge/config.toml)")
	cmd.Flags().StringVar(&repoDir, "repo", ".", "repository to serve")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configPath, repoDir string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	// Initialize workspace
	ws, err := workspace.Open(repoDir, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	sessions := ws.NewManager()
	defer sessions.Close()

	watcher, err := session.NewWatcher(sessions, ws.GitDir(), ws.Detector.ClearCache, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watcher stopped", zap.Error(err))
		}
	}()

	// Set up router
	mux := http.NewServeMux()
	api.NewHandler(ws, sessions, watcher, logger).Register(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.Recover(logger),
		middleware.Logger(logger),
		middleware.RequestID,
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("address", srv.Addr),
			zap.String("repository", ws.Root),
			zap.Strings("branches", cfg.Analysis.TrackedBranches),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
