package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/api"
	"github.com/ow2stats/herostats/internal/metrics"
	"github.com/ow2stats/herostats/internal/store"
	"github.com/ow2stats/herostats/internal/store/postgres"
)

// newServeCmd creates the 'serve' subcommand running the statistics store API.
func newServeCmd() *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the hero statistics store API",
		Long: `Starts the HTTP server backing the statistics store: the batch upload
endpoint used by sweeps plus the CRUD and query surface, health checks and
Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd.Context(), skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply schema migrations on startup")
	return cmd
}

func runServeCommand(ctx context.Context, skipMigrations bool) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	if !skipMigrations {
		if err := postgres.Migrate(cfg.DB.DSN); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database schema up to date")
	}

	heroStore, err := postgres.NewHeroStore(ctx, postgres.HeroStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return fmt.Errorf("init hero store: %w", err)
	}
	defer heroStore.Close()

	ready := func(ctx context.Context) error {
		_, err := heroStore.List(ctx, store.ListFilter{Limit: 1})
		return err
	}

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	server := api.NewServer(heroStore, ready, api.Config{
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		APIKey:         apiKey,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
