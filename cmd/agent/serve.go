package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaty/ekaty-agent/internal/api"
	"github.com/ekaty/ekaty-agent/internal/api/handler"
	"github.com/ekaty/ekaty-agent/internal/cache"
	"github.com/ekaty/ekaty-agent/internal/maintenance"
	"github.com/ekaty/ekaty-agent/internal/syncer"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the operator HTTP API and scheduled maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(syncer.Options{}, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	afterSync := maintenance.AfterSync(ctx, a.alert, appCache, logger)

	if a.cfg.SyncEnabled && a.cfg.HasAPIKey() {
		mcfg := maintenance.DefaultConfig()
		mcfg.SyncInterval = cfg.SyncInterval
		mcfg.StaleDays = cfg.StaleDays
		go maintenance.Start(ctx, a.engine, a.store, mcfg, afterSync, logger)
	} else {
		logger.Info("Scheduled sync disabled", "sync_enabled", cfg.SyncEnabled, "api_key", cfg.HasAPIKey())
	}

	router := api.NewRouter(handler.Deps{
		Store:       a.store,
		Engine:      a.engine,
		Cache:       appCache,
		Config:      cfg,
		Logger:      logger,
		BaseContext: ctx,
		OnSyncDone:  afterSync,
	})

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting eKaty agent API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
	return nil
}
