/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the studio ledger server. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (file + STUDIO_* environment overrides)
  3. Build logger
  4. Initialize SQLite store
  5. Create API handler and router
  6. Seed the default plan catalog
  7. Start the reconciliation scheduler
  8. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional; defaults apply without one)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with defaults (./data/studio.db, :8080)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Override via environment
  STUDIO_HTTP_ADDR=:3000 STUDIO_SQLITE_PATH=:memory: ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/studio-ledger/api"
	"github.com/warp/studio-ledger/config"
	"github.com/warp/studio-ledger/factory"
	"github.com/warp/studio-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.SQLite.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire handler and router
	handler := api.NewHandler(store, logger)
	router := api.NewRouter(handler, cfg.Metrics.Enabled)

	// Seed the default plan catalog so a fresh install has purchasable
	// plans. SavePlan upserts, so restarts are safe.
	if err := factory.SeedDefaults(context.Background(), store); err != nil {
		logger.Fatal("failed to seed plan catalog", zap.Error(err))
	}

	scheduler := api.NewReconciliationScheduler(handler)
	scheduler.Enabled = cfg.Reconcile.Enabled
	if cfg.Reconcile.Interval > 0 {
		scheduler.CheckInterval = cfg.Reconcile.Interval
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("db", cfg.SQLite.Path),
			zap.Bool("metrics", cfg.Metrics.Enabled))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" || env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
