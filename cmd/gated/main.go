package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huddlechat/gatekit/internal"
	"github.com/huddlechat/gatekit/internal/clock"
	"github.com/huddlechat/gatekit/internal/gate"
	"github.com/huddlechat/gatekit/internal/handler"
	"github.com/huddlechat/gatekit/internal/middleware"
	"github.com/huddlechat/gatekit/internal/session"
	"github.com/huddlechat/gatekit/internal/store"
	"github.com/huddlechat/gatekit/internal/telemetry"
)

func run() error {
	ctx := context.Background()

	// Load configuration; a broken feature table dies here.
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize the quota store backend
	quotas, err := openQuotaStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer quotas.Close()
	logger.Info("Quota store ready", "provider", string(cfg.StoreProvider))

	// Telemetry pipeline: log + prometheus sinks behind an async dispatcher
	dispatcher := telemetry.NewDispatcher(
		telemetry.Multi(telemetry.NewLogSink(logger), telemetry.NewMetricsSink()),
		telemetry.DispatcherConfig{
			QueueSize: cfg.TelemetryQueueSize,
			Workers:   cfg.TelemetryWorkers,
		},
		logger,
	)
	dispatcher.Start()

	// Gating core
	registry := session.NewRegistry()
	resolver := gate.NewTierResolver(registry)
	clk := clock.System()

	engine, err := gate.NewEngine(cfg.Catalog(), resolver, quotas, clk, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("engine initialization failed: %w", err)
	}
	committer := gate.NewCommitter(engine, quotas, clk, dispatcher, logger)

	// Handlers and middleware
	gateHandler := handler.NewGateHandler(engine, committer, registry, quotas, cfg.NewUserFreePeriod, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuth.Enabled() {
		logger.Warn("Metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	gateHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: loggingMw.Handler(mux),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	// Drain telemetry after the listener stops producing events.
	dispatcher.Stop(5 * time.Second)

	logger.Info("Graceful shutdown complete")
	return nil
}

// openQuotaStore builds the configured QuotaStore backend.
func openQuotaStore(ctx context.Context, cfg *internal.Config) (store.QuotaStore, error) {
	switch cfg.StoreProvider {
	case store.ProviderMemory:
		return store.NewMemory(), nil

	case store.ProviderSQLite:
		s, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store initialization failed: %w", err)
		}
		return s, nil

	case store.ProviderPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := store.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return store.NewPostgres(db), nil
	}

	return nil, fmt.Errorf("unknown store provider %q", cfg.StoreProvider)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
