// Package main is the entrypoint for the ConfSight API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/confsight/internal/analysis"
	"github.com/kiranshivaraju/confsight/internal/api"
	"github.com/kiranshivaraju/confsight/internal/api/handler"
	"github.com/kiranshivaraju/confsight/internal/api/response"
	"github.com/kiranshivaraju/confsight/internal/cache"
	"github.com/kiranshivaraju/confsight/internal/config"
	"github.com/kiranshivaraju/confsight/internal/embedding"
	"github.com/kiranshivaraju/confsight/internal/ingest"
	"github.com/kiranshivaraju/confsight/internal/store"
	"github.com/kiranshivaraju/confsight/internal/suggest"
	"github.com/robfig/cron/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "embedding_provider", cfg.Embedding.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create embedding provider
	provider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}
	defer provider.Close()
	slog.Info("embedding provider initialized", "provider", provider.Name(), "dimension", provider.Dimension())

	// 6. Create store and services
	pgStore := store.NewPostgresStore(pool)
	runner := analysis.NewRunner(pgStore, redisCache, provider, cfg.Analysis)
	matcher := suggest.NewMatcher(pgStore, redisCache, provider, cfg.Suggest)
	intake := ingest.NewService(pgStore)

	// 7. Schedule nightly analysis runs
	scheduler, err := startScheduler(ctx, cfg.Analysis.Cron, runner)
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	// 8. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler: healthHandler(pgStore, redisCache),

		BeaconHandler: handler.NewBeaconHandler(intake),
		EnvHandler:    handler.NewEnvHandler(intake),

		RunAnalysisHandler: handler.NewRunAnalysisHandler(runner),
		ListRunsHandler:    handler.NewListRunsHandler(pgStore),

		SuggestHandler: handler.NewSuggestHandler(matcher),
		StatsHandler:   handler.NewStatsHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// startScheduler wires the cron-triggered analysis run. An empty spec
// disables scheduling; manual runs via the API are unaffected.
func startScheduler(ctx context.Context, spec string, runner *analysis.Runner) (*cron.Cron, error) {
	if spec == "" {
		slog.Info("analysis scheduler disabled")
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		run, err := runner.Run(ctx, analysis.RunParams{})
		if errors.Is(err, analysis.ErrRunInProgress) {
			slog.Warn("scheduled analysis skipped, run already in progress")
			return
		}
		if err != nil {
			slog.Error("scheduled analysis failed", "error", err)
			return
		}
		slog.Info("scheduled analysis completed", "run_id", run.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	c.Start()
	slog.Info("analysis scheduler started", "spec", spec)
	return c, nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
