package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	httpadapter "quotelayout/internal/adapters/http"
	"quotelayout/internal/adapters/metrics"
	pg "quotelayout/internal/adapters/postgres"
	redisadapter "quotelayout/internal/adapters/redis"
	"quotelayout/internal/adapters/resilient"
	"quotelayout/internal/config"
	"quotelayout/internal/logging"
	compsvc "quotelayout/internal/services/companies"
	"quotelayout/internal/services/layouts"
	"quotelayout/internal/services/quotes"
	"quotelayout/internal/workers/invalidator"
)

func main() {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrMissingDatabaseURL) {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required for Postgres adapters")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pg.Connect(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	reg := metrics.NewRegistry()
	layoutMetrics := metrics.NewLayoutMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	var redisClient *redisadapter.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisadapter.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable at startup, cache reads will miss until it recovers", "error", err)
		}
	}
	cache := redisadapter.NewCache(redisClient, redisadapter.CacheConfig{
		TTL:       cfg.CacheTTL,
		MemoryTTL: cfg.MemoryCacheTTL,
		Recorder:  layoutMetrics,
	})
	if err := cache.Subscribe(ctx); err != nil {
		logger.Warn("Cache invalidation subscription failed, relying on TTL and polling", "error", err)
	}
	stopEviction := cache.StartEvictionTimer(time.Minute)
	defer stopEviction()

	fallbacks, err := loadFallbacks(cfg.FallbackRules)
	if err != nil {
		return err
	}
	logger.Info("Loaded static fallback layouts", "families", fallbacks.Families())

	breaker := resilient.DefaultSettings()
	breaker.OnStateChange = layoutMetrics.BreakerStateChanged

	brandingRepo := resilient.NewBranding(db, breaker)
	selector := layouts.NewSelector(
		compsvc.New(db),
		brandingRepo,
		resilient.NewTemplates(db, breaker),
		resilient.NewCustomLayouts(db, breaker),
		fallbacks,
		layouts.WithObserver(layoutMetrics),
		layouts.WithLogger(logger),
	)
	svc := quotes.New(selector, brandingRepo,
		quotes.WithCache(cache),
		quotes.WithRenderRecorder(layoutMetrics),
		quotes.WithLogger(logger),
	)

	// Writes through the admin routes publish their own invalidations; the
	// poller covers rows changed by anything else.
	writer := pg.NewWriter(db, cache)
	poller := invalidator.New(db, cache,
		invalidator.WithInterval(cfg.InvalidationPollInterval),
		invalidator.WithLogger(logger),
	)
	go poller.Run(ctx)

	srv := httpadapter.New(svc,
		httpadapter.WithWriter(writer),
		httpadapter.WithHealthCheck(db),
		httpadapter.WithMetrics(metrics.Handler(reg)),
		httpadapter.WithMiddleware(httpMetrics.Middleware),
	)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("Listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadFallbacks(rulesPath string) (*layouts.FallbackCatalog, error) {
	if rulesPath == "" {
		return layouts.DefaultFallbackCatalog()
	}
	return layouts.LoadFallbackCatalog(os.DirFS(filepath.Dir(rulesPath)), filepath.Base(rulesPath))
}
