package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// ErrMissingDatabaseURL is returned alongside a usable Config when
// DATABASE_URL is unset, so callers can decide whether it is fatal.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL not set")

type Config struct {
	Env         string `env:"APP_ENV" default:"development"`
	ListenAddr  string `env:"LISTEN_ADDR" default:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" default:"10"`
	// RedisURL enables the shared layout cache; empty keeps it in-process.
	RedisURL  string `env:"REDIS_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	CacheTTL                 time.Duration `env:"CACHE_TTL" default:"5m"`
	MemoryCacheTTL           time.Duration `env:"MEMORY_CACHE_TTL" default:"30s"`
	InvalidationPollInterval time.Duration `env:"INVALIDATION_POLL_INTERVAL" default:"10s"`
	RunMigrations            bool          `env:"RUN_MIGRATIONS" default:"true"`
	// FallbackRules points at a rules.yaml replacing the built-in static
	// fallback table. Layout files are read relative to it.
	FallbackRules string `env:"FALLBACK_RULES"`
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return cfg, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > math.MaxInt32 {
		return fmt.Errorf("DB_MAX_CONNS must be between 1 and %d, got %d", math.MaxInt32, cfg.DBMaxConns)
	}
	if cfg.CacheTTL < 0 || cfg.MemoryCacheTTL < 0 {
		return errors.New("cache TTLs must not be negative")
	}
	if cfg.InvalidationPollInterval <= 0 {
		return fmt.Errorf("INVALIDATION_POLL_INTERVAL must be positive, got %s", cfg.InvalidationPollInterval)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return nil
}
