// Package app wires configuration into a ready-to-use service.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/xiaot623/gogo/convstore/internal/cache"
	"github.com/xiaot623/gogo/convstore/internal/config"
	"github.com/xiaot623/gogo/convstore/internal/registry"
	"github.com/xiaot623/gogo/convstore/internal/repository"
	"github.com/xiaot623/gogo/convstore/internal/service"
	"github.com/xiaot623/gogo/convstore/policy"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenStore opens the configured backend, wrapped in the Redis cache when
// one is configured. SQL backends are not migrated here; run Migrate first.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var store repository.Store
	if cfg.DatabaseDriver == "memory" {
		store = repository.NewMemoryStore()
	} else {
		dialect, err := repository.ParseDialect(cfg.DatabaseDriver)
		if err != nil {
			return nil, err
		}
		db, err := repository.Open(ctx, dialect, cfg.DatabaseURL, repository.PoolOptions{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		store = repository.NewSQLStore(db, dialect)
	}

	if !cfg.CacheEnabled() {
		return store, nil
	}
	client, err := cache.NewClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, continuing without cache", "addr", cfg.RedisAddr, "error", err)
		return store, nil
	}
	return cache.NewStore(store, client, cfg.CacheTTL, logger), nil
}

// Migrate applies the schema for SQL backends. It is a no-op for memory.
func Migrate(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseDriver == "memory" {
		return nil
	}
	dialect, err := repository.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	db, err := repository.Open(ctx, dialect, cfg.DatabaseURL, repository.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()
	return repository.Migrate(ctx, db, dialect)
}

// NewService opens the store and policy engine and builds the service. The
// caller closes the service.
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service.Service, error) {
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.ResolverPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return service.New(store, cfg, policyEngine, logger), nil
}

// NewRegistry builds the per-agent scratch registry. Its services share the
// resolution policy of the durable service.
func NewRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.ResolverPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	return registry.New(cfg, policyEngine, logger), nil
}
