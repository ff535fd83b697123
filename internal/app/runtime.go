package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/caixa/internal/platform/cache"
	"github.com/odyssey-erp/caixa/internal/platform/db"
)

const testModeEnv = "CAIXA_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the CAIXA_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// Resources are the connections shared by the API and the worker.
type Resources struct {
	DB    *pgxpool.Pool
	Redis *redis.Client

	logger *slog.Logger
}

// OpenResources connects to Postgres and Redis. Postgres is mandatory; a Redis
// outage only disables the consolidation cache, so it is logged and the nil
// client is tolerated by callers.
func OpenResources(ctx context.Context, cfg *Config, logger *slog.Logger) (*Resources, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, AppName: cfg.PGAppName})
	if err != nil {
		return nil, err
	}
	res := &Resources{DB: pool, logger: logger}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, consolidation cache disabled", slog.Any("error", err))
	} else {
		res.Redis = client
	}
	return res, nil
}

// Close releases every connection.
func (r *Resources) Close() {
	if r == nil {
		return
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			r.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if r.DB != nil {
		r.DB.Close()
	}
}
