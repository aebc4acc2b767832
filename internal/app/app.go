// Package app wires configuration into the store, token and rate limiting
// backends shared by the API server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aveksana/referrals-api/internal/auth"
	"github.com/aveksana/referrals-api/internal/config"
	"github.com/aveksana/referrals-api/internal/database"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/ratelimit"
	"github.com/aveksana/referrals-api/internal/user"
)

// Store is an opened user store with its health check and cleanup.
type Store struct {
	Users user.Store
	// Ping reports whether the backend is reachable. Nil for the memory store.
	Ping  func(ctx context.Context) error
	Close func() error
}

// OpenStore opens the backend selected by STORE_DRIVER. Postgres is migrated
// first when STORE_MIGRATE_ON_START is set.
func OpenStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.OpenPostgres(ctx, cfg.Database.ConnectionString(), database.PoolOptions{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Store.MigrateOnStart {
			if err := database.Migrate(ctx, db.DB); err != nil {
				db.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		logger.Info("connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.DBName)
		return &Store{
			Users: user.NewRepository(db),
			Ping:  db.PingContext,
			Close: db.Close,
		}, nil

	case config.StoreMongo:
		db, err := database.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		repo := user.NewMongoRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
		return &Store{
			Users: repo,
			Ping: func(ctx context.Context) error {
				return db.Client().Ping(ctx, nil)
			},
			Close: func() error {
				return db.Client().Disconnect(context.Background())
			},
		}, nil

	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return &Store{
			Users: user.NewMemoryRepository(),
			Close: func() error { return nil },
		}, nil
	}

	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

// NewTokenService returns the token implementation selected by AUTH_TOKEN_FORMAT.
func NewTokenService(cfg config.AuthConfig) (auth.TokenService, error) {
	switch cfg.TokenFormat {
	case config.TokenPaseto:
		return auth.NewPasetoService([]byte(cfg.PasetoKey))
	case config.TokenJWT:
		return auth.NewJWTService([]byte(cfg.JWTSecret))
	}
	return nil, fmt.Errorf("unsupported token format %q", cfg.TokenFormat)
}

// OpenRateLimiter connects the Redis limiter. Rate limiting never blocks
// startup: when it is disabled or Redis is unreachable requests go unlimited.
func OpenRateLimiter(ctx context.Context, cfg *config.Config, logger *logging.Logger) (ratelimit.IPLimiter, func() error) {
	noop := func() error { return nil }
	if !cfg.RateLimit.Enabled {
		logger.Info("rate limiting disabled")
		return ratelimit.Noop{}, noop
	}

	client, err := ratelimit.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis unavailable, rate limiting disabled", "address", cfg.Redis.Address(), "error", err.Error())
		return ratelimit.Noop{}, noop
	}

	logger.Info("rate limiting enabled", "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window.String())
	return ratelimit.NewLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window), client.Close
}

// CloseAll runs every closer and joins their errors.
func CloseAll(closers ...func() error) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
