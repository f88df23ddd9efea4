package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/config"
	"github.com/noah-isme/cargo-backoffice/internal/db"
	"github.com/noah-isme/cargo-backoffice/internal/health"
)

// Dependencies holds the shared infrastructure clients of one process.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
	// RedisOpt configures asynq clients and servers against the same Redis.
	RedisOpt asynq.RedisConnOpt
}

// Open connects Postgres and Redis. name becomes the Postgres application_name.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, name string) (*Dependencies, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: name})
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("parse asynq redis uri: %w", err)
	}

	return &Dependencies{Config: cfg, Logger: logger, DB: pool, Redis: rdb, RedisOpt: connOpt}, nil
}

// Checks returns readiness probes for the connected dependencies.
func (d *Dependencies) Checks() []health.Check {
	return []health.Check{
		{Name: "postgres", Probe: func(ctx context.Context) error {
			if d.DB == nil {
				return errors.New("db not configured")
			}
			return d.DB.Ping(ctx)
		}},
		{Name: "redis", Probe: func(ctx context.Context) error {
			if d.Redis == nil {
				return errors.New("redis not configured")
			}
			return d.Redis.Ping(ctx).Err()
		}},
	}
}

// Close releases every client.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
