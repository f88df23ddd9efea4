package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/audit"
	"github.com/noah-isme/cargo-backoffice/internal/auth"
	"github.com/noah-isme/cargo-backoffice/internal/benefit"
	"github.com/noah-isme/cargo-backoffice/internal/branch"
	"github.com/noah-isme/cargo-backoffice/internal/cache"
	"github.com/noah-isme/cargo-backoffice/internal/config"
	"github.com/noah-isme/cargo-backoffice/internal/events"
	"github.com/noah-isme/cargo-backoffice/internal/goods"
	"github.com/noah-isme/cargo-backoffice/internal/lock"
	"github.com/noah-isme/cargo-backoffice/internal/report"
	"github.com/noah-isme/cargo-backoffice/internal/tariff"
)

// Services are the domain services shared by the API and the worker.
type Services struct {
	Events   *events.Bus
	Auth     *auth.Service
	Tariffs  *tariff.Service
	Benefits *benefit.Service
	Branches *branch.Service
	Goods    *goods.Service
	Reports  *report.Service
	Audit    *audit.Service
}

// NewServices wires every service on top of pool and rdb. queue may be nil in
// processes that never enqueue exports.
func NewServices(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, queue report.Enqueuer) (*Services, error) {
	tariffCache := cache.New(rdb, cfg.TariffCacheTTL)
	bus := &events.Bus{
		Store: events.PgStore{DB: pool},
		Notifiers: []events.Notifier{
			events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()},
			events.TopicFilter{
				Topics: events.TariffTopics(),
				Next: events.NotifierFunc(func(ctx context.Context, _ events.Event) error {
					_, err := tariffCache.Bump(ctx, cache.KeyTariffGeneration())
					return err
				}),
			},
		},
	}

	authSvc, err := auth.NewService(auth.Config{
		Repo:            auth.NewRepository(pool),
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Issuer:          cfg.TokenIssuer,
		Audience:        cfg.TokenAudience,
		ClockSkew:       30 * time.Second,
		Logger:          logger.With().Str("component", "auth").Logger(),
	})
	if err != nil {
		return nil, err
	}

	tariffs := &tariff.Service{
		Repo:   tariff.NewRepository(pool),
		Cache:  tariffCache,
		Events: bus,
		Logger: logger.With().Str("component", "tariff").Logger(),
	}
	benefits := &benefit.Service{
		Repo:   benefit.NewRepository(pool),
		Events: bus,
		Logger: logger.With().Str("component", "benefit").Logger(),
	}
	branches := &branch.Service{
		Repo:   branch.NewRepository(pool),
		Cache:  cache.New(rdb, cfg.TariffCacheTTL),
		Events: bus,
		Logger: logger.With().Str("component", "branch").Logger(),
	}
	goodsSvc := &goods.Service{
		Repo:          goods.NewRepository(pool),
		Tariffs:       tariffs,
		Benefits:      benefits,
		Branches:      branches,
		Locker:        lock.Locker{R: rdb, MaxWait: cfg.GoodsLockTTL},
		Events:        bus,
		Logger:        logger.With().Str("component", "goods").Logger(),
		FloorAtZero:   cfg.PricingFloorAtZero,
		DefaultMarkup: cfg.DefaultMarkupPct,
		LockTTL:       cfg.GoodsLockTTL,
		NewID:         uuid.New,
	}
	reports := &report.Service{
		Repo:    report.NewRepository(pool),
		Store:   cache.New(rdb, cfg.ReportExportTTL),
		MaxRows: cfg.ReportExportMaxRows,
		TTL:     cfg.ReportExportTTL,
		Logger:  logger.With().Str("component", "report").Logger(),
	}
	if queue != nil {
		reports.Queue = queue
	}
	auditSvc := &audit.Service{
		Store:        audit.NewStore(pool),
		Enabled:      cfg.AuditEnabled,
		SamplingRate: cfg.AuditSamplingRate,
	}

	return &Services{
		Events:   bus,
		Auth:     authSvc,
		Tariffs:  tariffs,
		Benefits: benefits,
		Branches: branches,
		Goods:    goodsSvc,
		Reports:  reports,
		Audit:    auditSvc,
	}, nil
}
