package tariff

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/cargo-backoffice/internal/cache"
	"github.com/noah-isme/cargo-backoffice/internal/events"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Service owns the tariff table. Full-table loads go through a Redis cache and
// concurrent misses share one database round trip.
type Service struct {
	Repo   Repository
	Cache  *cache.Cache
	Events *events.Bus
	Logger zerolog.Logger
	Now    func() time.Time

	group singleflight.Group
}

// Lookup is the resolved price for a single pair.
type Lookup struct {
	BranchID      int64           `json:"branch_id"`
	ProductTypeID int64           `json:"product_type_id"`
	Price         decimal.Decimal `json:"price"`
	Found         bool            `json:"found"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Table returns the authoritative tariff table.
func (s *Service) Table(ctx context.Context) (pricing.TariffTable, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return pricing.TariffTable{}, err
	}
	return pricing.NewTariffTable(entries), nil
}

// entries reads the table cached for the current generation. A load racing
// with an invalidation writes under the old generation, which nobody reads
// again once the counter moved on.
func (s *Service) entries(ctx context.Context) ([]pricing.Tariff, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("tariff service not configured")
	}
	gen, err := s.Cache.Generation(ctx, cache.KeyTariffGeneration())
	if err != nil {
		s.Logger.Warn().Err(err).Msg("tariff_cache_generation_failed")
		return s.load(ctx, "")
	}
	key := cache.KeyTariffTable(gen)
	var cached []pricing.Tariff
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("tariff_cache_read_failed")
	}
	obs.ObserveTariffCache(hit)
	if hit {
		return cached, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.load(loadCtx, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]pricing.Tariff), nil
	}
}

func (s *Service) load(ctx context.Context, key string) ([]pricing.Tariff, error) {
	rows, err := s.Repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tariffs: %w", err)
	}
	entries := toPricing(rows)
	if key == "" {
		return entries, nil
	}
	if err := s.Cache.SetJSON(ctx, key, entries); err != nil {
		s.Logger.Warn().Err(err).Msg("tariff_cache_write_failed")
	}
	return entries, nil
}

// Lookup resolves the tariff for one pair. A missing tariff yields price zero.
func (s *Service) Lookup(ctx context.Context, branchID, productTypeID int64) (Lookup, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{
		BranchID:      branchID,
		ProductTypeID: productTypeID,
		Price:         table.Lookup(branchID, productTypeID),
		Found:         table.Has(branchID, productTypeID),
	}, nil
}

// List returns a filtered page of tariffs.
func (s *Service) List(ctx context.Context, p query.Params) ([]Tariff, int, error) {
	if s == nil || s.Repo == nil {
		return nil, 0, errors.New("tariff service not configured")
	}
	clause, err := p.Compile(Columns, "t.branch_id ASC, t.product_type_id ASC")
	if err != nil {
		return nil, 0, err
	}
	return s.Repo.List(ctx, clause)
}

// Upsert writes prices, invalidates the cached table and emits tariff.updated.
func (s *Service) Upsert(ctx context.Context, items []UpsertInput) ([]Tariff, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("tariff service not configured")
	}
	saved, err := s.Repo.UpsertMany(ctx, items, s.now())
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	for _, t := range saved {
		s.emit(ctx, events.TopicTariffUpdated, t)
	}
	return saved, nil
}

// Delete removes a tariff row. Later lookups for the pair return zero.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if s == nil || s.Repo == nil {
		return errors.New("tariff service not configured")
	}
	removed, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.emit(ctx, events.TopicTariffDeleted, removed)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	gen, err := s.Cache.Bump(ctx, cache.KeyTariffGeneration())
	if err != nil {
		s.Logger.Warn().Err(err).Msg("tariff_cache_invalidate_failed")
		return
	}
	if gen > 0 {
		if err := s.Cache.Delete(ctx, cache.KeyTariffTable(gen-1)); err != nil {
			s.Logger.Warn().Err(err).Msg("tariff_cache_invalidate_failed")
		}
	}
}

func (s *Service) emit(ctx context.Context, topic string, t Tariff) {
	if s.Events == nil {
		return
	}
	aggregate := strconv.FormatInt(t.BranchID, 10) + ":" + strconv.FormatInt(t.ProductTypeID, 10)
	if _, err := s.Events.Emit(ctx, topic, aggregate, t); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Msg("tariff_event_failed")
	}
}
