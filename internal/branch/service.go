package branch

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/cache"
	"github.com/noah-isme/cargo-backoffice/internal/events"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Service manages branches and answers nomenclature availability.
type Service struct {
	Repo   Repository
	Cache  *cache.Cache
	Events *events.Bus
	Logger zerolog.Logger
}

func (s *Service) ready() error {
	if s == nil || s.Repo == nil {
		return errors.New("branch service not configured")
	}
	return nil
}

// List returns branches matching p.
func (s *Service) List(ctx context.Context, p query.Params) ([]Branch, int, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	clause, err := p.Compile(Columns, "b.name ASC, b.id ASC")
	if err != nil {
		return nil, 0, err
	}
	return s.Repo.List(ctx, clause)
}

// Get returns one branch.
func (s *Service) Get(ctx context.Context, id int64) (Branch, error) {
	if err := s.ready(); err != nil {
		return Branch{}, err
	}
	return s.Repo.Get(ctx, id)
}

// Create stores a new branch.
func (s *Service) Create(ctx context.Context, in CreateInput) (Branch, error) {
	if err := s.ready(); err != nil {
		return Branch{}, err
	}
	return s.Repo.Create(ctx, in)
}

// NomenclatureIDs lists the nomenclature available at a branch.
func (s *Service) NomenclatureIDs(ctx context.Context, branchID int64) ([]int64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var ids []int64
	key := cache.KeyBranchWhitelist(branchID)
	if ok, err := s.Cache.GetJSON(ctx, key, &ids); err != nil {
		s.Logger.Warn().Err(err).Int64("branch_id", branchID).Msg("whitelist_cache_read_failed")
	} else if ok {
		return ids, nil
	}
	ids, err := s.Repo.NomenclatureIDs(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	if err := s.Cache.SetJSON(ctx, key, ids); err != nil {
		s.Logger.Warn().Err(err).Int64("branch_id", branchID).Msg("whitelist_cache_write_failed")
	}
	return ids, nil
}

// Whitelist returns the availability set of a branch. Branches without any
// configured nomenclature do not restrict merchandise, so nil is returned.
func (s *Service) Whitelist(ctx context.Context, branchID int64) (pricing.Whitelist, error) {
	if branchID <= 0 {
		return nil, nil
	}
	ids, err := s.NomenclatureIDs(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return pricing.NewWhitelist(ids), nil
}

// SaveNomenclature replaces the whitelist of a branch.
func (s *Service) SaveNomenclature(ctx context.Context, branchID int64, ids []int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	ids = dedupe(ids)
	if err := s.Repo.ReplaceNomenclature(ctx, branchID, ids); err != nil {
		return err
	}
	if err := s.Cache.Delete(ctx, cache.KeyBranchWhitelist(branchID)); err != nil {
		s.Logger.Warn().Err(err).Int64("branch_id", branchID).Msg("whitelist_cache_invalidate_failed")
	}
	if s.Events != nil {
		payload := map[string]any{"branch_id": branchID, "nomenclature_ids": ids}
		if _, err := s.Events.Emit(ctx, events.TopicNomenclatureSaved, strconv.FormatInt(branchID, 10), payload); err != nil {
			s.Logger.Error().Err(err).Int64("branch_id", branchID).Msg("nomenclature_event_failed")
		}
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
