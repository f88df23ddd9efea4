package benefit

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/events"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
)

// Service resolves and maintains counterparty benefits.
type Service struct {
	Repo   Repository
	Events *events.Bus
	Logger zerolog.Logger
}

// Candidates returns the active benefits of either party.
func (s *Service) Candidates(ctx context.Context, senderID, recipientID int64) ([]pricing.Candidate, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("benefit service not configured")
	}
	ids := make([]int64, 0, 2)
	for _, id := range []int64{senderID, recipientID} {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.Repo.Candidates(ctx, ids)
}

// Resolve selects the single active benefit for a sender/recipient pair.
func (s *Service) Resolve(ctx context.Context, senderID, recipientID int64) (pricing.ActiveBenefit, error) {
	candidates, err := s.Candidates(ctx, senderID, recipientID)
	if err != nil {
		return pricing.ActiveBenefit{}, err
	}
	return pricing.SelectBenefit(senderID, recipientID, candidates), nil
}

// CreateDiscount stores a new discount.
func (s *Service) CreateDiscount(ctx context.Context, in CreateDiscountInput) (Discount, error) {
	if s == nil || s.Repo == nil {
		return Discount{}, errors.New("benefit service not configured")
	}
	d, err := s.Repo.CreateDiscount(ctx, in)
	if err != nil {
		return Discount{}, err
	}
	s.emit(ctx, d.CounterpartyID, map[string]any{"action": "created", "kind": pricing.BenefitDiscount, "benefit": d})
	return d, nil
}

// CreateCashback stores a new cashback.
func (s *Service) CreateCashback(ctx context.Context, in CreateCashbackInput) (Cashback, error) {
	if s == nil || s.Repo == nil {
		return Cashback{}, errors.New("benefit service not configured")
	}
	if in.Percent.GreaterThan(hundred) {
		return Cashback{}, ErrPercentRange
	}
	c, err := s.Repo.CreateCashback(ctx, in)
	if err != nil {
		return Cashback{}, err
	}
	s.emit(ctx, c.CounterpartyID, map[string]any{"action": "created", "kind": pricing.BenefitCashback, "benefit": c})
	return c, nil
}

// DeleteDiscount deactivates a discount.
func (s *Service) DeleteDiscount(ctx context.Context, id int64) error {
	if s == nil || s.Repo == nil {
		return errors.New("benefit service not configured")
	}
	d, err := s.Repo.DeactivateDiscount(ctx, id)
	if err != nil {
		return err
	}
	s.emit(ctx, d.CounterpartyID, map[string]any{"action": "deleted", "kind": pricing.BenefitDiscount, "id": d.ID})
	return nil
}

// DeleteCashback deactivates a cashback.
func (s *Service) DeleteCashback(ctx context.Context, id int64) error {
	if s == nil || s.Repo == nil {
		return errors.New("benefit service not configured")
	}
	c, err := s.Repo.DeactivateCashback(ctx, id)
	if err != nil {
		return err
	}
	s.emit(ctx, c.CounterpartyID, map[string]any{"action": "deleted", "kind": pricing.BenefitCashback, "id": c.ID})
	return nil
}

func (s *Service) emit(ctx context.Context, counterpartyID int64, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, events.TopicBenefitChanged, strconv.FormatInt(counterpartyID, 10), payload); err != nil {
		s.Logger.Error().Err(err).Int64("counterparty_id", counterpartyID).Msg("benefit_event_failed")
	}
}
