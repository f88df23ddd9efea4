package benefit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cargo-backoffice/internal/db"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
)

// Repository persists discounts and cashback.
type Repository interface {
	// Candidates returns active benefits for the counterparties, newest first.
	Candidates(ctx context.Context, counterpartyIDs []int64) ([]pricing.Candidate, error)
	CreateDiscount(ctx context.Context, in CreateDiscountInput) (Discount, error)
	CreateCashback(ctx context.Context, in CreateCashbackInput) (Cashback, error)
	DeactivateDiscount(ctx context.Context, id int64) (Discount, error)
	DeactivateCashback(ctx context.Context, id int64) (Cashback, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Candidates(ctx context.Context, counterpartyIDs []int64) ([]pricing.Candidate, error) {
	const q = `SELECT id, 'discount' AS kind, counterparty_id, value, created_at
FROM discounts WHERE active AND counterparty_id = ANY($1)
UNION ALL
SELECT id, 'cashback' AS kind, counterparty_id, percent, created_at
FROM cash_backs WHERE active AND counterparty_id = ANY($1)
ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, q, counterpartyIDs)
	if err != nil {
		return nil, fmt.Errorf("query benefit candidates: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Candidate, error) {
		var (
			c    pricing.Candidate
			kind string
			skip any
		)
		if err := row.Scan(&c.ID, &kind, &c.CounterpartyID, &c.Value, &skip); err != nil {
			return pricing.Candidate{}, err
		}
		c.Kind = pricing.BenefitKind(kind)
		return c, nil
	})
}

func (r *repository) CreateDiscount(ctx context.Context, in CreateDiscountInput) (Discount, error) {
	const q = `INSERT INTO discounts (counterparty_id, value) VALUES ($1, $2)
RETURNING id, counterparty_id, value, active, created_at`
	var d Discount
	err := r.pool.QueryRow(ctx, q, in.CounterpartyID, in.Value).Scan(&d.ID, &d.CounterpartyID, &d.Value, &d.Active, &d.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Discount{}, ErrUnknownCounterparty
		}
		return Discount{}, fmt.Errorf("insert discount: %w", err)
	}
	return d, nil
}

func (r *repository) CreateCashback(ctx context.Context, in CreateCashbackInput) (Cashback, error) {
	const q = `INSERT INTO cash_backs (counterparty_id, percent) VALUES ($1, $2)
RETURNING id, counterparty_id, percent, active, created_at`
	var c Cashback
	err := r.pool.QueryRow(ctx, q, in.CounterpartyID, in.Percent).Scan(&c.ID, &c.CounterpartyID, &c.Percent, &c.Active, &c.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Cashback{}, ErrUnknownCounterparty
		}
		return Cashback{}, fmt.Errorf("insert cashback: %w", err)
	}
	return c, nil
}

func (r *repository) DeactivateDiscount(ctx context.Context, id int64) (Discount, error) {
	const q = `UPDATE discounts SET active = FALSE WHERE id = $1 AND active
RETURNING id, counterparty_id, value, active, created_at`
	var d Discount
	if err := r.pool.QueryRow(ctx, q, id).Scan(&d.ID, &d.CounterpartyID, &d.Value, &d.Active, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Discount{}, ErrNotFound
		}
		return Discount{}, fmt.Errorf("deactivate discount: %w", err)
	}
	return d, nil
}

func (r *repository) DeactivateCashback(ctx context.Context, id int64) (Cashback, error) {
	const q = `UPDATE cash_backs SET active = FALSE WHERE id = $1 AND active
RETURNING id, counterparty_id, percent, active, created_at`
	var c Cashback
	if err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.CounterpartyID, &c.Percent, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cashback{}, ErrNotFound
		}
		return Cashback{}, fmt.Errorf("deactivate cashback: %w", err)
	}
	return c, nil
}
