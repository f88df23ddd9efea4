package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cargo-backoffice/internal/db"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Repository persists tariffs.
type Repository interface {
	List(ctx context.Context, clause query.Clause) ([]Tariff, int, error)
	// All returns every tariff, most recently updated first.
	All(ctx context.Context) ([]Tariff, error)
	UpsertMany(ctx context.Context, items []UpsertInput, at time.Time) ([]Tariff, error)
	Delete(ctx context.Context, id int64) (Tariff, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectTariff = `SELECT t.id, t.branch_id, t.product_type_id, t.price, t.updated_at FROM tariffs t`

func (r *repository) List(ctx context.Context, clause query.Clause) ([]Tariff, int, error) {
	countSQL, countArgs := clause.Count(`SELECT COUNT(*) FROM tariffs t`)
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tariffs: %w", err)
	}
	sql, args := clause.Select(selectTariff)
	items, err := r.query(ctx, r.pool, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) All(ctx context.Context) ([]Tariff, error) {
	return r.query(ctx, r.pool, selectTariff+` ORDER BY t.updated_at DESC, t.id DESC`)
}

func (r *repository) UpsertMany(ctx context.Context, items []UpsertInput, at time.Time) ([]Tariff, error) {
	const q = `INSERT INTO tariffs (branch_id, product_type_id, price, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT tariffs_branch_product_type_key
DO UPDATE SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
RETURNING id, branch_id, product_type_id, price, updated_at`

	out := make([]Tariff, 0, len(items))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, item := range items {
			var t Tariff
			err := tx.QueryRow(ctx, q, item.BranchID, item.ProductTypeID, item.Price, at).
				Scan(&t.ID, &t.BranchID, &t.ProductTypeID, &t.Price, &t.UpdatedAt)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return fmt.Errorf("upsert tariff %d/%d: %w", item.BranchID, item.ProductTypeID, ErrUnknownReference)
				}
				return fmt.Errorf("upsert tariff: %w", err)
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Delete(ctx context.Context, id int64) (Tariff, error) {
	const q = `DELETE FROM tariffs WHERE id = $1 RETURNING id, branch_id, product_type_id, price, updated_at`
	var t Tariff
	err := r.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.BranchID, &t.ProductTypeID, &t.Price, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tariff{}, ErrNotFound
		}
		return Tariff{}, fmt.Errorf("delete tariff: %w", err)
	}
	return t, nil
}

func (r *repository) query(ctx context.Context, q db.DBTX, sql string, args ...any) ([]Tariff, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query tariffs: %w", err)
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		var t Tariff
		if err := rows.Scan(&t.ID, &t.BranchID, &t.ProductTypeID, &t.Price, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tariff: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
