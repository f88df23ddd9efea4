package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Repository reads report rows.
type Repository interface {
	Rows(ctx context.Context, clause query.Clause) ([]Row, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectRows = `SELECT g.number, g.created_at, b.name, s.name, r.name,
COALESCE(l.weight, 0), COALESCE(l.n, 0), COALESCE(p.n, 0),
g.benefit_kind, g.discount_amount, g.cashback_percent, g.subtotal, g.markup_percent, g.total
FROM goods_records g
JOIN branches b ON b.id = g.branch_id
JOIN counterparties s ON s.id = g.sender_id
JOIN counterparties r ON r.id = g.recipient_id
LEFT JOIN LATERAL (SELECT SUM(weight) AS weight, COUNT(*) AS n FROM goods_lines WHERE record_id = g.id) l ON TRUE
LEFT JOIN LATERAL (SELECT COUNT(*) AS n FROM goods_products WHERE record_id = g.id) p ON TRUE`

func (r *repository) Rows(ctx context.Context, clause query.Clause) ([]Row, error) {
	sql, args := clause.Select(selectRows)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query report rows: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var out Row
		err := row.Scan(&out.Number, &out.CreatedAt, &out.Branch, &out.Sender, &out.Recipient,
			&out.Weight, &out.LineCount, &out.ProductCount,
			&out.BenefitKind, &out.DiscountAmount, &out.CashbackPercent, &out.Subtotal, &out.MarkupPercent, &out.Total)
		return out, err
	})
}
