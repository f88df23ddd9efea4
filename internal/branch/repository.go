package branch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cargo-backoffice/internal/db"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Repository persists branches and their nomenclature whitelist.
type Repository interface {
	List(ctx context.Context, clause query.Clause) ([]Branch, int, error)
	Get(ctx context.Context, id int64) (Branch, error)
	Create(ctx context.Context, in CreateInput) (Branch, error)
	NomenclatureIDs(ctx context.Context, branchID int64) ([]int64, error)
	ReplaceNomenclature(ctx context.Context, branchID int64, ids []int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectBranch = `SELECT b.id, b.code, b.name, b.address, b.created_at FROM branches b`

func scanBranch(row pgx.CollectableRow) (Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.CreatedAt)
	return b, err
}

func (r *repository) List(ctx context.Context, clause query.Clause) ([]Branch, int, error) {
	countSQL, countArgs := clause.Count(`SELECT COUNT(*) FROM branches b`)
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count branches: %w", err)
	}
	sql, args := clause.Select(selectBranch)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list branches: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanBranch)
	if err != nil {
		return nil, 0, fmt.Errorf("scan branches: %w", err)
	}
	return items, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Branch, error) {
	rows, err := r.pool.Query(ctx, selectBranch+` WHERE b.id = $1`, id)
	if err != nil {
		return Branch{}, fmt.Errorf("get branch: %w", err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBranch)
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, ErrNotFound
	}
	return b, err
}

func (r *repository) Create(ctx context.Context, in CreateInput) (Branch, error) {
	const q = `INSERT INTO branches (code, name, address) VALUES ($1, $2, $3)
RETURNING id, code, name, address, created_at`
	var b Branch
	err := r.pool.QueryRow(ctx, q, in.Code, in.Name, in.Address).Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Branch{}, ErrDuplicateCode
		}
		return Branch{}, fmt.Errorf("insert branch: %w", err)
	}
	return b, nil
}

func (r *repository) NomenclatureIDs(ctx context.Context, branchID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT nomenclature_id FROM branch_nomenclature WHERE branch_id = $1 ORDER BY nomenclature_id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("query branch nomenclature: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *repository) ReplaceNomenclature(ctx context.Context, branchID int64, ids []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)`, branchID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM branch_nomenclature WHERE branch_id = $1`, branchID); err != nil {
			return fmt.Errorf("clear branch nomenclature: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `INSERT INTO branch_nomenclature (branch_id, nomenclature_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, branchID, ids)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrUnknownNomenclature
			}
			return fmt.Errorf("insert branch nomenclature: %w", err)
		}
		return nil
	})
}
