package goods

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cargo-backoffice/internal/db"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// TxHook runs inside the write transaction after the record rows are stored.
// Implementations without a database pass a nil tx.
type TxHook func(ctx context.Context, tx db.DBTX) error

// Repository persists goods records.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	// List returns record headers without lines or products.
	List(ctx context.Context, clause query.Clause) ([]Record, int, error)
	Nomenclatures(ctx context.Context, ids []int64) (map[int64]Nomenclature, error)
	// Create stores a new record and fills in its number, version and timestamps.
	Create(ctx context.Context, rec *Record, sub pricing.Submission, hook TxHook) error
	// Update applies an edit submission when rec.Version still matches the
	// stored version, then bumps the version.
	Update(ctx context.Context, rec *Record, sub pricing.Submission, hook TxHook) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectRecord = `SELECT g.id, g.number, g.sender_id, g.recipient_id, g.branch_id, g.markup_percent,
g.benefit_kind, g.benefit_id, g.discount_amount, g.cashback_percent, g.cashback_target, g.benefit_party_id,
g.subtotal, g.total, COALESCE(g.created_by::text, ''), g.version, g.created_at, g.updated_at
FROM goods_records g`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec          Record
		kind, target string
	)
	err := row.Scan(&rec.ID, &rec.Number, &rec.SenderID, &rec.RecipientID, &rec.BranchID, &rec.MarkupPercent,
		&kind, &rec.Benefit.ID, &rec.Benefit.DiscountAmount, &rec.Benefit.CashbackPercent, &target, &rec.Benefit.CounterpartyID,
		&rec.Subtotal, &rec.Total, &rec.CreatedBy, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Benefit.Kind = pricing.BenefitKind(kind)
	rec.Benefit.Target = pricing.Party(target)
	return rec, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, selectRecord+` WHERE g.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get goods record: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, nomenclature_id, product_type_id, weight, unit_price, sum, price_locked
FROM goods_lines WHERE record_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return Record{}, fmt.Errorf("query goods lines: %w", err)
	}
	rec.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.LineItem, error) {
		l := pricing.LineItem{Origin: pricing.OriginPersisted}
		err := row.Scan(&l.ID, &l.NomenclatureID, &l.ProductTypeID, &l.Weight, &l.UnitPrice, &l.Sum, &l.PriceLocked)
		return l, err
	})
	if err != nil {
		return Record{}, fmt.Errorf("scan goods lines: %w", err)
	}

	rows, err = r.pool.Query(ctx, `SELECT id, name, nomenclature_id, price, quantity, sum, editable
FROM goods_products WHERE record_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return Record{}, fmt.Errorf("query goods products: %w", err)
	}
	rec.Products, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Product, error) {
		p := pricing.Product{Origin: pricing.OriginPersisted}
		err := row.Scan(&p.ID, &p.Name, &p.NomenclatureID, &p.Price, &p.Quantity, &p.Sum, &p.Editable)
		return p, err
	})
	if err != nil {
		return Record{}, fmt.Errorf("scan goods products: %w", err)
	}
	return rec, nil
}

func (r *repository) List(ctx context.Context, clause query.Clause) ([]Record, int, error) {
	countSQL, countArgs := clause.Count(`SELECT COUNT(*) FROM goods_records g`)
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count goods records: %w", err)
	}
	sql, args := clause.Select(selectRecord)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list goods records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan goods record: %w", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *repository) Nomenclatures(ctx context.Context, ids []int64) (map[int64]Nomenclature, error) {
	out := make(map[int64]Nomenclature, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, price, editable FROM nomenclatures WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query nomenclatures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n Nomenclature
		if err := rows.Scan(&n.ID, &n.Name, &n.Price, &n.Editable); err != nil {
			return nil, fmt.Errorf("scan nomenclature: %w", err)
		}
		out[n.ID] = n
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, rec *Record, sub pricing.Submission, hook TxHook) error {
	return r.write(ctx, hook, func(tx pgx.Tx) error {
		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('goods_number_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("next goods number: %w", err)
		}
		rec.Number = FormatNumber(seq)

		const q = `INSERT INTO goods_records (id, number, sender_id, recipient_id, branch_id, markup_percent,
benefit_kind, benefit_id, discount_amount, cashback_percent, cashback_target, benefit_party_id,
subtotal, total, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, '')::uuid)
RETURNING version, created_at, updated_at`
		b := rec.Benefit
		err := tx.QueryRow(ctx, q, rec.ID, rec.Number, rec.SenderID, rec.RecipientID, rec.BranchID, rec.MarkupPercent,
			string(b.Kind), b.ID, b.DiscountAmount, b.CashbackPercent, string(b.Target), b.CounterpartyID,
			rec.Subtotal, rec.Total, rec.CreatedBy).Scan(&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert goods record: %w", err)
		}
		return writeRows(ctx, tx, rec.ID, sub, pricing.ModeCreate)
	})
}

func (r *repository) Update(ctx context.Context, rec *Record, sub pricing.Submission, hook TxHook) error {
	return r.write(ctx, hook, func(tx pgx.Tx) error {
		const q = `UPDATE goods_records SET sender_id = $3, recipient_id = $4, branch_id = $5, markup_percent = $6,
benefit_kind = $7, benefit_id = $8, discount_amount = $9, cashback_percent = $10, cashback_target = $11,
benefit_party_id = $12, subtotal = $13, total = $14, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
RETURNING version, updated_at`
		b := rec.Benefit
		err := tx.QueryRow(ctx, q, rec.ID, rec.Version, rec.SenderID, rec.RecipientID, rec.BranchID, rec.MarkupPercent,
			string(b.Kind), b.ID, b.DiscountAmount, b.CashbackPercent, string(b.Target), b.CounterpartyID,
			rec.Subtotal, rec.Total).Scan(&rec.Version, &rec.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrVersionConflict
			}
			return fmt.Errorf("update goods record: %w", err)
		}
		return writeRows(ctx, tx, rec.ID, sub, pricing.ModeEdit)
	})
}

func (r *repository) write(ctx context.Context, hook TxHook, fn func(tx pgx.Tx) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if hook != nil {
			return hook(ctx, tx)
		}
		return nil
	})
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}
	return err
}

type rowWrite int

const (
	rowSkip rowWrite = iota
	rowInsert
	rowUpdate
	rowDelete
	rowMove
)

type rowFlags struct {
	created, updated, deleted bool
}

type rowPlan struct {
	write    rowWrite
	position int
}

// planRows picks the statement for each submitted row. Surviving rows are
// numbered from zero in submission order; untouched rows of an edit
// submission are moved when earlier rows were deleted.
func planRows(rows []rowFlags, mode pricing.Mode) []rowPlan {
	edit := mode == pricing.ModeEdit
	out := make([]rowPlan, len(rows))
	pos := 0
	for i, r := range rows {
		if r.deleted {
			out[i] = rowPlan{write: rowDelete, position: -1}
			continue
		}
		switch {
		case r.updated:
			out[i].write = rowUpdate
		case r.created || !edit:
			out[i].write = rowInsert
		default:
			out[i].write = rowMove
		}
		out[i].position = pos
		pos++
	}
	return out
}

// writeRows applies the annotated lines of a submission. Create-mode
// submissions carry no flags, so every row is inserted.
func writeRows(ctx context.Context, tx pgx.Tx, recordID uuid.UUID, sub pricing.Submission, mode pricing.Mode) error {
	const (
		insertLine = `INSERT INTO goods_lines (id, record_id, nomenclature_id, product_type_id, weight, unit_price, sum, price_locked, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		updateLine = `UPDATE goods_lines SET nomenclature_id = $3, product_type_id = $4, weight = $5, unit_price = $6, sum = $7,
price_locked = $8, position = $9 WHERE id = $1 AND record_id = $2`
		moveLine      = `UPDATE goods_lines SET position = $3 WHERE id = $1 AND record_id = $2 AND position <> $3`
		deleteLine    = `DELETE FROM goods_lines WHERE id = $1 AND record_id = $2`
		insertProduct = `INSERT INTO goods_products (id, record_id, name, nomenclature_id, price, quantity, sum, editable, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		updateProduct = `UPDATE goods_products SET price = $3, quantity = $4, sum = $5, position = $6 WHERE id = $1 AND record_id = $2`
		moveProduct   = `UPDATE goods_products SET position = $3 WHERE id = $1 AND record_id = $2 AND position <> $3`
		deleteProduct = `DELETE FROM goods_products WHERE id = $1 AND record_id = $2`
	)
	lineFlags := make([]rowFlags, len(sub.Lines))
	for i, l := range sub.Lines {
		lineFlags[i] = rowFlags{created: l.IsCreated, updated: l.IsUpdated, deleted: l.IsDeleted}
	}
	for i, plan := range planRows(lineFlags, mode) {
		l := sub.Lines[i]
		var err error
		switch plan.write {
		case rowDelete:
			_, err = tx.Exec(ctx, deleteLine, l.ID, recordID)
		case rowUpdate:
			_, err = tx.Exec(ctx, updateLine, l.ID, recordID, l.NomenclatureID, l.ProductTypeID, l.Weight, l.UnitPrice, l.Sum, l.PriceLocked, plan.position)
		case rowInsert:
			_, err = tx.Exec(ctx, insertLine, l.ID, recordID, l.NomenclatureID, l.ProductTypeID, l.Weight, l.UnitPrice, l.Sum, l.PriceLocked, plan.position)
		case rowMove:
			_, err = tx.Exec(ctx, moveLine, l.ID, recordID, plan.position)
		}
		if err != nil {
			return fmt.Errorf("write goods line %s: %w", l.ID, err)
		}
	}

	productFlags := make([]rowFlags, len(sub.Products))
	for i, p := range sub.Products {
		productFlags[i] = rowFlags{created: p.IsCreated, updated: p.IsUpdated, deleted: p.IsDeleted}
	}
	for i, plan := range planRows(productFlags, mode) {
		p := sub.Products[i]
		var err error
		switch plan.write {
		case rowDelete:
			_, err = tx.Exec(ctx, deleteProduct, p.ID, recordID)
		case rowUpdate:
			_, err = tx.Exec(ctx, updateProduct, p.ID, recordID, p.Price, p.Quantity, p.Sum, plan.position)
		case rowInsert:
			_, err = tx.Exec(ctx, insertProduct, p.ID, recordID, p.Name, p.NomenclatureID, p.Price, p.Quantity, p.Sum, p.Editable, plan.position)
		case rowMove:
			_, err = tx.Exec(ctx, moveProduct, p.ID, recordID, plan.position)
		}
		if err != nil {
			return fmt.Errorf("write goods product %s: %w", p.ID, err)
		}
	}
	return nil
}
