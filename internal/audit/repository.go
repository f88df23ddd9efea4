package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// Store defines the database operations required for auditing.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, clause query.Clause) ([]Entry, int, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore returns a pgx-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Insert(ctx context.Context, e Entry) error {
	const q = `INSERT INTO audit_logs
(actor_kind, actor_user_id, actor_role, action, resource_type, resource_id, method, path, route, status, ip, user_agent, request_id, metadata)
VALUES ($1, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	_, err := s.pool.Exec(ctx, q,
		e.ActorKind, e.ActorUserID, e.ActorRole, e.Action, e.ResourceType, e.ResourceID,
		e.Method, e.Path, e.Route, e.Status, e.IP, e.UserAgent, e.RequestID, metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *pgStore) List(ctx context.Context, clause query.Clause) ([]Entry, int, error) {
	countSQL, countArgs := clause.Count(`SELECT COUNT(*) FROM audit_logs a`)
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	sql, args := clause.Select(`SELECT a.id, a.actor_kind, a.actor_user_id::text, a.actor_role, a.action, a.resource_type,
a.resource_id, a.method, a.path, a.route, a.status, a.ip, a.user_agent, a.request_id, a.metadata, a.created_at
FROM audit_logs a`)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var metadata []byte
		err := row.Scan(&e.ID, &e.ActorKind, &e.ActorUserID, &e.ActorRole, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.CreatedAt)
		e.Metadata = metadata
		return e, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan audit logs: %w", err)
	}
	return items, total, nil
}
