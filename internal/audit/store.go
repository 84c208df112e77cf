package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertEntrySQL = `
INSERT INTO pricing_config_audit (actor, action, item_id, method, route, status, client_ip, request_id, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)`

	listEntriesSQL = `
SELECT id, actor, action, item_id, method, route, status,
       COALESCE(client_ip, ''), COALESCE(request_id, ''), metadata, created_at
FROM pricing_config_audit
WHERE item_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
)

// PGStore keeps audit entries in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

// Insert implements Store.
func (s *PGStore) Insert(ctx context.Context, e Entry) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		meta = e.Metadata
	}
	_, err := s.Pool.Exec(ctx, insertEntrySQL,
		e.Actor, e.Action, e.ItemID, e.Method, e.Route, e.Status, e.ClientIP, e.RequestID, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List implements Store, newest first.
func (s *PGStore) List(ctx context.Context, itemID string, limit int) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx, listEntriesSQL, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e    Entry
			meta []byte
		)
		err := row.Scan(&e.ID, &e.Actor, &e.Action, &e.ItemID, &e.Method, &e.Route, &e.Status,
			&e.ClientIP, &e.RequestID, &meta, &e.CreatedAt)
		if len(meta) > 0 {
			e.Metadata = meta
		}
		return e, err
	})
}
