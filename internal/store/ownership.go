package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/synclog/internal/ownership"
)

// WithinOwnershipTx runs fn against the store ownership relation inside one
// IMMEDIATE transaction. The transaction commits iff fn returns nil.
func (s *Store) WithinOwnershipTx(ctx context.Context, fn func(ownership.Relation) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ownership tx: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlRelation{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ownership tx: commit: %w", err)
	}
	return nil
}

// LookupStoreOwner returns the owner bound to storeID outside any
// transaction. Used by the CLI and diagnostics.
func (s *Store) LookupStoreOwner(ctx context.Context, storeID string) (string, bool, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM sync_stores WHERE store_id = ?`, storeID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup store owner: %w", err)
	}
	return owner, true, nil
}

type sqlRelation struct {
	tx *sql.Tx
}

var _ ownership.Relation = (*sqlRelation)(nil)

func (r *sqlRelation) StoreOwner(ctx context.Context, storeID string) (string, bool, error) {
	var owner string
	err := r.tx.QueryRowContext(ctx, `SELECT owner_id FROM sync_stores WHERE store_id = ?`, storeID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

func (r *sqlRelation) StoresOwnedBy(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT store_id FROM sync_stores
		WHERE owner_id = ?
		ORDER BY store_id COLLATE BINARY ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *sqlRelation) InsertStore(ctx context.Context, storeID, ownerID string) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sync_stores (store_id, owner_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(store_id) DO NOTHING
	`, storeID, ownerID, time.Now().UTC().UnixNano())
	return err
}

func (r *sqlRelation) CountEvents(ctx context.Context, ownerID, storeID string) (int64, error) {
	var n int64
	err := r.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_events WHERE owner_id = ? AND store_id = ?
	`, ownerID, storeID).Scan(&n)
	return n, err
}

func (r *sqlRelation) MoveStore(ctx context.Context, ownerID, fromStoreID, toStoreID string) error {
	stmts := []struct {
		name  string
		query string
		args  []any
	}{
		{"clear target head", `DELETE FROM sync_heads WHERE owner_id = ? AND store_id = ?`,
			[]any{ownerID, toStoreID}},
		{"move events", `UPDATE sync_events SET store_id = ? WHERE owner_id = ? AND store_id = ?`,
			[]any{toStoreID, ownerID, fromStoreID}},
		{"move head", `UPDATE sync_heads SET store_id = ? WHERE owner_id = ? AND store_id = ?`,
			[]any{toStoreID, ownerID, fromStoreID}},
		{"rename store", `UPDATE sync_stores SET store_id = ? WHERE store_id = ? AND owner_id = ?`,
			[]any{toStoreID, fromStoreID, ownerID}},
	}
	for _, st := range stmts {
		if _, err := r.tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}
