package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/synclog/internal/sharing"
)

var (
	_ sharing.ScopeStateReader = (*Store)(nil)
	_ sharing.GrantReader      = (*Store)(nil)
)

// LoadScopeStateByRef returns the scope-state snapshot stored under ref, or
// nil if none exists.
func (s *Store) LoadScopeStateByRef(ctx context.Context, ref string) (*sharing.ScopeState, error) {
	var (
		st      sharing.ScopeState
		prevRef sql.NullString
		members string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ref, scope_id, seq, prev_ref, owner_id, epoch, members
		FROM scope_states WHERE ref = ?
	`, ref).Scan(&st.Ref, &st.ScopeID, &st.Seq, &prevRef, &st.OwnerID, &st.Epoch, &members)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scope state %s: %w", ref, err)
	}
	st.PrevRef = prevRef.String
	if st.Members, err = decodeMembers(members); err != nil {
		return nil, fmt.Errorf("load scope state %s: %w", ref, err)
	}
	return &st, nil
}

// GetScopeHeadRef returns the ref of the scope's current head state.
func (s *Store) GetScopeHeadRef(ctx context.Context, scopeID string) (string, bool, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `
		SELECT ref FROM scope_states WHERE scope_id = ? AND is_head = 1
	`, scopeID).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get scope head %s: %w", scopeID, err)
	}
	return ref, true, nil
}

// LoadGrant returns the grant with grantID, or nil if none exists.
func (s *Store) LoadGrant(ctx context.Context, grantID string) (*sharing.Grant, error) {
	g, err := s.queryGrant(ctx, `WHERE grant_id = ?`, grantID)
	if err != nil {
		return nil, fmt.Errorf("load grant %s: %w", grantID, err)
	}
	return g, nil
}

// GetActiveGrant returns the active grant for (scope, resource), or nil.
func (s *Store) GetActiveGrant(ctx context.Context, scopeID, resourceID string) (*sharing.Grant, error) {
	g, err := s.queryGrant(ctx, `WHERE scope_id = ? AND resource_id = ? AND active = 1`, scopeID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("get active grant %s/%s: %w", scopeID, resourceID, err)
	}
	return g, nil
}

func (s *Store) queryGrant(ctx context.Context, where string, args ...any) (*sharing.Grant, error) {
	var g sharing.Grant
	err := s.db.QueryRowContext(ctx, `
		SELECT grant_id, scope_id, resource_id, resource_key_id, wrapped_key, scope_epoch, scope_state_ref
		FROM resource_grants `+where, args...).
		Scan(&g.GrantID, &g.ScopeID, &g.ResourceID, &g.ResourceKeyID, &g.WrappedKey, &g.ScopeEpoch, &g.ScopeStateRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// RecordScopeState stores st and makes it the scope's head. The previous
// head, if any, is demoted in the same transaction.
func (s *Store) RecordScopeState(ctx context.Context, st sharing.ScopeState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record scope state: begin tx: %w", err)
	}
	defer tx.Rollback()

	members, err := encodeMembers(st.Members)
	if err != nil {
		return fmt.Errorf("record scope state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE scope_states SET is_head = 0 WHERE scope_id = ? AND is_head = 1`, st.ScopeID); err != nil {
		return fmt.Errorf("record scope state: demote head: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scope_states (ref, scope_id, seq, prev_ref, owner_id, epoch, members, is_head)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(ref) DO UPDATE SET is_head = 1
	`, st.Ref, st.ScopeID, st.Seq, nullString(st.PrevRef), st.OwnerID, st.Epoch, members)
	if err != nil {
		return fmt.Errorf("record scope state: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record scope state: commit: %w", err)
	}
	return nil
}

// RecordGrant stores g. When active is true, g replaces any other active
// grant for the same (scope, resource).
func (s *Store) RecordGrant(ctx context.Context, g sharing.Grant, active bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record grant: begin tx: %w", err)
	}
	defer tx.Rollback()

	if active {
		_, err := tx.ExecContext(ctx, `
			UPDATE resource_grants SET active = 0
			WHERE scope_id = ? AND resource_id = ? AND active = 1
		`, g.ScopeID, g.ResourceID)
		if err != nil {
			return fmt.Errorf("record grant: deactivate: %w", err)
		}
	}
	wrapped := g.WrappedKey
	if wrapped == nil {
		wrapped = []byte{}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO resource_grants (grant_id, scope_id, resource_id, resource_key_id, wrapped_key, scope_epoch, scope_state_ref, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(grant_id) DO UPDATE SET active = excluded.active
	`, g.GrantID, g.ScopeID, g.ResourceID, g.ResourceKeyID, wrapped, g.ScopeEpoch, g.ScopeStateRef, boolInt(active))
	if err != nil {
		return fmt.Errorf("record grant: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record grant: commit: %w", err)
	}
	return nil
}

// Members are stored as a JSON array so identities may contain any
// character.
func encodeMembers(members []string) (string, error) {
	if len(members) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(members)
	if err != nil {
		return "", fmt.Errorf("encode members: %w", err)
	}
	return string(b), nil
}

func decodeMembers(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var members []string
	if err := json.Unmarshal([]byte(s), &members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return members, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
