package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/synclog/internal/event"
)

// ErrDuplicateEvent is returned when an appended event id already exists in
// the store. The whole batch is rolled back.
var ErrDuplicateEvent = event.ErrDuplicateEvent

// AppendBatch appends events iff req.ExpectedHead equals the current head.
//
// The head check, commit-sequence allocation, inserts, and head update run
// in one IMMEDIATE transaction. Global sequences are assigned contiguously
// after the head in submission order; every event in the batch shares one
// new commit sequence. A head mismatch is reported in the result, not as an
// error, and writes nothing.
func (s *Store) AppendBatch(ctx context.Context, req event.AppendRequest) (event.AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return event.AppendResult{}, fmt.Errorf("append batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	head, commitSeq, err := readHead(ctx, tx, req.OwnerID, req.StoreID)
	if err != nil {
		return event.AppendResult{}, fmt.Errorf("append batch: %w", err)
	}

	if head != req.ExpectedHead {
		return event.AppendResult{
			Head:     head,
			Mismatch: &event.HeadMismatch{Expected: req.ExpectedHead, Current: head},
		}, nil
	}
	if len(req.Events) == 0 {
		return event.AppendResult{Head: head, Assigned: []event.Assignment{}}, nil
	}

	commitSeq++
	assigned := make([]event.Assignment, len(req.Events))
	for i, ev := range req.Events {
		global := head + int64(i) + 1
		if err := insertEvent(ctx, tx, req.OwnerID, req.StoreID, ev, commitSeq, global); err != nil {
			if isConstraintError(err) {
				return event.AppendResult{}, fmt.Errorf("append batch: event %s: %w", ev.ID, ErrDuplicateEvent)
			}
			return event.AppendResult{}, fmt.Errorf("append batch: insert %s: %w", ev.ID, err)
		}
		assigned[i] = event.Assignment{EventID: ev.ID, CommitSequence: commitSeq, GlobalSequence: global}
	}
	newHead := head + int64(len(req.Events))

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_heads (owner_id, store_id, head_sequence, commit_sequence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, store_id) DO UPDATE SET
			head_sequence = excluded.head_sequence,
			commit_sequence = excluded.commit_sequence
	`, req.OwnerID, req.StoreID, newHead, commitSeq)
	if err != nil {
		return event.AppendResult{}, fmt.Errorf("append batch: update head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return event.AppendResult{}, fmt.Errorf("append batch: commit: %w", err)
	}

	return event.AppendResult{Head: newHead, Assigned: assigned}, nil
}

// GetHeadSequence returns the highest global sequence for (owner, store),
// or 0 if nothing has been committed.
func (s *Store) GetHeadSequence(ctx context.Context, ownerID, storeID string) (int64, error) {
	var head int64
	err := s.db.QueryRowContext(ctx, `
		SELECT head_sequence FROM sync_heads
		WHERE owner_id = ? AND store_id = ?
	`, ownerID, storeID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get head sequence: %w", err)
	}
	return head, nil
}

// LoadSince returns up to limit globally ordered events after since.
// Returns an empty slice (not nil) if none exist.
func (s *Store) LoadSince(ctx context.Context, ownerID, storeID string, since int64, limit int) ([]event.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM sync_events
		WHERE owner_id = ? AND store_id = ?
		  AND global_sequence IS NOT NULL AND global_sequence > ?
		ORDER BY global_sequence ASC, commit_sequence ASC, event_id COLLATE BINARY ASC, version ASC
		LIMIT ?
	`, ownerID, storeID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("load since: %w", err)
	}
	defer rows.Close()

	events := []event.Record{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ResetStore deletes every event and the head row for (owner, store).
// The store ownership row is kept.
func (s *Store) ResetStore(ctx context.Context, ownerID, storeID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_events WHERE owner_id = ? AND store_id = ?`, ownerID, storeID); err != nil {
		return fmt.Errorf("reset store: delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_heads WHERE owner_id = ? AND store_id = ?`, ownerID, storeID); err != nil {
		return fmt.Errorf("reset store: delete head: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset store: commit: %w", err)
	}
	return nil
}

func readHead(ctx context.Context, tx *sql.Tx, ownerID, storeID string) (head, commitSeq int64, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT head_sequence, commit_sequence FROM sync_heads
		WHERE owner_id = ? AND store_id = ?
	`, ownerID, storeID).Scan(&head, &commitSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read head: %w", err)
	}
	return head, commitSeq, nil
}

const eventColumns = `event_id, aggregate_id, event_type, payload, version, occurred_at,
	actor_id, causation_id, correlation_id, epoch, keyring_update,
	scope_id, resource_id, resource_key_id, grant_id, scope_state_ref,
	commit_sequence, global_sequence`

func insertEvent(ctx context.Context, tx *sql.Tx, ownerID, storeID string, ev event.Record, commitSeq, global int64) error {
	var scopeID, resourceID, resourceKeyID, grantID, scopeStateRef sql.NullString
	if !ev.Sharing.IsEmpty() {
		scopeID = nullString(ev.Sharing.ScopeID)
		resourceID = nullString(ev.Sharing.ResourceID)
		resourceKeyID = nullString(ev.Sharing.ResourceKeyID)
		grantID = nullString(ev.Sharing.GrantID)
		scopeStateRef = nullString(ev.Sharing.ScopeStateRef)
	}
	var epoch sql.NullInt64
	if ev.Epoch != nil {
		epoch = sql.NullInt64{Int64: *ev.Epoch, Valid: true}
	}
	payload := ev.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_events (owner_id, store_id, `+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ownerID, storeID,
		ev.ID, ev.AggregateID, ev.EventType, payload, ev.Version, ev.OccurredAt.UTC().UnixNano(),
		nullString(ev.ActorID), nullString(ev.CausationID), nullString(ev.CorrelationID), epoch, ev.KeyringUpdate,
		scopeID, resourceID, resourceKeyID, grantID, scopeStateRef,
		commitSeq, global,
	)
	return err
}

func scanEvent(rows *sql.Rows) (event.Record, error) {
	var (
		ev                                          event.Record
		occurredAt                                  int64
		actorID, causationID, correlationID         sql.NullString
		scopeID, resourceID, resourceKeyID, grantID sql.NullString
		scopeStateRef                               sql.NullString
		epoch, global                               sql.NullInt64
	)
	if err := rows.Scan(
		&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.Version, &occurredAt,
		&actorID, &causationID, &correlationID, &epoch, &ev.KeyringUpdate,
		&scopeID, &resourceID, &resourceKeyID, &grantID, &scopeStateRef,
		&ev.CommitSequence, &global,
	); err != nil {
		return event.Record{}, fmt.Errorf("scan event: %w", err)
	}

	ev.OccurredAt = time.Unix(0, occurredAt).UTC()
	ev.ActorID = actorID.String
	ev.CausationID = causationID.String
	ev.CorrelationID = correlationID.String
	if epoch.Valid {
		ev.Epoch = event.Seq(epoch.Int64)
	}
	if global.Valid {
		ev.GlobalSequence = event.Seq(global.Int64)
	}
	if scopeID.Valid || grantID.Valid || scopeStateRef.Valid {
		ev.Sharing = &event.SharingReference{
			ScopeID:       scopeID.String,
			ResourceID:    resourceID.String,
			ResourceKeyID: resourceKeyID.String,
			GrantID:       grantID.String,
			ScopeStateRef: scopeStateRef.String,
		}
	}
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isConstraintError reports a UNIQUE or PRIMARY KEY violation.
func isConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
