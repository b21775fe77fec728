package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/synclog/internal/cursor"
	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
)

const (
	DefaultMaxAttempts = 5
	DefaultPageSize    = 500
)

// ErrRebaseExhausted is returned when Sync keeps losing the race for the
// head after the configured number of attempts.
var ErrRebaseExhausted = errors.New("replica: push attempts exhausted")

// ConflictError is a conflict Sync cannot resolve by rebasing.
type ConflictError struct {
	Conflict *engine.Conflict
}

func (e *ConflictError) Error() string {
	if e.Conflict.Detail != "" {
		return fmt.Sprintf("replica: push rejected: %s: %s", e.Conflict.Reason, e.Conflict.Detail)
	}
	return fmt.Sprintf("replica: push rejected: %s (head=%d)", e.Conflict.Reason, e.Conflict.Head)
}

// IsConflict returns true if err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IDGenerator mints client event ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event ids.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Replica is a local copy of one store's log. Safe for concurrent use;
// calls are serialized.
type Replica struct {
	mu sync.Mutex

	remote      Remote
	ids         IDGenerator
	now         func() time.Time
	maxAttempts int
	pageSize    int

	synced      []event.Record
	pending     []event.Record
	cursor      cursor.EffectiveCursor
	localCommit int64
	versions    map[string]int64
}

// Option configures a Replica.
type Option func(*Replica)

// WithIDGenerator overrides UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Replica) { r.ids = g }
}

// WithClock overrides time.Now for OccurredAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Replica) { r.now = now }
}

// WithMaxAttempts bounds the push attempts of one Sync.
func WithMaxAttempts(n int) Option {
	return func(r *Replica) { r.maxAttempts = n }
}

// WithPageSize sets the pull page size.
func WithPageSize(n int) Option {
	return func(r *Replica) { r.pageSize = n }
}

// New creates an empty replica over remote.
func New(remote Remote, opts ...Option) *Replica {
	r := &Replica{
		remote:      remote,
		ids:         UUIDv7Generator{},
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
		pageSize:    DefaultPageSize,
		versions:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends a pending local event and returns it.
func (r *Replica) Record(aggregateID, eventType string, payload []byte, ref *event.SharingReference) event.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.localCommit++
	r.versions[aggregateID]++
	rec := event.Record{
		ID:             r.ids.Generate(),
		AggregateID:    aggregateID,
		EventType:      eventType,
		Payload:        payload,
		Version:        r.versions[aggregateID],
		OccurredAt:     r.now().UTC(),
		Sharing:        ref,
		CommitSequence: r.localCommit,
	}
	r.pending = append(r.pending, rec)
	r.cursor = cursor.Advance(r.cursor, rec)
	return rec
}

// SyncResult summarizes one Sync.
type SyncResult struct {
	Pushed   int
	Rebased  int
	Attempts int
	Head     int64
}

// Sync pushes pending events, rebasing on server_ahead until the push
// lands or attempts run out. Other conflicts are returned as
// *ConflictError with pending events left in place.
func (r *Replica) Sync(ctx context.Context) (SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result SyncResult
	result.Head = r.cursor.GlobalSequence
	if len(r.pending) == 0 {
		return result, nil
	}

	for result.Attempts < r.maxAttempts {
		result.Attempts++
		batch := r.pendingInCommitOrder()
		res, err := r.remote.Push(ctx, r.cursor.GlobalSequence, batch)
		if err != nil {
			return result, fmt.Errorf("replica: push: %w", err)
		}
		if res.OK {
			r.confirm(batch, res.Assigned)
			result.Pushed = len(batch)
			result.Head = r.cursor.GlobalSequence
			return result, nil
		}

		c := res.Conflict
		if c == nil || c.Reason != engine.ReasonServerAhead {
			if c == nil {
				c = &engine.Conflict{Head: res.Head}
			}
			return result, &ConflictError{Conflict: c}
		}

		result.Rebased += r.apply(c.Missing)
		if r.cursor.GlobalSequence < c.Head {
			n, err := r.pullLocked(ctx, c.Head)
			if err != nil {
				return result, err
			}
			result.Rebased += n
		}
		result.Head = r.cursor.GlobalSequence
		slog.Debug("replica rebased", "head", result.Head, "pending", len(r.pending), "attempt", result.Attempts)
	}
	return result, ErrRebaseExhausted
}

// Pull applies every remote event after the cursor and returns how many
// were new.
func (r *Replica) Pull(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pullLocked(ctx, -1)
}

// pullLocked pages until the remote has nothing more or, when target is
// non-negative, the cursor reaches target.
func (r *Replica) pullLocked(ctx context.Context, target int64) (int, error) {
	applied := 0
	for {
		page, err := r.remote.Pull(ctx, r.cursor.GlobalSequence, r.pageSize)
		if err != nil {
			return applied, fmt.Errorf("replica: pull: %w", err)
		}
		applied += r.apply(page.Events)
		if len(page.Events) == 0 || r.cursor.GlobalSequence >= page.Head {
			return applied, nil
		}
		if target >= 0 && r.cursor.GlobalSequence >= target {
			return applied, nil
		}
	}
}

// apply folds synced remote events into the replica. A remote event whose
// id matches a pending one confirms it.
func (r *Replica) apply(events []event.Record) int {
	applied := 0
	for _, ev := range events {
		if ev.GlobalSequence == nil || cursor.Observed(r.cursor, ev) {
			continue
		}
		r.dropPending(ev.ID)
		r.synced = append(r.synced, ev)
		r.cursor = cursor.Advance(r.cursor, ev)
		if ev.Version > r.versions[ev.AggregateID] {
			r.versions[ev.AggregateID] = ev.Version
		}
		applied++
	}
	return applied
}

func (r *Replica) confirm(batch []event.Record, assigned []event.Assignment) {
	byID := make(map[string]event.Assignment, len(assigned))
	for _, a := range assigned {
		byID[a.EventID] = a
	}
	for _, ev := range batch {
		a, ok := byID[ev.ID]
		if !ok {
			continue
		}
		// The server's sequences replace the local ones so the synced record
		// matches what a pull of the log returns.
		ev.CommitSequence = a.CommitSequence
		ev.GlobalSequence = event.Seq(a.GlobalSequence)
		r.dropPending(ev.ID)
		r.synced = append(r.synced, ev)
		r.cursor = cursor.Advance(r.cursor, ev)
	}
}

func (r *Replica) dropPending(id string) {
	for i, p := range r.pending {
		if p.ID == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

func (r *Replica) pendingInCommitOrder() []event.Record {
	batch := make([]event.Record, len(r.pending))
	copy(batch, r.pending)
	sort.SliceStable(batch, func(i, j int) bool {
		return cursor.CompareCommit(cursor.CommitFromRecord(batch[i]), cursor.CommitFromRecord(batch[j])) == cursor.Before
	})
	return batch
}

// Cursor returns the current effective cursor.
func (r *Replica) Cursor() cursor.EffectiveCursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Events returns synced events in global order followed by pending events
// in commit order.
func (r *Replica) Events() []event.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Record, 0, len(r.synced)+len(r.pending))
	out = append(out, r.synced...)
	return append(out, r.pendingInCommitOrder()...)
}

// Pending returns events not yet acknowledged by the server.
func (r *Replica) Pending() []event.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingInCommitOrder()
}
