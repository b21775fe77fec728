package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synclog/internal/event"
	"github.com/roach88/synclog/internal/sharing"
	"github.com/roach88/synclog/internal/store"
)

func seedScope(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.RecordScopeState(ctx, sharing.ScopeState{Ref: "ref-0", ScopeID: "scope-1", OwnerID: "U1"}))
	require.NoError(t, s.RecordGrant(ctx, sharing.Grant{
		GrantID: "grant-1", ScopeID: "scope-1", ResourceID: "doc-1",
		ResourceKeyID: "key-1", WrappedKey: []byte{1}, ScopeStateRef: "ref-0",
	}, true))
}

func shared(id, grant, ref string) event.Record {
	r := ev(id, 1)
	r.Sharing = &event.SharingReference{
		ScopeID:       "scope-1",
		ResourceID:    "doc-1",
		ResourceKeyID: "key-1",
		GrantID:       grant,
		ScopeStateRef: ref,
	}
	return r
}

func TestPush_SharingReasons(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		events []event.Record
		reason ConflictReason
	}{
		{"unknown scope state", []event.Record{shared("a", "grant-1", "ref-x")}, ReasonMissingDeps},
		{"unknown grant", []event.Record{shared("a", "grant-x", "ref-0")}, ReasonMissingDeps},
		{"stale scope state", []event.Record{shared("a", "grant-1", "ref-0")}, ReasonStaleScopeState},
		{"stale grant", []event.Record{shared("a", "grant-1", "ref-1")}, ReasonStaleGrant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestStore(t)
			seedScope(t, s)
			if tt.reason == ReasonStaleScopeState || tt.reason == ReasonStaleGrant {
				// Rotate the scope head; grant-2 becomes active for doc-1.
				require.NoError(t, s.RecordScopeState(ctx, sharing.ScopeState{Ref: "ref-1", ScopeID: "scope-1", Seq: 1, PrevRef: "ref-0", OwnerID: "U1", Epoch: 1}))
				require.NoError(t, s.RecordGrant(ctx, sharing.Grant{
					GrantID: "grant-2", ScopeID: "scope-1", ResourceID: "doc-1",
					ResourceKeyID: "key-2", WrappedKey: []byte{2}, ScopeEpoch: 1, ScopeStateRef: "ref-1",
				}, true))
			}
			e := newSharingEngine(t, s)

			res, err := e.Push(ctx, "U1", "S1", 0, tt.events)
			require.NoError(t, err)
			require.NotNil(t, res.Conflict)
			assert.Equal(t, tt.reason, res.Conflict.Reason)
			assert.Equal(t, int64(0), res.Head)
			assert.NotEmpty(t, res.Conflict.Detail)
		})
	}
}

func TestPush_FailingEventRejectsWholeBatch(t *testing.T) {
	s := setupTestStore(t)
	seedScope(t, s)
	e := newSharingEngine(t, s)
	ctx := context.Background()

	batch := []event.Record{
		ev("plain", 1),
		shared("ok", "grant-1", "ref-0"),
		shared("bad", "grant-1", "ref-old"),
	}
	res, err := e.Push(ctx, "U1", "S1", 0, batch)
	require.NoError(t, err)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, ReasonMissingDeps, res.Conflict.Reason)
	assert.Contains(t, res.Conflict.Detail, "bad")

	page, err := e.Pull(ctx, "U1", "S1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
}

func TestPush_CurrentSharingCommits(t *testing.T) {
	s := setupTestStore(t)
	seedScope(t, s)
	e := newSharingEngine(t, s)

	assert.Equal(t, sharing.ModeEnforced, e.SharingMode())

	res, err := e.Push(context.Background(), "U1", "S1", 0, []event.Record{shared("a", "grant-1", "ref-0"), ev("b", 2)})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int64(2), res.Head)
}

func TestPush_DisabledModeSkipsSharingChecks(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, ProfileDevelopment)

	assert.Equal(t, sharing.ModeDisabled, e.SharingMode())

	res, err := e.Push(context.Background(), "U1", "S1", 0, []event.Record{shared("a", "nope", "nope")})
	require.NoError(t, err)
	assert.True(t, res.OK)
}
