package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/synclog/internal/event"
)

func TestCompareCommit(t *testing.T) {
	tests := []struct {
		name string
		a, b CommitCursor
		want Ordering
	}{
		{"equal", CommitCursor{1, "e1", 1}, CommitCursor{1, "e1", 1}, Equal},
		{"commit sequence first", CommitCursor{1, "z", 9}, CommitCursor{2, "a", 1}, Before},
		{"event id second", CommitCursor{3, "b", 1}, CommitCursor{3, "a", 5}, After},
		{"event id bytewise", CommitCursor{3, "B", 1}, CommitCursor{3, "a", 1}, Before},
		{"version last", CommitCursor{3, "a", 1}, CommitCursor{3, "a", 2}, Before},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareCommit(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareCommit(tt.b, tt.a))
		})
	}
}

func TestCompareEffective(t *testing.T) {
	tests := []struct {
		name string
		a, b EffectiveCursor
		want Ordering
	}{
		{"zero", EffectiveCursor{}, EffectiveCursor{}, Equal},
		{"global dominates", EffectiveCursor{2, 0}, EffectiveCursor{1, 99}, After},
		{"pending breaks ties", EffectiveCursor{4, 1}, EffectiveCursor{4, 2}, Before},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareEffective(tt.a, tt.b))
		})
	}
}

func TestCommitFromRecord(t *testing.T) {
	r := event.Record{ID: "evt-7", Version: 3, CommitSequence: 12, GlobalSequence: event.Seq(40)}
	assert.Equal(t, CommitCursor{CommitSequence: 12, EventID: "evt-7", Version: 3}, CommitFromRecord(r))
}

func TestAdvance_SyncedUpdatesGlobalOnly(t *testing.T) {
	c := EffectiveCursor{GlobalSequence: 3, PendingCommitSequence: 8}
	r := event.Record{ID: "e", CommitSequence: 20, GlobalSequence: event.Seq(4)}

	got := Advance(c, r)
	assert.Equal(t, EffectiveCursor{GlobalSequence: 4, PendingCommitSequence: 8}, got)
}

func TestAdvance_PendingUpdatesPendingOnly(t *testing.T) {
	c := EffectiveCursor{GlobalSequence: 3, PendingCommitSequence: 8}
	r := event.Record{ID: "e", CommitSequence: 9}

	got := Advance(c, r)
	assert.Equal(t, EffectiveCursor{GlobalSequence: 3, PendingCommitSequence: 9}, got)
}

func TestAdvanceAll(t *testing.T) {
	records := []event.Record{
		{ID: "a", CommitSequence: 1, GlobalSequence: event.Seq(1)},
		{ID: "b", CommitSequence: 2},
		{ID: "c", CommitSequence: 1, GlobalSequence: event.Seq(2)},
	}
	got := AdvanceAll(EffectiveCursor{}, records)
	assert.Equal(t, EffectiveCursor{GlobalSequence: 2, PendingCommitSequence: 2}, got)
}

func TestObserved(t *testing.T) {
	c := EffectiveCursor{GlobalSequence: 5, PendingCommitSequence: 2}

	assert.True(t, Observed(c, event.Record{GlobalSequence: event.Seq(5)}))
	assert.False(t, Observed(c, event.Record{GlobalSequence: event.Seq(6)}))
	assert.True(t, Observed(c, event.Record{CommitSequence: 2}))
	assert.False(t, Observed(c, event.Record{CommitSequence: 3}))
}

func TestOrderingString(t *testing.T) {
	assert.Equal(t, "before", Before.String())
	assert.Equal(t, "equal", Equal.String())
	assert.Equal(t, "after", After.String())
	assert.Equal(t, "invalid", Ordering(7).String())
}
