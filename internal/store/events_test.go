package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/synclog/internal/event"
)

func TestAppendBatch_AssignsContiguousSequences(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res := mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1), createTestEvent("e2", 2))
	if res.Head != 2 {
		t.Errorf("Head = %d, want 2", res.Head)
	}
	want := []event.Assignment{{EventID: "e1", CommitSequence: 1, GlobalSequence: 1}, {EventID: "e2", CommitSequence: 1, GlobalSequence: 2}}
	if fmt.Sprint(res.Assigned) != fmt.Sprint(want) {
		t.Errorf("Assigned = %v, want %v", res.Assigned, want)
	}

	res = mustAppend(t, s, "o1", "s1", 2, createTestEvent("e3", 3))
	if res.Head != 3 || res.Assigned[0].GlobalSequence != 3 || res.Assigned[0].CommitSequence != 2 {
		t.Errorf("second append = %+v, want head 3", res)
	}

	head, err := s.GetHeadSequence(ctx, "o1", "s1")
	if err != nil {
		t.Fatalf("GetHeadSequence() failed: %v", err)
	}
	if head != 3 {
		t.Errorf("GetHeadSequence() = %d, want 3", head)
	}
}

func TestAppendBatch_OneCommitSequencePerBatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1), createTestEvent("e2", 2))
	mustAppend(t, s, "o1", "s1", 2, createTestEvent("e3", 3))

	events, err := s.LoadSince(ctx, "o1", "s1", 0, 10)
	if err != nil {
		t.Fatalf("LoadSince() failed: %v", err)
	}
	commits := []int64{}
	for _, ev := range events {
		commits = append(commits, ev.CommitSequence)
	}
	if fmt.Sprint(commits) != "[1 1 2]" {
		t.Errorf("commit sequences = %v, want [1 1 2]", commits)
	}
}

func TestAppendBatch_HeadMismatchWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1))

	res, err := s.AppendBatch(ctx, event.AppendRequest{
		OwnerID: "o1", StoreID: "s1", ExpectedHead: 0,
		Events: []event.Record{createTestEvent("e2", 2)},
	})
	if err != nil {
		t.Fatalf("AppendBatch() failed: %v", err)
	}
	if res.Committed() {
		t.Fatal("expected mismatch, append committed")
	}
	if res.Mismatch.Expected != 0 || res.Mismatch.Current != 1 || res.Head != 1 {
		t.Errorf("mismatch = %+v head = %d, want expected 0 current 1", res.Mismatch, res.Head)
	}

	events, err := s.LoadSince(ctx, "o1", "s1", 0, 10)
	if err != nil {
		t.Fatalf("LoadSince() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("store has %d events, want 1", len(events))
	}
}

func TestAppendBatch_EmptyBatch(t *testing.T) {
	s := createTestStore(t)

	res := mustAppend(t, s, "o1", "s1", 0)
	if res.Head != 0 || len(res.Assigned) != 0 {
		t.Errorf("empty append = %+v, want head 0 and no assignments", res)
	}
}

func TestAppendBatch_DuplicateEventRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1))

	_, err := s.AppendBatch(ctx, event.AppendRequest{
		OwnerID: "o1", StoreID: "s1", ExpectedHead: 1,
		Events: []event.Record{createTestEvent("e2", 2), createTestEvent("e1", 3)},
	})
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("AppendBatch() error = %v, want ErrDuplicateEvent", err)
	}

	head, err := s.GetHeadSequence(ctx, "o1", "s1")
	if err != nil {
		t.Fatalf("GetHeadSequence() failed: %v", err)
	}
	if head != 1 {
		t.Errorf("head after rollback = %d, want 1", head)
	}
}

func TestAppendBatch_IsolatesOwnersAndStores(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1))
	mustAppend(t, s, "o2", "s1", 0, createTestEvent("e1", 1))
	mustAppend(t, s, "o1", "s2", 0, createTestEvent("e1", 1))

	for _, key := range [][2]string{{"o1", "s1"}, {"o2", "s1"}, {"o1", "s2"}} {
		head, err := s.GetHeadSequence(ctx, key[0], key[1])
		if err != nil {
			t.Fatalf("GetHeadSequence(%v) failed: %v", key, err)
		}
		if head != 1 {
			t.Errorf("head for %v = %d, want 1", key, head)
		}
	}
}

func TestAppendBatch_ConcurrentWritersOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const writers = 8
	results := make([]event.AppendResult, writers)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			res, err := s.AppendBatch(ctx, event.AppendRequest{
				OwnerID: "o1", StoreID: "s1", ExpectedHead: 0,
				Events: []event.Record{createTestEvent(fmt.Sprintf("w%d", i), 1)},
			})
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent append failed: %v", err)
	}

	committed := 0
	for _, res := range results {
		if res.Committed() {
			committed++
		} else if res.Mismatch.Current != 1 {
			t.Errorf("loser saw head %d, want 1", res.Mismatch.Current)
		}
	}
	if committed != 1 {
		t.Errorf("%d writers committed, want exactly 1", committed)
	}
}

func TestLoadSince_OrderingAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "o1", "s1", 0, createTestEvent("a", 1), createTestEvent("b", 2), createTestEvent("c", 3))
	mustAppend(t, s, "o1", "s1", 3, createTestEvent("d", 4))

	events, err := s.LoadSince(ctx, "o1", "s1", 1, 2)
	if err != nil {
		t.Fatalf("LoadSince() failed: %v", err)
	}
	if len(events) != 2 || events[0].ID != "b" || events[1].ID != "c" {
		t.Fatalf("LoadSince(1, 2) = %v, want [b c]", ids(events))
	}
	if *events[0].GlobalSequence != 2 || *events[1].GlobalSequence != 3 {
		t.Errorf("global sequences = %d,%d, want 2,3", *events[0].GlobalSequence, *events[1].GlobalSequence)
	}

	events, err = s.LoadSince(ctx, "o1", "s1", 4, 10)
	if err != nil {
		t.Fatalf("LoadSince() failed: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("LoadSince(head) = %v, want empty non-nil slice", events)
	}
}

func TestLoadSince_RoundTripsFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := createTestEvent("e1", 7)
	ev.ActorID = "actor"
	ev.CausationID = "cause"
	ev.CorrelationID = "corr"
	ev.Epoch = event.Seq(3)
	ev.KeyringUpdate = []byte{1, 2, 3}
	ev.Sharing = &event.SharingReference{
		ScopeID: "scope", ResourceID: "res", ResourceKeyID: "key",
		GrantID: "grant", ScopeStateRef: "ref",
	}
	mustAppend(t, s, "o1", "s1", 0, ev)

	events, err := s.LoadSince(ctx, "o1", "s1", 0, 10)
	if err != nil {
		t.Fatalf("LoadSince() failed: %v", err)
	}
	got := events[0]
	if got.AggregateID != ev.AggregateID || got.EventType != ev.EventType || got.Version != 7 {
		t.Errorf("identity fields = %+v", got)
	}
	if !bytes.Equal(got.Payload, ev.Payload) || !bytes.Equal(got.KeyringUpdate, ev.KeyringUpdate) {
		t.Errorf("payloads differ: %q / %v", got.Payload, got.KeyringUpdate)
	}
	if !got.OccurredAt.Equal(ev.OccurredAt) {
		t.Errorf("OccurredAt = %v, want %v", got.OccurredAt, ev.OccurredAt)
	}
	if got.ActorID != "actor" || got.CausationID != "cause" || got.CorrelationID != "corr" {
		t.Errorf("metadata = %q %q %q", got.ActorID, got.CausationID, got.CorrelationID)
	}
	if got.Epoch == nil || *got.Epoch != 3 {
		t.Errorf("Epoch = %v, want 3", got.Epoch)
	}
	if got.Sharing == nil || *got.Sharing != *ev.Sharing {
		t.Errorf("Sharing = %+v, want %+v", got.Sharing, ev.Sharing)
	}
	if got.CommitSequence != 1 || !got.IsSynced() {
		t.Errorf("assigned sequences = %d / %v", got.CommitSequence, got.GlobalSequence)
	}
}

func TestLoadSince_UnsharedEventHasNoReference(t *testing.T) {
	s := createTestStore(t)

	mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1))

	events, err := s.LoadSince(context.Background(), "o1", "s1", 0, 10)
	if err != nil {
		t.Fatalf("LoadSince() failed: %v", err)
	}
	if events[0].Sharing != nil || events[0].Epoch != nil {
		t.Errorf("unshared event decoded with sharing %+v epoch %v", events[0].Sharing, events[0].Epoch)
	}
}

func TestResetStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1), createTestEvent("e2", 2))
	mustAppend(t, s, "o1", "s2", 0, createTestEvent("e1", 1))

	if err := s.ResetStore(ctx, "o1", "s1"); err != nil {
		t.Fatalf("ResetStore() failed: %v", err)
	}

	head, _ := s.GetHeadSequence(ctx, "o1", "s1")
	if head != 0 {
		t.Errorf("head after reset = %d, want 0", head)
	}
	other, _ := s.GetHeadSequence(ctx, "o1", "s2")
	if other != 1 {
		t.Errorf("unrelated store head = %d, want 1", other)
	}

	// Sequences restart from 1 after a reset.
	res := mustAppend(t, s, "o1", "s1", 0, createTestEvent("e1", 1))
	if res.Assigned[0].GlobalSequence != 1 {
		t.Errorf("first sequence after reset = %d, want 1", res.Assigned[0].GlobalSequence)
	}
}

func ids(events []event.Record) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}
