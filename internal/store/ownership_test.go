package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/synclog/internal/ownership"
)

func TestGuard_ClaimThenReuse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	g := ownership.NewGuard(s)

	outcome, err := g.Bind(ctx, "store-a", "alice")
	if err != nil {
		t.Fatalf("Bind() failed: %v", err)
	}
	if outcome != ownership.OutcomeClaimed {
		t.Errorf("first Bind() outcome = %s, want claimed", outcome)
	}

	outcome, err = g.Bind(ctx, "store-a", "alice")
	if err != nil {
		t.Fatalf("second Bind() failed: %v", err)
	}
	if outcome != ownership.OutcomeExisting {
		t.Errorf("second Bind() outcome = %s, want existing", outcome)
	}

	owner, found, err := s.LookupStoreOwner(ctx, "store-a")
	if err != nil || !found || owner != "alice" {
		t.Errorf("LookupStoreOwner() = %q, %v, %v", owner, found, err)
	}
}

func TestGuard_RejectsOtherOwner(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	g := ownership.NewGuard(s)

	if err := g.EnsureStoreOwner(ctx, "store-a", "alice"); err != nil {
		t.Fatalf("EnsureStoreOwner() failed: %v", err)
	}
	err := g.EnsureStoreOwner(ctx, "store-a", "bob")
	var de *ownership.DeniedError
	if !errors.As(err, &de) || de.Code != ownership.CodeOwnedByOther {
		t.Fatalf("EnsureStoreOwner(bob) = %v, want OWNED_BY_OTHER", err)
	}
}

func TestGuard_ConcurrentClaimsSingleWinner(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	g := ownership.NewGuard(s)

	var wins, denials atomic.Int32
	var eg errgroup.Group
	for i := 0; i < 6; i++ {
		owner := fmt.Sprintf("owner-%d", i)
		eg.Go(func() error {
			err := g.EnsureStoreOwner(ctx, "shared-store", owner)
			switch {
			case err == nil:
				wins.Add(1)
			case ownership.IsDenied(err):
				denials.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("concurrent claim failed: %v", err)
	}
	if wins.Load() != 1 || denials.Load() != 5 {
		t.Errorf("wins=%d denials=%d, want 1/5", wins.Load(), denials.Load())
	}
}

func TestGuard_MigratesLegacyStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	g := ownership.NewGuard(s)

	if err := g.EnsureStoreOwner(ctx, "legacy-alice", "alice"); err != nil {
		t.Fatalf("claim legacy: %v", err)
	}
	mustAppend(t, s, "alice", "legacy-alice", 0, createTestEvent("e1", 1), createTestEvent("e2", 2))

	outcome, err := g.Bind(ctx, "ws-1", "alice")
	if err != nil {
		t.Fatalf("Bind() failed: %v", err)
	}
	if outcome != ownership.OutcomeMigrated {
		t.Fatalf("outcome = %s, want migrated", outcome)
	}

	head, err := s.GetHeadSequence(ctx, "alice", "ws-1")
	if err != nil {
		t.Fatalf("GetHeadSequence() failed: %v", err)
	}
	if head != 2 {
		t.Errorf("migrated head = %d, want 2", head)
	}
	events, err := s.LoadSince(ctx, "alice", "ws-1", 0, 10)
	if err != nil {
		t.Fatalf("LoadSince() failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("migrated %d events, want 2", len(events))
	}
	if _, found, _ := s.LookupStoreOwner(ctx, "legacy-alice"); found {
		t.Error("legacy store row still present after migration")
	}

	// Appends continue from the migrated head.
	res := mustAppend(t, s, "alice", "ws-1", 2, createTestEvent("e3", 3))
	if res.Head != 3 {
		t.Errorf("post-migration head = %d, want 3", res.Head)
	}
}

func TestGuard_RefusesNonLegacyMigration(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	g := ownership.NewGuard(s)

	if err := g.EnsureStoreOwner(ctx, "ws-1", "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	err := g.EnsureStoreOwner(ctx, "ws-2", "alice")
	var de *ownership.DeniedError
	if !errors.As(err, &de) || de.Code != ownership.CodeMigrationRefused {
		t.Fatalf("EnsureStoreOwner(ws-2) = %v, want MIGRATION_REFUSED", err)
	}
	if _, found, _ := s.LookupStoreOwner(ctx, "ws-2"); found {
		t.Error("refused migration left a store row behind")
	}
}

func TestGuard_RefusesMigrationOntoExistingEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	g := ownership.NewGuard(s)

	if err := g.EnsureStoreOwner(ctx, "legacy-alice", "alice"); err != nil {
		t.Fatalf("claim legacy: %v", err)
	}
	mustAppend(t, s, "alice", "legacy-alice", 0, createTestEvent("e1", 1))
	// Orphaned events under the target id without a store row.
	mustAppend(t, s, "alice", "ws-1", 0, createTestEvent("x1", 1))

	err := g.EnsureStoreOwner(ctx, "ws-1", "alice")
	var de *ownership.DeniedError
	if !errors.As(err, &de) || de.Code != ownership.CodeMigrationRefused {
		t.Fatalf("EnsureStoreOwner(ws-1) = %v, want MIGRATION_REFUSED", err)
	}
	head, _ := s.GetHeadSequence(ctx, "alice", "legacy-alice")
	if head != 1 {
		t.Errorf("legacy head after refused migration = %d, want 1", head)
	}
}
