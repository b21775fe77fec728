package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/synclog/internal/event"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestEvent creates an unsynced event with minimal required fields.
func createTestEvent(id string, version int64) event.Record {
	return event.Record{
		ID:          id,
		AggregateID: "agg-1",
		EventType:   "NoteCreated",
		Payload:     []byte("ciphertext-" + id),
		Version:     version,
		OccurredAt:  testEpoch.Add(time.Duration(version) * time.Second),
	}
}

// mustAppend appends events at expected and fails the test on error or mismatch.
func mustAppend(t *testing.T, s *Store, owner, storeID string, expected int64, events ...event.Record) event.AppendResult {
	t.Helper()
	res, err := s.AppendBatch(context.Background(), event.AppendRequest{
		OwnerID:      owner,
		StoreID:      storeID,
		ExpectedHead: expected,
		Events:       events,
	})
	if err != nil {
		t.Fatalf("AppendBatch() failed: %v", err)
	}
	if !res.Committed() {
		t.Fatalf("AppendBatch() mismatch: %+v", res.Mismatch)
	}
	return res
}
