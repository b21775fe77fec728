package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"sync_stores", "sync_heads", "sync_events", "scope_states", "resource_grants"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_EventsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "sync_events")
	expected := []string{
		"owner_id", "store_id", "event_id", "aggregate_id", "event_type", "payload",
		"version", "occurred_at", "epoch", "keyring_update", "scope_id", "grant_id",
		"scope_state_ref", "commit_sequence", "global_sequence",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("sync_events table missing column %q", col)
		}
	}
}

func TestConstraint_GlobalSequenceUniquePerStore(t *testing.T) {
	s := createTestStore(t)

	insert := `
		INSERT INTO sync_events (owner_id, store_id, event_id, aggregate_id, event_type, payload, version, occurred_at, commit_sequence, global_sequence)
		VALUES (?, ?, ?, 'agg', 'T', x'', 1, 0, 1, ?)
	`
	if _, err := s.db.Exec(insert, "o1", "s1", "e1", 1); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.db.Exec(insert, "o1", "s1", "e2", 1); err == nil {
		t.Error("expected UNIQUE violation on global_sequence, got nil")
	}
	if _, err := s.db.Exec(insert, "o1", "s2", "e2", 1); err != nil {
		t.Errorf("same global sequence in another store should be allowed: %v", err)
	}
}

func TestConstraint_SingleScopeHead(t *testing.T) {
	s := createTestStore(t)

	insert := `INSERT INTO scope_states (ref, scope_id, seq, owner_id, epoch, is_head) VALUES (?, 'scope', ?, 'o', 0, 1)`
	if _, err := s.db.Exec(insert, "r1", 0); err != nil {
		t.Fatalf("first head insert failed: %v", err)
	}
	if _, err := s.db.Exec(insert, "r2", 1); err == nil {
		t.Error("expected UNIQUE violation for a second head, got nil")
	}
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
	if !contains(getTableIndexes(t, s.db, "sync_events"), "idx_sync_events_commit") {
		t.Error("commit index missing after migration")
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("DROP INDEX idx_sync_events_commit"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("reset user_version: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if !contains(getTableIndexes(t, s.db, "sync_events"), "idx_sync_events_commit") {
		t.Error("commit index not recreated by upgrade")
	}
}

func TestMigration_MembersToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO scope_states (ref, scope_id, seq, owner_id, epoch, members, is_head)
		VALUES ('r0', 'scope-1', 0, 'alice', 0, 'alice,bob', 1),
		       ('r1', 'scope-2', 0, 'carol', 0, '', 1)
	`)
	if err != nil {
		t.Fatalf("insert legacy rows: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("reset user_version: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	got, err := s.LoadScopeStateByRef(ctx, "r0")
	if err != nil {
		t.Fatalf("LoadScopeStateByRef(r0) failed: %v", err)
	}
	if got == nil || len(got.Members) != 2 || got.Members[0] != "alice" || got.Members[1] != "bob" {
		t.Errorf("migrated members = %+v, want [alice bob]", got)
	}
	got, err = s.LoadScopeStateByRef(ctx, "r1")
	if err != nil || got == nil || len(got.Members) != 0 {
		t.Errorf("migrated empty members = %+v, %v", got, err)
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
