package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

const twoEvents = `[
  {"id": "e1", "aggregate_id": "note-1", "event_type": "created", "payload": "c2VhbGVk", "version": 1},
  {"id": "e2", "aggregate_id": "note-1", "event_type": "edited", "payload": "bW9yZQ==", "version": 2}
]`

func TestRoot_InvalidFormat(t *testing.T) {
	_, _, err := execute(t, "", "--format", "xml", "token", "--key", "k", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestPush_CommitsAndAssigns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")
	events := writeTemp(t, "events.json", twoEvents)

	out, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1",
		"--expected-head", "0", "--format", "json", events)
	require.NoError(t, err)

	var res PushOutput
	decodeData(t, out, &res)
	assert.True(t, res.OK)
	assert.Equal(t, int64(2), res.Head)
	require.Len(t, res.Assigned, 2)
	assert.Equal(t, "e1", res.Assigned[0].EventID)
	assert.Equal(t, int64(1), res.Assigned[0].GlobalSequence)
	assert.Equal(t, int64(2), res.Assigned[1].GlobalSequence)
}

func TestPush_Stdin(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")

	out, _, err := execute(t, twoEvents, "push", "--db", db, "--owner", "alice", "--store", "s1", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ committed 2 events, head 2")
}

func TestPush_ConflictListsMissing(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")
	first := writeTemp(t, "first.json", twoEvents)
	second := writeTemp(t, "second.json",
		`[{"id": "e3", "aggregate_id": "note-2", "event_type": "created", "payload": "eA==", "version": 1}]`)

	_, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", first)
	require.NoError(t, err)

	out, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1",
		"--expected-head", "0", "--format", "json", second)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res PushOutput
	decodeData(t, out, &res)
	assert.False(t, res.OK)
	assert.Equal(t, "server_ahead", res.Reason)
	assert.Equal(t, int64(2), res.Head)
	assert.Equal(t, []string{"e1", "e2"}, res.Missing)
	assert.Empty(t, res.Assigned)
}

func TestPush_BadInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")

	unknown := writeTemp(t, "bad.json", `[{"id": "e1", "colour": "red"}]`)
	_, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", unknown)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	dup := writeTemp(t, "dup.json", `[
  {"id": "e1", "aggregate_id": "a", "event_type": "t", "payload": "eA==", "version": 1},
  {"id": "e1", "aggregate_id": "a", "event_type": "t", "payload": "eA==", "version": 2}
]`)
	_, _, err = execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", dup)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPush_ForeignStoreDenied(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")
	events := writeTemp(t, "events.json", twoEvents)

	_, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", events)
	require.NoError(t, err)

	_, _, err = execute(t, "", "pull", "--db", db, "--owner", "bob", "--store", "s1")
	require.Error(t, err)
	assert.Equal(t, ExitDenied, GetExitCode(err))
}

func TestPull_PagesFromCursor(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")
	events := writeTemp(t, "events.json", twoEvents)
	_, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", events)
	require.NoError(t, err)

	out, _, err := execute(t, "", "pull", "--db", db, "--owner", "alice", "--store", "s1",
		"--since", "1", "--format", "json")
	require.NoError(t, err)

	var res PullOutput
	decodeData(t, out, &res)
	assert.Equal(t, int64(2), res.Head)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "e2", res.Events[0].ID)
	assert.Equal(t, int64(2), res.Events[0].Global)
	assert.Equal(t, 4, res.Events[0].PayloadSize)
}

func TestPull_TextEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")

	out, _, err := execute(t, "", "pull", "--db", db, "--owner", "alice", "--store", "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice/s1 since 0, head 0\n  (no events)\n", out)
}

func TestReset_Development(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")
	events := writeTemp(t, "events.json", twoEvents)
	_, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", events)
	require.NoError(t, err)

	out, _, err := execute(t, "", "reset", "--db", db, "--owner", "alice", "--store", "s1")
	require.NoError(t, err)
	assert.Equal(t, "✓ reset alice/s1 (development)\n", out)

	out, _, err = execute(t, "", "pull", "--db", db, "--owner", "alice", "--store", "s1", "--format", "json")
	require.NoError(t, err)
	var res PullOutput
	decodeData(t, out, &res)
	assert.Zero(t, res.Head)
	assert.Empty(t, res.Events)
}

func TestReset_ProductionForbidden(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")

	out, _, err := execute(t, "", "reset", "--db", db, "--owner", "alice", "--store", "s1",
		"--profile", "production", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitDenied, GetExitCode(err))
	assert.Contains(t, out, `"code": "RESET_FORBIDDEN"`)
}

func TestLocal_InvalidProfile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")

	_, _, err := execute(t, "", "pull", "--db", db, "--owner", "alice", "--store", "s1", "--profile", "qa")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVerify_ConsistentLog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")
	first := writeTemp(t, "first.json", twoEvents)
	second := writeTemp(t, "second.json",
		`[{"id": "e3", "aggregate_id": "note-2", "event_type": "created", "payload": "eA==", "version": 1}]`)
	_, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", first)
	require.NoError(t, err)
	_, _, err = execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", "--expected-head", "2", second)
	require.NoError(t, err)

	out, _, err := execute(t, "", "verify", "--db", db, "--owner", "alice", "--store", "s1", "--format", "json")
	require.NoError(t, err)

	var res VerifyResult
	decodeData(t, out, &res)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(3), res.Head)
	assert.Equal(t, int64(3), res.Events)
	assert.Equal(t, int64(2), res.Commits)
	assert.Empty(t, res.Problems)
}

func TestVerify_UnboundStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")

	out, _, err := execute(t, "", "verify", "--db", db, "--owner", "alice", "--store", "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "store nobody is not bound to any owner")

	// Verify must not have claimed the store.
	out, _, err = execute(t, "", "verify", "--db", db, "--owner", "alice", "--store", "nobody")
	require.Error(t, err)
	assert.Contains(t, out, "not bound")
}

func TestVerify_WrongOwner(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sync.db")
	events := writeTemp(t, "events.json", twoEvents)
	_, _, err := execute(t, "", "push", "--db", db, "--owner", "alice", "--store", "s1", events)
	require.NoError(t, err)

	out, _, err := execute(t, "", "verify", "--db", db, "--owner", "bob", "--store", "s1")
	require.Error(t, err)
	assert.Contains(t, out, "store s1 is bound to alice")
}

func TestToken(t *testing.T) {
	out, _, err := execute(t, "", "token", "--key", "secret", "alice")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	assert.NotEmpty(t, token)

	again, _, err := execute(t, "", "token", "--key", "secret", "alice")
	require.NoError(t, err)
	assert.Equal(t, token, strings.TrimSpace(again))

	other, _, err := execute(t, "", "token", "--key", "other", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, token, strings.TrimSpace(other))
}

func TestToken_RequiresKey(t *testing.T) {
	_, _, err := execute(t, "", "token", "alice")
	require.Error(t, err)
}
