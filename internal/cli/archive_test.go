package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusion/internal/store"
)

// archiveRun runs the point-and-speak events into a fresh database and
// returns its path and the archived session id.
func archiveRun(t *testing.T) (string, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fusion.db")

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    dbPath,
		Note:        "demo",
	}
	out, _, err := runWith(t, opts, pointAndSpeakDir, pointAndSpeakEvents)
	require.NoError(t, err)
	require.Contains(t, out, "Session archived: ")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	sess, err := st.LatestSession(context.Background())
	require.NoError(t, err)
	return dbPath, sess.ID
}

func TestRunArchivesSession(t *testing.T) {
	dbPath, sessionID := archiveRun(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	sess, err := st.ReadSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "demo", sess.Note)
	assert.Len(t, sess.ConfigHash, 64)

	inputs, err := st.ReadInputs(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "input-1", inputs[0].ID)

	outputs, err := st.ReadOutputs(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "switch off the fan", outputs[0].Command)
	assert.Equal(t, "point_and_speak", outputs[0].RuleID)

	entries, err := st.ReadLogEntries(ctx, sessionID, "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestReplayMatchesArchive(t *testing.T) {
	dbPath, sessionID := archiveRun(t)

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), pointAndSpeakDir, "--db", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "session "+sessionID)
	assert.Contains(t, out, "Outputs: 1 recorded, 1 replayed")
	assert.NotContains(t, out, "config differs")
	assert.Contains(t, out, "✓ Replay matched archived outputs")
}

func TestReplayDivergesUnderDifferentConfig(t *testing.T) {
	dbPath, _ := archiveRun(t)

	// Without point_and_speak the pair falls through to default fusion
	dir := writeConfig(t, `package fusion
config: debounce_ms: 250
`)
	out, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), dir, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.ConfigMatch)
	assert.False(t, resp.Data.Deterministic)
	assert.NotEmpty(t, resp.Data.Differences)
}

func TestReplayUnknownSession(t *testing.T) {
	dbPath, _ := archiveRun(t)

	_, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), pointAndSpeakDir, "--db", dbPath, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session not found: nope")
}

func TestLogsCommand(t *testing.T) {
	dbPath, sessionID := archiveRun(t)

	out, err := execute(NewLogsCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Session "+sessionID+" (3 entries)")
	assert.Contains(t, out, "Touch input-1")
	assert.Contains(t, out, "rule=point_and_speak")

	out, err = execute(NewLogsCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--kind", "input", "--limit", "1")
	require.NoError(t, err)
	var resp struct {
		Data LogsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, sessionID, resp.Data.SessionID)
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, "input-2", resp.Data.Entries[0].InputID)
}

func TestLogsErrors(t *testing.T) {
	dbPath, _ := archiveRun(t)

	_, err := execute(NewLogsCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--kind", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log kind "bogus"`)

	_, err = execute(NewLogsCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	_, err = execute(NewLogsCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestSessionsCommand(t *testing.T) {
	dbPath, sessionID := archiveRun(t)

	out, err := execute(NewSessionsCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, sessionID)
	assert.Contains(t, out, `"demo"`)
}

func TestSessionsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(NewSessionsCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")

	_, err = execute(NewLogsCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sessions in database")
}
