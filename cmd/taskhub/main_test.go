package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hub/realtime/internal/db"
	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/repository"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	database, err := db.Open(path)
	require.NoError(t, err)
	defer database.Close()

	repo := repository.NewEventRepository(database)
	ctx := context.Background()
	for _, e := range []struct {
		eventType model.EventType
		taskID    string
	}{
		{model.EventTaskUpdated, "T1"},
		{model.EventCommentAdded, "T1"},
		{model.EventTaskUpdated, "T2"},
	} {
		evt, err := model.NewEvent(e.eventType, map[string]string{"by": "u1"})
		require.NoError(t, err)
		evt.TaskID = e.taskID
		_, err = repo.Create(ctx, evt, time.Now())
		require.NoError(t, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newApp().rootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHistoryFiltersByTask(t *testing.T) {
	path := seedJournal(t)

	out, err := run(t, "history", "--journal", path, "--task", "T1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "task-updated")
	assert.Contains(t, lines[1], "comment-added")
	for _, line := range lines {
		assert.Contains(t, line, "task=T1")
	}
}

func TestHistoryCountAndJSON(t *testing.T) {
	path := seedJournal(t)

	out, err := run(t, "history", "--journal", path, "--type", "task-updated", "--count")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	out, err = run(t, "history", "--journal", path, "--limit", "1", "--json")
	require.NoError(t, err)

	var entry model.StoredEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &entry))
	assert.Equal(t, "T2", entry.Event.TaskID)
}

func TestHistoryRequiresJournal(t *testing.T) {
	_, err := run(t, "history", "--journal", filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	evt := model.RealtimeEvent{
		Type:      model.EventUserTyping,
		Timestamp: time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local),
		UserID:    "u1",
		ProjectID: "P1",
		Data:      json.RawMessage(`{"typing":true}`),
	}

	line := formatEvent(evt)
	assert.True(t, strings.HasPrefix(line, "12:30:00 user-typing"))
	assert.Contains(t, line, "project=P1 user=u1")
	assert.True(t, strings.HasSuffix(line, `{"typing":true}`))
	assert.NotContains(t, line, "task=")
}
