package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credkeeper/internal/logging"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := New(dir, logging.NewWithWriter(io.Discard, false))
	require.NoError(t, err)
	return l, dir
}

func TestWrapWritesRecordFile(t *testing.T) {
	l, dir := newTestLogger(t)
	l.SetIDSource(func() string { return "op-123" })

	err := l.Wrap(context.Background(), "rotation", "cli", map[string]any{"type_id": "API_KEY"}, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "rotation_op-123.json"))
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "op-123", rec.OperationID)
	assert.Equal(t, "rotation", rec.ActionType)
	assert.Equal(t, "cli", rec.Actor)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
	assert.Equal(t, "API_KEY", rec.Arguments["type_id"])
	assert.GreaterOrEqual(t, rec.DurationMS, int64(0))
}

func TestWrapRecordsFailureAndReturnsError(t *testing.T) {
	l, _ := newTestLogger(t)

	boom := errors.New("backend unavailable")
	err := l.Wrap(context.Background(), "rotation", "cli", nil, func(context.Context) error {
		return boom
	})
	assert.Same(t, boom, err)

	records, err := l.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusError, records[0].Status)
	assert.Equal(t, "*errors.errorString", records[0].ErrorType)
	assert.Equal(t, "backend unavailable", records[0].ErrorMessage)
}

func TestWrapRedactsSensitiveArgs(t *testing.T) {
	l, _ := newTestLogger(t)

	args := map[string]any{
		"type_id":      "DB_PASSWORD",
		"new_password": "hunter2",
		"api_key":      "abc",
		"OldToken":     "xyz",
		"credential":   "value",
		"attempts":     3,
	}
	require.NoError(t, l.Wrap(context.Background(), "rotation", "cli", args, func(context.Context) error {
		return nil
	}))

	records, err := l.List(1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0].Arguments
	assert.Equal(t, Redacted, got["new_password"])
	assert.Equal(t, Redacted, got["api_key"])
	assert.Equal(t, Redacted, got["OldToken"])
	assert.Equal(t, Redacted, got["credential"])
	assert.Equal(t, "DB_PASSWORD", got["type_id"])
	assert.EqualValues(t, 3, got["attempts"])

	// Caller's map is untouched.
	assert.Equal(t, "hunter2", args["new_password"])
}

func TestListOrdersAndLimits(t *testing.T) {
	l, _ := newTestLogger(t)

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		tick := ts.Add(time.Duration(i) * time.Minute)
		l.SetClock(func() time.Time { return tick })
		l.SetIDSource(func() string { return id })
		require.NoError(t, l.Wrap(context.Background(), "check", "cli", nil, func(context.Context) error {
			return nil
		}))
	}

	records, err := l.List(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].OperationID)
	assert.Equal(t, "second", records[1].OperationID)
}

func TestListSkipsMalformedFiles(t *testing.T) {
	l, dir := newTestLogger(t)

	require.NoError(t, l.Wrap(context.Background(), "check", "cli", nil, func(context.Context) error {
		return nil
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_x.json"), []byte("{not json"), 0600))

	records, err := l.List(0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
