// Package audit records every credential operation as a JSON file on
// disk. Records are append-only; nothing in the engine ever rewrites or
// deletes one.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/credkeeper/internal/logging"
)

// Redacted replaces sensitive argument values in stored records.
const Redacted = "[REDACTED]"

// Operation status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// sensitiveKey matches argument names whose values must never reach disk.
var sensitiveKey = regexp.MustCompile(`(?i)credential|password|token|key`)

// Record is one audited operation as persisted to the audit directory.
type Record struct {
	OperationID    string         `json:"operation_id"`
	ActionType     string         `json:"action_type"`
	Actor          string         `json:"actor"`
	Hostname       string         `json:"hostname,omitempty"`
	TimestampStart time.Time      `json:"timestamp_start"`
	TimestampEnd   time.Time      `json:"timestamp_end"`
	DurationMS     int64          `json:"duration_ms"`
	Status         string         `json:"status"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	ErrorType      string         `json:"error_type,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// Logger writes audit records. Each operation becomes one file named
// {action_type}_{operation_id}.json under the audit directory.
type Logger struct {
	dir      string
	hostname string
	logger   *logging.Logger
	now      func() time.Time
	newID    func() string
}

// New creates an audit logger rooted at dir, creating it if needed.
func New(dir string, logger *logging.Logger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	hostname, _ := os.Hostname()
	return &Logger{
		dir:      dir,
		hostname: hostname,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}, nil
}

// SetClock overrides the timestamp source for tests.
func (l *Logger) SetClock(now func() time.Time) {
	l.now = now
}

// SetIDSource overrides operation ID generation for tests.
func (l *Logger) SetIDSource(newID func() string) {
	l.newID = newID
}

// Wrap runs fn inside an audited operation. The record is written whether
// fn succeeds or fails, and fn's error is returned unchanged. A failure to
// persist the record is logged but does not fail the operation.
func (l *Logger) Wrap(ctx context.Context, actionType, actor string, args map[string]any, fn func(ctx context.Context) error) error {
	rec := Record{
		OperationID:    l.newID(),
		ActionType:     actionType,
		Actor:          actor,
		Hostname:       l.hostname,
		TimestampStart: l.now().UTC(),
		Arguments:      redactArgs(args),
	}

	err := fn(ctx)

	rec.TimestampEnd = l.now().UTC()
	rec.DurationMS = rec.TimestampEnd.Sub(rec.TimestampStart).Milliseconds()
	if err != nil {
		rec.Status = StatusError
		rec.ErrorType = fmt.Sprintf("%T", err)
		rec.ErrorMessage = err.Error()
	} else {
		rec.Status = StatusSuccess
	}

	if writeErr := l.write(rec); writeErr != nil {
		l.logger.Error("Failed to persist audit record %s: %v", rec.OperationID, writeErr)
	}
	return err
}

func (l *Logger) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	name := fmt.Sprintf("%s_%s.json", rec.ActionType, rec.OperationID)
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0600); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}
	return nil
}

// List returns up to limit records, most recent first. A limit of zero or
// below returns everything. Unreadable files are skipped with a warning so
// one corrupt record does not hide the rest of the trail.
func (l *Logger) List(limit int) ([]Record, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading audit directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			l.logger.Warn("Skipping audit record %s: %v", entry.Name(), err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			l.logger.Warn("Skipping malformed audit record %s: %v", entry.Name(), err)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].TimestampStart.After(records[j].TimestampStart)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// redactArgs copies args with sensitive values replaced. The original map
// is never mutated.
func redactArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if sensitiveKey.MatchString(k) {
			out[k] = Redacted
		} else {
			out[k] = v
		}
	}
	return out
}
