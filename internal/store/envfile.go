package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	ckerrors "github.com/systmms/credkeeper/internal/errors"
	"github.com/systmms/credkeeper/internal/logging"
)

const backupTimeFormat = "20060102-150405"

// EnvFile stores credentials as KEY=value lines in a dotenv-style file.
// Every Apply takes a timestamped backup first; if the rewrite fails the
// backup is copied back over the live file. Backups are retained.
type EnvFile struct {
	path   string
	logger *logging.Logger
	now    func() time.Time
	write  func(name string, data []byte, perm os.FileMode) error
}

// NewEnvFile creates an env-file backend for the given path. The file does
// not need to exist yet; the first Apply creates it.
func NewEnvFile(path string, logger *logging.Logger) *EnvFile {
	return &EnvFile{
		path:   path,
		logger: logger,
		now:    time.Now,
		write:  os.WriteFile,
	}
}

// SetClock overrides the backup timestamp source for tests.
func (e *EnvFile) SetClock(now func() time.Time) {
	e.now = now
}

// Name implements Store.
func (e *EnvFile) Name() string {
	return "envfile:" + e.path
}

// Read implements Store. Missing files and missing keys both read as
// empty, so first-time rotation does not need a separate bootstrap step.
func (e *EnvFile) Read(_ context.Context, typeID string) (string, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", e.path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := splitEnvLine(line)
		if ok && key == typeID {
			return value, nil
		}
	}
	return "", nil
}

// Apply implements Store. The sequence is read, backup, rewrite. A failed
// rewrite triggers a restore from the backup; if the restore itself fails
// the returned error is marked so callers can quarantine the type.
func (e *EnvFile) Apply(_ context.Context, typeID, value string) error {
	data, err := os.ReadFile(e.path)
	if err != nil && !os.IsNotExist(err) {
		return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("reading %s: %w", e.path, err)}
	}
	existed := err == nil

	var backupPath string
	if existed {
		backupPath = fmt.Sprintf("%s.bak.%s", e.path, e.now().UTC().Format(backupTimeFormat))
		if err := e.write(backupPath, data, 0600); err != nil {
			return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("writing backup %s: %w", backupPath, err)}
		}
		e.logger.Debug("Backup written to %s", backupPath)
	}

	updated := replaceEnvLine(string(data), typeID, value)
	if err := e.write(e.path, []byte(updated), 0600); err != nil {
		if existed {
			if restoreErr := e.write(e.path, data, 0600); restoreErr != nil {
				e.logger.Error("Restore from %s failed: %v", backupPath, restoreErr)
				return ckerrors.StorageError{
					TypeID:        typeID,
					RestoreFailed: true,
					Err:           fmt.Errorf("writing %s: %w (restore also failed: %v)", e.path, err, restoreErr),
				}
			}
			e.logger.Warn("Write failed, restored %s from backup", e.path)
		}
		return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("writing %s: %w", e.path, err)}
	}

	return nil
}

// splitEnvLine parses a single KEY=value line. Comments and blank lines
// report ok=false. Surrounding whitespace on the key is trimmed; the value
// keeps everything after the first '='.
func splitEnvLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	key, value, found := strings.Cut(trimmed, "=")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(key), value, true
}

// replaceEnvLine rewrites the line for typeID, appending one when the key
// is not present. Unrelated lines, comments and ordering are preserved.
func replaceEnvLine(content, typeID, value string) string {
	newLine := typeID + "=" + value

	if content == "" {
		return newLine + "\n"
	}

	lines := strings.Split(content, "\n")
	replaced := false
	for i, line := range lines {
		key, _, ok := splitEnvLine(line)
		if ok && key == typeID {
			lines[i] = newLine
			replaced = true
		}
	}
	if !replaced {
		// Keep a single trailing newline when appending.
		if lines[len(lines)-1] == "" {
			lines[len(lines)-1] = newLine
			lines = append(lines, "")
		} else {
			lines = append(lines, newLine)
		}
	}
	return strings.Join(lines, "\n")
}
