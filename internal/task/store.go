package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"podforge/internal/config"
)

// Store manages task-record persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// isSQLiteBusy detects lock contention. The busy_timeout pragma applies only
// to the pooled connection that ran it, so other connections can still
// surface raw SQLITE_BUSY under concurrent writers.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the task database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "podforge.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const recordColumns = `id, task_id, url, title, status, progress, current_step,
	current_step_index, total_steps, step_progress, progress_message,
	error_message, files_json, revision, created_at, updated_at`

// New inserts a pending task for the given source URL.
func (s *Store) New(ctx context.Context, url string) (*Record, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("url is required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	taskID := uuid.NewString()

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            task_id, url, status, progress, progress_message, files_json,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		taskID,
		url,
		StatusPending,
		ProgressWaiting,
		"task submitted",
		"{}",
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return s.GetByTaskID(ctx, taskID)
}

// GetByTaskID returns the record for the given task identifier, or ErrGone.
func (s *Store) GetByTaskID(ctx context.Context, taskID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM tasks WHERE task_id = ?`, taskID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrGone)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return record, nil
}

// Update persists changes to an existing record under an optimistic revision
// check. A vanished row maps to ErrGone; a revision mismatch to ErrConflict.
func (s *Store) Update(ctx context.Context, record *Record) error {
	if record == nil {
		return errors.New("record is nil")
	}

	filesJSON, err := marshalFiles(record.Files)
	if err != nil {
		return err
	}

	updatedAt := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET url = ?, title = ?, status = ?, progress = ?, current_step = ?,
             current_step_index = ?, total_steps = ?, step_progress = ?,
             progress_message = ?, error_message = ?, files_json = ?,
             revision = revision + 1, updated_at = ?
         WHERE task_id = ? AND revision = ?`,
		record.URL,
		record.Title,
		record.Status,
		record.Progress,
		record.CurrentStep,
		record.CurrentStepIndex,
		record.TotalSteps,
		record.StepProgress,
		record.ProgressMessage,
		record.ErrorMessage,
		filesJSON,
		updatedAt.Format(time.RFC3339Nano),
		record.TaskID,
		record.Revision,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE task_id = ?`, record.TaskID).Scan(&exists); err != nil {
			return fmt.Errorf("verify task presence: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("task %s: %w", record.TaskID, ErrGone)
		}
		return fmt.Errorf("task %s: %w", record.TaskID, ErrConflict)
	}

	record.Revision++
	record.UpdatedAt = updatedAt
	return nil
}

// Refresh reloads the latest persisted state into the record. A deleted row
// surfaces as ErrGone.
func (s *Store) Refresh(ctx context.Context, record *Record) error {
	if record == nil {
		return errors.New("record is nil")
	}
	latest, err := s.GetByTaskID(ctx, record.TaskID)
	if err != nil {
		return err
	}
	*record = *latest
	return nil
}

// List returns records matching any of the provided statuses, newest first.
// With no statuses it returns everything.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Remove deletes a record. It reports whether a row was removed.
func (s *Store) Remove(ctx context.Context, taskID string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return false, fmt.Errorf("remove task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove task rows: %w", err)
	}
	return affected > 0, nil
}

// MarkIncompleteFailed force-fails every pending or processing record. It runs
// once at startup: no in-flight state is trusted to survive a process crash,
// so unfinished work requires an explicit user retry.
func (s *Store) MarkIncompleteFailed(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress = ?, progress_message = ?, error_message = ?, step_progress = 0,
             revision = revision + 1, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusFailed,
		ProgressFailed,
		RestartFailureMessage,
		RestartFailureMessage,
		now,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("mark incomplete tasks failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark incomplete rows: %w", err)
	}
	return affected, nil
}

// Stats returns the record count per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var record Record
	var filesJSON string
	var createdAt, updatedAt string

	err := row.Scan(
		&record.ID,
		&record.TaskID,
		&record.URL,
		&record.Title,
		&record.Status,
		&record.Progress,
		&record.CurrentStep,
		&record.CurrentStepIndex,
		&record.TotalSteps,
		&record.StepProgress,
		&record.ProgressMessage,
		&record.ErrorMessage,
		&filesJSON,
		&record.Revision,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if record.Files, err = unmarshalFiles(filesJSON); err != nil {
		return nil, err
	}
	if record.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

func marshalFiles(files Files) (string, error) {
	if files == nil {
		return "{}", nil
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("marshal files: %w", err)
	}
	return string(data), nil
}

func unmarshalFiles(raw string) (Files, error) {
	files := make(Files)
	if strings.TrimSpace(raw) == "" {
		return files, nil
	}
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	return files, nil
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts, nil
}
