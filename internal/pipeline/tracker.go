package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"podforge/internal/logging"
	"podforge/internal/task"
)

// Tracker writes durable progress updates to a task record. Every write
// commits immediately under the record's optimistic revision check;
// stale-row and deleted-row outcomes surface as task.ErrConflict and
// task.ErrGone for the processor to handle.
type Tracker struct {
	store  *task.Store
	record *task.Record
	logger *slog.Logger
}

// NewTracker builds a tracker bound to one record.
func NewTracker(store *task.Store, record *task.Record, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{store: store, record: record, logger: logger}
}

// Record returns the tracked record.
func (t *Tracker) Record() *task.Record {
	return t.record
}

// UpdateProgress records the current step position and percentage. The
// fine-grained progress becomes completed when percent reaches 100 and
// processing otherwise.
func (t *Tracker) UpdateProgress(ctx context.Context, stepIndex int, stepName string, percent int, message string) error {
	t.record.SetStepProgress(stepIndex, stepName, percent, message)
	if err := t.store.Update(ctx, t.record); err != nil {
		return fmt.Errorf("commit progress: %w", err)
	}
	t.logger.Debug("progress updated",
		logging.String(logging.FieldStep, stepName),
		logging.Int("step_index", stepIndex),
		logging.Int("percent", percent),
		logging.String("message", message),
	)
	return nil
}

// UpdateError marks the record failed with the given message, preserving
// the current step so a retry knows where to resume.
func (t *Tracker) UpdateError(ctx context.Context, message string) error {
	t.record.SetFailed(message)
	if err := t.store.Update(ctx, t.record); err != nil {
		return fmt.Errorf("commit error state: %w", err)
	}
	return nil
}

// UpdateFiles merges one published artifact reference into the record's
// files map. The record is refreshed first so the read-modify-write runs
// against the latest revision; a vanished row propagates task.ErrGone.
func (t *Tracker) UpdateFiles(ctx context.Context, level, lang, fileType, ref string) error {
	if err := t.store.Refresh(ctx, t.record); err != nil {
		return fmt.Errorf("refresh before files update: %w", err)
	}
	if t.record.Files == nil {
		t.record.Files = make(task.Files)
	}
	t.record.Files.Set(level, lang, fileType, ref)
	if err := t.store.Update(ctx, t.record); err != nil {
		return fmt.Errorf("commit files update: %w", err)
	}
	return nil
}

// MarkCompleted transitions the record to its terminal success state.
func (t *Tracker) MarkCompleted(ctx context.Context) error {
	t.record.SetCompleted()
	if err := t.store.Update(ctx, t.record); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}
	return nil
}
