package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"podforge/internal/runner"
	"podforge/internal/services"
	"podforge/internal/storage"
	"podforge/internal/task"
)

// TaskService implements the task operations behind the HTTP API and the
// CLI. It owns validation and the coupling between record store, file
// store, and worker pool.
type TaskService struct {
	store  *task.Store
	files  *storage.Store
	runner *runner.Runner
}

// NewTaskService builds a service. The runner may be nil for read-only
// callers; Create and Retry then reject submissions.
func NewTaskService(store *task.Store, files *storage.Store, pool *runner.Runner) *TaskService {
	return &TaskService{store: store, files: files, runner: pool}
}

// Create validates the URL, persists a pending record, and submits it to
// the worker pool.
func (s *TaskService) Create(ctx context.Context, rawURL string) (*TaskView, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if s.runner == nil {
		return nil, fmt.Errorf("worker pool unavailable")
	}

	record, err := s.store.New(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if _, err := s.runner.Submit(record); err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}
	view := FromRecord(record)
	return &view, nil
}

// List returns task views, optionally filtered by status.
func (s *TaskService) List(ctx context.Context, statuses ...task.Status) ([]TaskView, error) {
	records, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, len(records))
	for i, record := range records {
		views[i] = FromRecord(record)
	}
	return views, nil
}

// Describe returns one task view, or nil when the task does not exist.
func (s *TaskService) Describe(ctx context.Context, taskID string) (*TaskView, error) {
	record, err := s.store.GetByTaskID(ctx, taskID)
	if err != nil {
		if task.IsGone(err) {
			return nil, nil
		}
		return nil, err
	}
	view := FromRecord(record)
	return &view, nil
}

// Retry re-submits a failed task with the resume flag and returns the
// refreshed view.
func (s *TaskService) Retry(ctx context.Context, taskID string) (*TaskView, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("worker pool unavailable")
	}
	if _, err := s.runner.Retry(ctx, taskID); err != nil {
		return nil, err
	}
	return s.Describe(ctx, taskID)
}

// Remove deletes the task record and purges its working directory, killing
// the artifact context with it. A task currently processing detects the
// vanished record at its next durable write and exits quietly.
func (s *TaskService) Remove(ctx context.Context, taskID string) (bool, error) {
	removed, err := s.store.Remove(ctx, taskID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if err := s.files.Purge(taskID); err != nil {
		return true, fmt.Errorf("task removed but purge failed: %w", err)
	}
	return true, nil
}

// Stats returns the record count per status keyed by status name.
func (s *TaskService) Stats(ctx context.Context) (map[string]int, error) {
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(counts))
	for status, count := range counts {
		stats[string(status)] = count
	}
	return stats, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return services.Wrap(services.ErrValidation, "", "create task", "url is required", nil)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return services.Wrap(services.ErrValidation, "", "create task",
			fmt.Sprintf("invalid source url %q", rawURL), nil)
	}
	return nil
}
