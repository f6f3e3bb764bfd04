package api_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"podforge/internal/api"
	"podforge/internal/pipeline"
	"podforge/internal/runner"
	"podforge/internal/services"
	"podforge/internal/storage"
	"podforge/internal/task"
	"podforge/internal/testsupport"
)

type serviceFixture struct {
	svc   *api.TaskService
	store *task.Store
	files *storage.Store
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	files := storage.NewStore(cfg)
	pool := runner.New(cfg, store, nil, nil, func(context.Context, *task.Record, bool) error { return nil })
	return &serviceFixture{
		svc:   api.NewTaskService(store, files, pool),
		store: store,
		files: files,
	}
}

func TestCreateValidatesURL(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for _, rawURL := range []string{"", "not a url", "ftp://example.com/x", "https://"} {
		if _, err := f.svc.Create(ctx, rawURL); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Create(%q) = %v, want validation error", rawURL, err)
		}
	}

	view, err := f.svc.Create(ctx, "https://example.com/article")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.Status != string(task.StatusPending) {
		t.Fatalf("status = %q", view.Status)
	}
	if view.TaskID == "" {
		t.Fatal("missing task id")
	}
}

func TestDescribeMissingTask(t *testing.T) {
	f := newServiceFixture(t)
	view, err := f.svc.Describe(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if view != nil {
		t.Fatalf("view = %+v, want nil", view)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	testsupport.NewTask(t, f.store, "https://example.com/a")
	failed := testsupport.NewTask(t, f.store, "https://example.com/b")
	failed.SetFailed("boom")
	if err := f.store.Update(ctx, failed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	views, err := f.svc.List(ctx, task.StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 1 || views[0].TaskID != failed.TaskID {
		t.Fatalf("views = %+v", views)
	}
	if views[0].ErrorMessage != "boom" {
		t.Fatalf("error message = %q", views[0].ErrorMessage)
	}
}

func TestRemovePurgesWorkingDirectory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	record := testsupport.NewTask(t, f.store, "https://example.com/a")
	if _, err := f.files.EnsureTaskDir(record.TaskID, pipeline.Levels); err != nil {
		t.Fatalf("EnsureTaskDir: %v", err)
	}
	taskDir := f.files.TaskDir(record.TaskID)

	removed, err := f.svc.Remove(ctx, record.TaskID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	if _, err := os.Stat(taskDir); !os.IsNotExist(err) {
		t.Fatalf("task dir should be purged, stat err = %v", err)
	}
	if _, err := f.store.GetByTaskID(ctx, record.TaskID); !task.IsGone(err) {
		t.Fatalf("record should be gone, got %v", err)
	}

	removed, err = f.svc.Remove(ctx, record.TaskID)
	if err != nil || removed {
		t.Fatalf("second remove = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestRetryRejectsPendingTask(t *testing.T) {
	f := newServiceFixture(t)
	record := testsupport.NewTask(t, f.store, "https://example.com/a")
	if _, err := f.svc.Retry(context.Background(), record.TaskID); err == nil {
		t.Fatal("pending task must not be retryable")
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	testsupport.NewTask(t, f.store, "https://example.com/a")
	testsupport.NewTask(t, f.store, "https://example.com/b")
	done := testsupport.NewTask(t, f.store, "https://example.com/c")
	done.SetCompleted()
	if err := f.store.Update(ctx, done); err != nil {
		t.Fatalf("seed completed: %v", err)
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[string(task.StatusPending)] != 2 || stats[string(task.StatusCompleted)] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}
