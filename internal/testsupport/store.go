package testsupport

import (
	"context"
	"testing"

	"podforge/internal/config"
	"podforge/internal/task"
)

// MustOpenStore opens a task.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *task.Store {
	t.Helper()

	store, err := task.Open(cfg)
	if err != nil {
		t.Fatalf("task.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a pending task record for tests using the provided store.
func NewTask(t testing.TB, store *task.Store, url string) *task.Record {
	t.Helper()

	record, err := store.New(context.Background(), url)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return record
}
