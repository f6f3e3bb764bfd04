package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"podforge/internal/storage"
	"podforge/internal/testsupport"
)

func newTestContext(t *testing.T) (*Context, *storage.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	files := storage.NewStore(cfg)
	taskID := "ctx-test-task"
	if _, err := files.EnsureTaskDir(taskID, Levels); err != nil {
		t.Fatalf("EnsureTaskDir: %v", err)
	}
	artifacts, err := NewContext(taskID, files)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return artifacts, files, taskID
}

func TestContextPersistsEveryMutation(t *testing.T) {
	artifacts, files, taskID := newTestContext(t)

	if err := artifacts.Set("title", "Tides of the Moon"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	path := files.PathFor(taskID, ContextFileName)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("context document not written: %v", err)
	}

	if err := artifacts.Update(map[string]any{"text": "body", "source_title": "raw"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := artifacts.Delete("source_title"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	reloaded, err := NewContext(taskID, files)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.GetString("title"); got != "Tides of the Moon" {
		t.Fatalf("title = %q", got)
	}
	if got := reloaded.GetString("text"); got != "body" {
		t.Fatalf("text = %q", got)
	}
	if reloaded.Has("source_title") {
		t.Fatal("deleted key survived reload")
	}
}

func TestContextStringSliceSurvivesReload(t *testing.T) {
	artifacts, files, taskID := newTestContext(t)

	list := []string{"elementary/turn_0.mp3", "elementary/turn_1.mp3"}
	if err := artifacts.Set("elementary/audio_list_cn", list); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reloaded, err := NewContext(taskID, files)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.GetStringSlice("elementary/audio_list_cn")
	if len(got) != 2 || got[0] != list[0] || got[1] != list[1] {
		t.Fatalf("GetStringSlice = %v, want %v", got, list)
	}
}

func TestContextValidateKeys(t *testing.T) {
	artifacts, _, _ := newTestContext(t)
	if err := artifacts.Set("title", "x"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	missing := artifacts.ValidateKeys([]string{"title", "text", "style"})
	if len(missing) != 2 || missing[0] != "text" || missing[1] != "style" {
		t.Fatalf("ValidateKeys = %v", missing)
	}
	if missing := artifacts.ValidateKeys(nil); missing != nil {
		t.Fatalf("ValidateKeys(nil) = %v", missing)
	}
}

func TestContextHasValueTreatsEmptyAsAbsent(t *testing.T) {
	artifacts, _, _ := newTestContext(t)
	for key, value := range map[string]any{
		"empty_string": "",
		"empty_list":   []any{},
		"nil_value":    nil,
	} {
		if err := artifacts.Set(key, value); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
		if artifacts.HasValue(key) {
			t.Fatalf("HasValue(%s) should be false", key)
		}
		if !artifacts.Has(key) {
			t.Fatalf("Has(%s) should be true", key)
		}
	}
	if err := artifacts.Set("filled", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !artifacts.HasValue("filled") {
		t.Fatal("HasValue(filled) should be true")
	}
}

func TestContextGetDefault(t *testing.T) {
	artifacts, _, _ := newTestContext(t)
	if got := artifacts.Get("missing", "fallback"); got != "fallback" {
		t.Fatalf("Get default = %v", got)
	}
	if err := artifacts.Set("present", 7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := artifacts.Get("present", 0); got != 7 {
		t.Fatalf("Get = %v", got)
	}
}

func TestContextPathResolvesLevelPrefix(t *testing.T) {
	artifacts, files, taskID := newTestContext(t)
	got := artifacts.Path("elementary/dialogue_cn.json")
	want := filepath.Join(files.TaskDir(taskID), "elementary", "dialogue_cn.json")
	if got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
}
