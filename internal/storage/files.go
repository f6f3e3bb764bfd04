package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"podforge/internal/config"
)

// Store manages per-task working directories and published artifact files.
// Artifact names inside a task directory may carry a level prefix
// ("elementary/dialogue_cn.json"); the prefix maps to a subdirectory.
type Store struct {
	root string
}

// NewStore builds a file store rooted at the configured task directory.
func NewStore(cfg *config.Config) *Store {
	return &Store{root: cfg.TaskDir()}
}

// Root returns the directory holding all task working directories.
func (s *Store) Root() string {
	return s.root
}

// TaskDir returns the working directory for one task.
func (s *Store) TaskDir(taskID string) string {
	return filepath.Join(s.root, taskID)
}

// EnsureTaskDir creates the task working directory and its level
// subdirectories, returning the directory path.
func (s *Store) EnsureTaskDir(taskID string, levels []string) (string, error) {
	dir := s.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task directory %q: %w", dir, err)
	}
	for _, level := range levels {
		if err := os.MkdirAll(filepath.Join(dir, level), 0o755); err != nil {
			return "", fmt.Errorf("create level directory %q: %w", level, err)
		}
	}
	return dir, nil
}

// PathFor resolves a task-relative artifact name to an absolute path.
func (s *Store) PathFor(taskID, name string) string {
	return filepath.Join(s.TaskDir(taskID), filepath.FromSlash(name))
}

// Exists reports whether a task artifact is present and non-empty.
func (s *Store) Exists(taskID, name string) bool {
	info, err := os.Stat(s.PathFor(taskID, name))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Write stores content under the task directory and returns the relative name.
func (s *Store) Write(taskID, name string, content []byte) (string, error) {
	path := s.PathFor(taskID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %q: %w", name, err)
	}
	return name, nil
}

// Remove deletes one task artifact if present.
func (s *Store) Remove(taskID, name string) error {
	err := os.Remove(s.PathFor(taskID, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact %q: %w", name, err)
	}
	return nil
}

// Purge deletes the entire task working directory.
func (s *Store) Purge(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("purge: empty task id")
	}
	if err := os.RemoveAll(s.TaskDir(taskID)); err != nil {
		return fmt.Errorf("purge task directory: %w", err)
	}
	return nil
}

var extensions = map[string]string{
	"audio":    "mp3",
	"subtitle": "srt",
}

// FileName builds the standardized published artifact name:
// {level}_{lang}_{type}_{task_id}.{ext}.
func FileName(level, lang, fileType, taskID string) string {
	ext, ok := extensions[fileType]
	if !ok {
		ext = "txt"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", level, lang, fileType, taskID, ext)
}
