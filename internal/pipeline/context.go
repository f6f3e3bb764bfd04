package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"podforge/internal/language"
	"podforge/internal/storage"
)

// ContextFileName is the document the artifact context persists to inside
// the task working directory.
const ContextFileName = "context.json"

// Levels enumerates the difficulty tiers content is generated for.
var Levels = []string{"elementary", "intermediate", "advanced"}

// Langs enumerates the output languages, primary first.
var Langs = language.Supported()

// Context is the durable key/value scratch space for one task execution.
// Keys double as step-output identifiers and, for file outputs, as
// task-dir-relative paths. Every mutation rewrites the backing document so
// a crashed run can reload exactly where it left off. A single task
// execution owns exactly one Context; steps run sequentially, so no
// locking is needed beyond that ownership.
type Context struct {
	taskID string
	files  *storage.Store
	values map[string]any
}

// NewContext builds the context for a task, seeding it from a previously
// persisted document when one exists.
func NewContext(taskID string, files *storage.Store) (*Context, error) {
	c := &Context{
		taskID: taskID,
		files:  files,
		values: make(map[string]any),
	}

	path := files.PathFor(taskID, ContextFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}
	if err := json.Unmarshal(data, &c.values); err != nil {
		return nil, fmt.Errorf("parse context document: %w", err)
	}
	return c, nil
}

// TaskID returns the task this context belongs to.
func (c *Context) TaskID() string {
	return c.taskID
}

// Get returns the value stored under key, or def when absent.
func (c *Context) Get(key string, def any) any {
	if value, ok := c.values[key]; ok {
		return value
	}
	return def
}

// GetString returns the string stored under key, or "" when absent or not
// a string.
func (c *Context) GetString(key string) string {
	value, _ := c.values[key].(string)
	return value
}

// GetStringSlice returns the string list stored under key. Lists survive a
// JSON reload as []any, so both representations are accepted.
func (c *Context) GetStringSlice(key string) []string {
	switch value := c.values[key].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// HasValue reports whether key holds a non-empty value.
func (c *Context) HasValue(key string) bool {
	value, ok := c.values[key]
	if !ok {
		return false
	}
	return !isEmptyValue(value)
}

// Set stores one value and persists immediately.
func (c *Context) Set(key string, value any) error {
	c.values[key] = value
	return c.persist()
}

// Update merges a batch of values with a single persist.
func (c *Context) Update(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	for key, value := range values {
		c.values[key] = value
	}
	return c.persist()
}

// Delete removes a key and persists. Deleting an absent key is a no-op.
func (c *Context) Delete(key string) error {
	if _, ok := c.values[key]; !ok {
		return nil
	}
	delete(c.values, key)
	return c.persist()
}

// ValidateKeys returns the subset of keys not present in the context, in
// the order given.
func (c *Context) ValidateKeys(keys []string) []string {
	var missing []string
	for _, key := range keys {
		if !c.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Path resolves a context key that doubles as a file reference to an
// absolute path in the task working directory.
func (c *Context) Path(name string) string {
	return c.files.PathFor(c.taskID, name)
}

func (c *Context) persist() error {
	data, err := json.MarshalIndent(c.values, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize context: %w", err)
	}
	if _, err := c.files.Write(c.taskID, ContextFileName, data); err != nil {
		return fmt.Errorf("persist context: %w", err)
	}
	return nil
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
