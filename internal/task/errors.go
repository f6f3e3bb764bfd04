package task

import "errors"

var (
	// ErrGone indicates the task record was deleted while a worker held it.
	ErrGone = errors.New("task record gone")
	// ErrConflict indicates the record changed underneath an optimistic update.
	// The single-writer invariant makes this equivalent to losing the record.
	ErrConflict = errors.New("task record modified concurrently")
)

// IsGone reports whether an error means the worker no longer owns a live
// record and should exit quietly instead of surfacing a failure.
func IsGone(err error) bool {
	return errors.Is(err, ErrGone) || errors.Is(err, ErrConflict)
}
