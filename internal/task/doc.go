// Package task persists podcast generation task records in SQLite.
//
// Each record tracks the coarse lifecycle (pending → processing →
// completed/failed), the fine-grained per-step progress the pipeline reports,
// and the typed Files map of published artifacts per difficulty level and
// language. Updates go through an optimistic revision check so a worker that
// loses its record (deleted by a user) fails fast with ErrGone rather than
// resurrecting dead rows.
package task
