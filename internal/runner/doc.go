// Package runner owns the bounded worker pool that executes task
// pipelines. Submissions queue until a worker is free; each worker runs
// one task at a time and applies the task-level retry policy around the
// pipeline pass. On startup the runner reconciles records orphaned by a
// previous process by force-failing them.
package runner
