// Package logging provides slog-based structured logging for podforge.
//
// It offers a human-oriented console handler and a machine-oriented JSON
// handler, standardized field names (task_id, step, component), and context
// helpers that thread task and step identity through every record emitted
// during pipeline execution.
package logging
