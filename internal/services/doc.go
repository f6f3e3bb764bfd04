// Package services defines the shared error taxonomy and context annotations
// used by the external service clients (fetch, LLM, TTS) and the pipeline.
//
// Errors are tagged with sentinel markers (ErrFetch, ErrGeneration,
// ErrSynthesis, ErrValidation, ErrConfiguration) so the processor can decide
// whether a failing step is worth retrying. Context helpers carry the task
// identifier, current step, and request correlation id for structured logging.
package services
