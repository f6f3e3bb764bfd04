// Package llm wraps an OpenRouter-style chat completion API. It drives
// the generative stages of the pipeline: episode title synthesis,
// per-difficulty content rewriting, structured host/guest dialogue
// generation, and Chinese to English translation (batch and single).
//
// Transport-level failures (timeouts, 429, 5xx) retry with exponential
// backoff inside the client; semantic failures are classified with the
// services sentinel errors so the pipeline can decide whether a step
// retry is worthwhile.
package llm
