// Package steps contains the pipeline step implementations: source
// fetching, title resolution, per-level content adaptation and dialogue
// generation, batch translation with per-item fallback, per-turn speech
// synthesis, bilingual subtitle timing, and episode audio merging. The
// external collaborators each step calls are injected through the Deps
// bundle.
package steps
