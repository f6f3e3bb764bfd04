// Package subtitles assembles bilingual SRT documents from dialogue text and
// per-turn audio durations.
package subtitles
