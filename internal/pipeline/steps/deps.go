package steps

import (
	"context"
	"log/slog"
	"time"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/services/llm"
	"podforge/internal/services/webfetch"
	"podforge/internal/storage"
)

// ContentFetcher downloads a source article and extracts text and a
// candidate title.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (webfetch.Result, error)
}

// TextGenerator covers the generative operations the pipeline needs:
// title synthesis, difficulty leveling, dialogue generation, and
// translation.
type TextGenerator interface {
	GenerateTitle(ctx context.Context, text string) (string, error)
	AdaptContent(ctx context.Context, text, level string) (string, error)
	GenerateDialogue(ctx context.Context, content, level string, minTurns int) ([]llm.Turn, error)
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
	TranslateText(ctx context.Context, text string) (string, error)
}

// SpeechSynthesizer converts dialogue text into audio and maps roles to
// voices.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	VoiceFor(role, lang string) string
}

// AudioProber reports the playable duration of an audio file.
type AudioProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// AudioConcatenator merges audio segments into one file with inter-turn
// silence.
type AudioConcatenator interface {
	Concat(ctx context.Context, segments []string, output string) error
}

// Deps bundles everything the step bodies need. All collaborators are
// injected so tests can substitute fakes.
type Deps struct {
	Config      *config.Config
	Files       *storage.Store
	Tracker     *pipeline.Tracker
	Fetcher     ContentFetcher
	Generator   TextGenerator
	Synthesizer SpeechSynthesizer
	Prober      AudioProber
	Concat      AudioConcatenator
	Logger      *slog.Logger

	// Sleep paces synthesis retries; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

func (d *Deps) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if d.Sleep != nil {
		return d.Sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
