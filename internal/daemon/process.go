package daemon

import (
	"context"
	"log/slog"
	"time"

	"podforge/internal/config"
	"podforge/internal/media/audio"
	"podforge/internal/media/ffprobe"
	"podforge/internal/pipeline"
	"podforge/internal/pipeline/steps"
	"podforge/internal/runner"
	"podforge/internal/services/llm"
	"podforge/internal/services/tts"
	"podforge/internal/services/webfetch"
	"podforge/internal/storage"
	"podforge/internal/task"
)

// newProcessFunc assembles the real pipeline collaborators once and
// returns the per-task execution function handed to the worker pool.
func newProcessFunc(cfg *config.Config, store *task.Store, files *storage.Store, logger *slog.Logger) runner.ProcessFunc {
	fetcher := webfetch.NewFetcher(cfg.Fetch)
	generator := llm.NewClient(cfg.LLM)
	synthesizer := tts.NewClient(cfg.TTS)
	prober := ffprobe.NewProber(cfg.Media.FFprobeBinary)
	gap := time.Duration(cfg.Workflow.TurnGapMillis) * time.Millisecond
	concat := audio.NewConcatenator(cfg.Media.FFmpegBinary, gap)

	return func(ctx context.Context, record *task.Record, resume bool) error {
		deps := steps.Deps{
			Config:      cfg,
			Files:       files,
			Tracker:     pipeline.NewTracker(store, record, logger),
			Fetcher:     fetcher,
			Generator:   generator,
			Synthesizer: synthesizer,
			Prober:      prober,
			Concat:      concat,
			Logger:      logger,
		}
		stepList := steps.Build(deps, record)
		return pipeline.NewProcessor(cfg, store, files, logger, record, stepList, resume).Run(ctx)
	}
}
