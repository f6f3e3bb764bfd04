package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/services"
	"podforge/internal/storage"
)

// synthesisBackoffBase paces per-turn synthesis retries; attempt n waits
// n times this long.
const synthesisBackoffBase = 2 * time.Second

// newAudioStep synthesizes speech for every non-empty turn of one
// level/language dialogue. Each produced segment must be non-empty and
// probe as decodable audio; a turn gets a bounded number of attempts with
// linear backoff before the step fails.
func newAudioStep(deps Deps, taskID, level, lang string) pipeline.Step {
	sourceKey := dialogueKey(level, lang)
	listKey := audioListKey(level, lang)
	return pipeline.NewLevelLangStep("audio", level, lang, []string{sourceKey}, []string{listKey}, func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
		turns, err := readTurns(artifacts, sourceKey)
		if err != nil {
			return nil, err
		}

		attempts := deps.Config.Workflow.AudioSynthesisRetries
		if attempts < 1 {
			attempts = 1
		}

		segments := make([]string, 0, len(turns))
		for i, turn := range turns {
			if strings.TrimSpace(turn.Content) == "" {
				// Translation placeholders carry no speakable text.
				continue
			}
			name := turnFileName(level, lang, i)
			voice := deps.Synthesizer.VoiceFor(turn.Role, lang)
			if err := synthesizeTurn(ctx, deps, artifacts, name, turn.Content, voice, attempts); err != nil {
				return nil, services.Wrap(services.ErrSynthesis, "", "audio",
					fmt.Sprintf("turn %d of %s/%s failed after %d attempts", i, level, lang, attempts), err)
			}
			segments = append(segments, name)
		}
		if len(segments) == 0 {
			return nil, services.Wrap(services.ErrValidation, "", "audio",
				fmt.Sprintf("no speakable turns for %s/%s", level, lang), nil)
		}

		deps.logger().Info("audio synthesized",
			logging.String(logging.FieldLevel, level),
			logging.String(logging.FieldLang, lang),
			logging.Int("segments", len(segments)),
		)
		return map[string]any{listKey: segments}, nil
	})
}

func synthesizeTurn(ctx context.Context, deps Deps, artifacts *pipeline.Context, name, text, voice string, attempts int) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := deps.sleep(ctx, time.Duration(attempt-1)*synthesisBackoffBase); err != nil {
				return err
			}
		}
		audio, err := deps.Synthesizer.Synthesize(ctx, text, voice)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := deps.Files.Write(artifacts.TaskID(), name, audio); err != nil {
			return err
		}
		duration, err := deps.Prober.Duration(ctx, artifacts.Path(name))
		if err != nil || duration <= 0 {
			lastErr = fmt.Errorf("segment %s failed validation: %w", name, err)
			continue
		}
		return nil
	}
	return lastErr
}

// newMergeStep concatenates one level/language's per-turn segments into
// the published episode audio, registers it on the task record, and
// cleans up the now-unneeded per-turn files and their context key.
func newMergeStep(deps Deps, taskID, level, lang string) pipeline.Step {
	listKey := audioListKey(level, lang)
	outputName := storage.FileName(level, lang, "audio", taskID)
	return pipeline.NewLevelLangStep("merge", level, lang, []string{listKey}, []string{outputName}, func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
		segments := artifacts.GetStringSlice(listKey)
		if len(segments) == 0 {
			return nil, services.Wrap(services.ErrValidation, "", "merge",
				fmt.Sprintf("empty segment list for %s/%s", level, lang), nil)
		}

		paths := make([]string, len(segments))
		for i, segment := range segments {
			paths[i] = artifacts.Path(segment)
		}
		outputPath := artifacts.Path(outputName)
		if err := deps.Concat.Concat(ctx, paths, outputPath); err != nil {
			return nil, services.Wrap(services.ErrTransient, "", "merge", "concatenate segments", err)
		}
		if duration, err := deps.Prober.Duration(ctx, outputPath); err != nil || duration <= 0 {
			return nil, services.Wrap(services.ErrValidation, "", "merge",
				fmt.Sprintf("merged audio %s failed validation", outputName), err)
		}

		if err := deps.Tracker.UpdateFiles(ctx, level, lang, "audio", outputName); err != nil {
			return nil, err
		}

		for _, segment := range segments {
			if err := deps.Files.Remove(artifacts.TaskID(), segment); err != nil {
				deps.logger().Warn("failed to remove turn segment", logging.String("segment", segment), logging.Error(err))
			}
		}
		if err := artifacts.Delete(listKey); err != nil {
			return nil, err
		}

		deps.logger().Info("episode audio merged",
			logging.String(logging.FieldLevel, level),
			logging.String(logging.FieldLang, lang),
			logging.String("file", outputName),
		)
		return map[string]any{outputName: outputName}, nil
	})
}
