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
	"podforge/internal/subtitles"
)

// newSubtitleStep builds the bilingual SRT for one level/language. Cue
// timing walks the synthesized segment durations in order with the
// configured inter-turn gap, matching the silence the merge step inserts.
// The primary text is the language being spoken; the other language rides
// along as the second line, with an explicit placeholder when the
// index-aligned text is missing.
func newSubtitleStep(deps Deps, taskID, level, lang string) pipeline.Step {
	primaryKey := dialogueKey(level, lang)
	secondaryKey := dialogueKey(level, otherLang(lang))
	listKey := audioListKey(level, lang)
	outputName := storage.FileName(level, lang, "subtitle", taskID)

	return pipeline.NewLevelLangStep("subtitle", level, lang,
		[]string{primaryKey, secondaryKey, listKey},
		[]string{outputName},
		func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
			primaryTurns, err := readTurns(artifacts, primaryKey)
			if err != nil {
				return nil, err
			}
			secondaryTurns, err := readTurns(artifacts, secondaryKey)
			if err != nil {
				return nil, err
			}
			segments := artifacts.GetStringSlice(listKey)

			// Mirror the audio step's filter so texts line up with segments.
			// A primary turn past the end of the secondary dialogue appends
			// nothing; Build fills the short side with its placeholder.
			var primary, secondary []string
			for i, turn := range primaryTurns {
				if strings.TrimSpace(turn.Content) == "" {
					continue
				}
				primary = append(primary, turn.Content)
				if i < len(secondaryTurns) {
					secondary = append(secondary, secondaryTurns[i].Content)
				}
			}
			if len(segments) != len(primary) {
				return nil, services.Wrap(services.ErrValidation, "", "subtitle",
					fmt.Sprintf("%d audio segments for %d turns in %s/%s", len(segments), len(primary), level, lang), nil)
			}

			durations := make([]time.Duration, len(segments))
			for i, segment := range segments {
				duration, err := deps.Prober.Duration(ctx, artifacts.Path(segment))
				if err != nil {
					return nil, services.Wrap(services.ErrTransient, "", "subtitle",
						fmt.Sprintf("probe segment %s", segment), err)
				}
				durations[i] = duration
			}

			gap := time.Duration(deps.Config.Workflow.TurnGapMillis) * time.Millisecond
			entries := subtitles.Build(primary, secondary, durations, gap)
			rendered := subtitles.Render(entries)
			if _, err := deps.Files.Write(artifacts.TaskID(), outputName, []byte(rendered)); err != nil {
				return nil, err
			}

			if err := deps.Tracker.UpdateFiles(ctx, level, lang, "subtitle", outputName); err != nil {
				return nil, err
			}

			deps.logger().Info("subtitles written",
				logging.String(logging.FieldLevel, level),
				logging.String(logging.FieldLang, lang),
				logging.Int("entries", len(entries)),
			)
			return map[string]any{outputName: outputName}, nil
		})
}

func otherLang(lang string) string {
	if lang == "cn" {
		return "en"
	}
	return "cn"
}
