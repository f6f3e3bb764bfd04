package steps

import (
	"context"
	"strings"

	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/services"
)

// newFetchStep downloads the source article. It declares only the text
// output; the candidate title is merged opportunistically since many
// sources have none.
func newFetchStep(deps Deps, url string) pipeline.Step {
	return pipeline.NewStep("fetch", nil, []string{"text"}, func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
		result, err := deps.Fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		deps.logger().Info("source fetched",
			logging.String(logging.FieldStep, "fetch"),
			logging.Int("text_chars", len([]rune(result.Text))),
			logging.String("source_title", result.Title),
		)
		return map[string]any{
			"text":         result.Text,
			"source_title": result.Title,
		}, nil
	})
}

// newTitleStep uses the fetched title when present and asks the generator
// for one otherwise. The resolved title is also written onto the task
// record for listings.
func newTitleStep(deps Deps) pipeline.Step {
	return pipeline.NewStep("title", []string{"text"}, []string{"title"}, func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
		title := strings.TrimSpace(artifacts.GetString("source_title"))
		if title == "" {
			generated, err := deps.Generator.GenerateTitle(ctx, artifacts.GetString("text"))
			if err != nil {
				return nil, err
			}
			title = generated
		}
		if title == "" {
			return nil, services.Wrap(services.ErrGeneration, "title", "resolve", "no usable episode title", nil)
		}
		if deps.Tracker != nil {
			deps.Tracker.Record().Title = title
		}
		return map[string]any{"title": title}, nil
	})
}

// newContentStep rewrites the source text for one difficulty level. The
// adapted text lives directly in the context.
func newContentStep(deps Deps, level string) pipeline.Step {
	return pipeline.NewLevelStep("content", level, []string{"text"}, []string{contentKey(level)}, func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
		adapted, err := deps.Generator.AdaptContent(ctx, artifacts.GetString("text"), level)
		if err != nil {
			return nil, err
		}
		return map[string]any{contentKey(level): adapted}, nil
	})
}

// newDialogueStep generates the primary-language conversation for one
// level and persists it as a JSON artifact.
func newDialogueStep(deps Deps, level string) pipeline.Step {
	key := dialogueKey(level, "cn")
	return pipeline.NewLevelStep("dialogue", level, []string{contentKey(level)}, []string{key}, func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
		turns, err := deps.Generator.GenerateDialogue(ctx, artifacts.GetString(contentKey(level)), level, deps.Config.Workflow.MinDialogueTurns)
		if err != nil {
			return nil, err
		}
		if err := writeTurns(deps, artifacts, key, turns); err != nil {
			return nil, err
		}
		deps.logger().Info("dialogue generated",
			logging.String(logging.FieldLevel, level),
			logging.Int("turns", len(turns)),
		)
		return map[string]any{key: key}, nil
	})
}
