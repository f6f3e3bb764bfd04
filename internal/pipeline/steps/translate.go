package steps

import (
	"context"

	"podforge/internal/logging"
	"podforge/internal/pipeline"
	"podforge/internal/services/llm"
)

// newTranslateStep translates one level's dialogue to the secondary
// language. Turns go through the translator in batches; a failed batch
// falls back to per-item calls, and a turn whose individual translation
// also fails becomes an empty-content placeholder so ordering and indices
// survive for subtitle alignment.
func newTranslateStep(deps Deps, level string) pipeline.Step {
	sourceKey := dialogueKey(level, "cn")
	targetKey := dialogueKey(level, "en")
	return pipeline.NewLevelStep("translate", level, []string{sourceKey}, []string{targetKey}, func(ctx context.Context, artifacts *pipeline.Context) (map[string]any, error) {
		turns, err := readTurns(artifacts, sourceKey)
		if err != nil {
			return nil, err
		}

		batchSize := deps.Config.Workflow.TranslationBatchSize
		if batchSize <= 0 {
			batchSize = 5
		}

		translated := make([]llm.Turn, 0, len(turns))
		for start := 0; start < len(turns); start += batchSize {
			end := start + batchSize
			if end > len(turns) {
				end = len(turns)
			}
			batch := turns[start:end]
			translated = append(translated, translateBatch(ctx, deps, level, batch)...)
		}

		if err := writeTurns(deps, artifacts, targetKey, translated); err != nil {
			return nil, err
		}
		return map[string]any{targetKey: targetKey}, nil
	})
}

func translateBatch(ctx context.Context, deps Deps, level string, batch []llm.Turn) []llm.Turn {
	texts := make([]string, len(batch))
	for i, turn := range batch {
		texts[i] = turn.Content
	}

	results, err := deps.Generator.TranslateBatch(ctx, texts)
	if err == nil {
		out := make([]llm.Turn, len(batch))
		for i, turn := range batch {
			out[i] = llm.Turn{Role: turn.Role, Content: results[i]}
		}
		return out
	}
	deps.logger().Warn("batch translation failed, falling back to per-item calls",
		logging.String(logging.FieldLevel, level),
		logging.Int("batch_size", len(batch)),
		logging.Error(err),
	)

	out := make([]llm.Turn, len(batch))
	for i, turn := range batch {
		content, err := deps.Generator.TranslateText(ctx, turn.Content)
		if err != nil {
			deps.logger().Warn("turn translation failed, substituting empty placeholder",
				logging.String(logging.FieldLevel, level),
				logging.Int("turn_index", i),
				logging.Error(err),
			)
			content = ""
		}
		out[i] = llm.Turn{Role: turn.Role, Content: content}
	}
	return out
}
