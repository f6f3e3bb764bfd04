package steps

import (
	"encoding/json"
	"fmt"
	"os"

	"podforge/internal/pipeline"
	"podforge/internal/services/llm"
	"podforge/internal/task"
)

// Build assembles the canonical step list for one task: the generic fetch
// and title steps, then content, dialogue, and translation per difficulty
// level, then audio synthesis, subtitle timing, and audio merge per level
// and language.
func Build(deps Deps, record *task.Record) []pipeline.Step {
	steps := make([]pipeline.Step, 0, 2+len(pipeline.Levels)*3+len(pipeline.Levels)*len(pipeline.Langs)*3)
	steps = append(steps,
		newFetchStep(deps, record.URL),
		newTitleStep(deps),
	)
	for _, level := range pipeline.Levels {
		steps = append(steps,
			newContentStep(deps, level),
			newDialogueStep(deps, level),
			newTranslateStep(deps, level),
		)
	}
	for _, level := range pipeline.Levels {
		for _, lang := range pipeline.Langs {
			steps = append(steps,
				newAudioStep(deps, record.TaskID, level, lang),
				newSubtitleStep(deps, record.TaskID, level, lang),
				newMergeStep(deps, record.TaskID, level, lang),
			)
		}
	}
	return steps
}

// Context key layout. Keys for file-backed artifacts are the artifact's
// task-dir-relative path; their context value is the same path, marking
// the artifact as produced.
func contentKey(level string) string {
	return level + "/content"
}

func dialogueKey(level, lang string) string {
	return fmt.Sprintf("%s/dialogue_%s.json", level, lang)
}

func audioListKey(level, lang string) string {
	return fmt.Sprintf("%s/audio_list_%s", level, lang)
}

func turnFileName(level, lang string, index int) string {
	return fmt.Sprintf("%s/%s_turn_%d.mp3", level, lang, index)
}

func writeTurns(deps Deps, artifacts *pipeline.Context, key string, turns []llm.Turn) error {
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dialogue: %w", err)
	}
	if _, err := deps.Files.Write(artifacts.TaskID(), key, data); err != nil {
		return err
	}
	return nil
}

func readTurns(artifacts *pipeline.Context, key string) ([]llm.Turn, error) {
	data, err := os.ReadFile(artifacts.Path(key))
	if err != nil {
		return nil, fmt.Errorf("read dialogue %s: %w", key, err)
	}
	var turns []llm.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decode dialogue %s: %w", key, err)
	}
	return turns, nil
}
