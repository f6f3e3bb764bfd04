package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"podforge/internal/config"
	"podforge/internal/pipeline"
	"podforge/internal/services"
	"podforge/internal/services/llm"
	"podforge/internal/services/webfetch"
	"podforge/internal/storage"
	"podforge/internal/task"
	"podforge/internal/testsupport"
)

type fakeFetcher struct {
	result webfetch.Result
	err    error
}

func (f *fakeFetcher) Fetch(context.Context, string) (webfetch.Result, error) {
	return f.result, f.err
}

type fakeGenerator struct {
	title        string
	titleErr     error
	adapted      map[string]string
	dialogue     []llm.Turn
	dialogueErr  error
	batchErr     error
	batchCalls   int
	itemErrAt    map[int]error
	itemCalls    int
	translations func(text string) string
}

func (f *fakeGenerator) GenerateTitle(context.Context, string) (string, error) {
	return f.title, f.titleErr
}

func (f *fakeGenerator) AdaptContent(_ context.Context, _ string, level string) (string, error) {
	if f.adapted == nil {
		return "adapted for " + level, nil
	}
	return f.adapted[level], nil
}

func (f *fakeGenerator) GenerateDialogue(context.Context, string, string, int) ([]llm.Turn, error) {
	return f.dialogue, f.dialogueErr
}

func (f *fakeGenerator) TranslateBatch(_ context.Context, texts []string) ([]string, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = f.translate(text)
	}
	return out, nil
}

func (f *fakeGenerator) TranslateText(_ context.Context, text string) (string, error) {
	index := f.itemCalls
	f.itemCalls++
	if err := f.itemErrAt[index]; err != nil {
		return "", err
	}
	return f.translate(text), nil
}

func (f *fakeGenerator) translate(text string) string {
	if f.translations != nil {
		return f.translations(text)
	}
	return "en:" + text
}

type fakeSynthesizer struct {
	calls   int
	failFor int
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failFor {
		return nil, services.Wrap(services.ErrSynthesis, "", "synthesize", "upstream busy", nil)
	}
	return []byte("audio:" + voice + ":" + text), nil
}

func (f *fakeSynthesizer) VoiceFor(role, lang string) string {
	return role + "_" + lang
}

type fakeProber struct {
	durations map[string]time.Duration
	fallback  time.Duration
}

func (f *fakeProber) Duration(_ context.Context, path string) (time.Duration, error) {
	for suffix, d := range f.durations {
		if strings.HasSuffix(path, suffix) {
			return d, nil
		}
	}
	if f.fallback > 0 {
		return f.fallback, nil
	}
	return 0, errors.New("unknown file")
}

type fakeConcat struct {
	calls    [][]string
	outputs  []string
	failWith error
}

func (f *fakeConcat) Concat(_ context.Context, segments []string, output string) error {
	f.calls = append(f.calls, segments)
	f.outputs = append(f.outputs, output)
	if f.failWith != nil {
		return f.failWith
	}
	return os.WriteFile(output, []byte("merged"), 0o644)
}

type stepFixture struct {
	cfg       *config.Config
	store     *task.Store
	files     *storage.Store
	record    *task.Record
	artifacts *pipeline.Context
	deps      Deps
}

func newStepFixture(t *testing.T) *stepFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	record := testsupport.NewTask(t, store, "https://example.com/article")
	files := storage.NewStore(cfg)
	if _, err := files.EnsureTaskDir(record.TaskID, pipeline.Levels); err != nil {
		t.Fatalf("EnsureTaskDir: %v", err)
	}
	artifacts, err := pipeline.NewContext(record.TaskID, files)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return &stepFixture{
		cfg:       cfg,
		store:     store,
		files:     files,
		record:    record,
		artifacts: artifacts,
		deps: Deps{
			Config:  cfg,
			Files:   files,
			Tracker: pipeline.NewTracker(store, record, nil),
			Sleep:   func(context.Context, time.Duration) error { return nil },
		},
	}
}

func sampleTurns(n int) []llm.Turn {
	turns := make([]llm.Turn, n)
	for i := range turns {
		role := "host"
		if i%2 == 1 {
			role = "guest"
		}
		turns[i] = llm.Turn{Role: role, Content: fmt.Sprintf("第%d句", i)}
	}
	return turns
}

func TestBuildCanonicalStepList(t *testing.T) {
	f := newStepFixture(t)
	f.deps.Fetcher = &fakeFetcher{}
	f.deps.Generator = &fakeGenerator{}

	steps := Build(f.deps, f.record)
	if len(steps) != 29 {
		t.Fatalf("step count = %d, want 29", len(steps))
	}
	wantPrefix := []string{
		"fetch", "title",
		"content_elementary", "dialogue_elementary", "translate_elementary",
		"content_intermediate", "dialogue_intermediate", "translate_intermediate",
		"content_advanced", "dialogue_advanced", "translate_advanced",
		"audio_elementary_cn", "subtitle_elementary_cn", "merge_elementary_cn",
		"audio_elementary_en", "subtitle_elementary_en", "merge_elementary_en",
	}
	for i, want := range wantPrefix {
		if steps[i].Name != want {
			t.Fatalf("steps[%d] = %q, want %q", i, steps[i].Name, want)
		}
	}
	if last := steps[len(steps)-1].Name; last != "merge_advanced_en" {
		t.Fatalf("last step = %q", last)
	}
	seen := make(map[string]bool)
	for _, step := range steps {
		if seen[step.Name] {
			t.Fatalf("duplicate step name %q", step.Name)
		}
		seen[step.Name] = true
	}
}

func TestFetchStepMergesTextAndTitle(t *testing.T) {
	f := newStepFixture(t)
	f.deps.Fetcher = &fakeFetcher{result: webfetch.Result{Text: "article text", Title: "源标题"}}

	step := newFetchStep(f.deps, f.record.URL)
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.artifacts.GetString("text"); got != "article text" {
		t.Fatalf("text = %q", got)
	}
	if got := f.artifacts.GetString("source_title"); got != "源标题" {
		t.Fatalf("source_title = %q", got)
	}
}

func TestFetchStepPropagatesFetchError(t *testing.T) {
	f := newStepFixture(t)
	f.deps.Fetcher = &fakeFetcher{err: services.Wrap(services.ErrFetch, "fetch", "download", "404", nil)}

	step := newFetchStep(f.deps, f.record.URL)
	if _, err := step.Execute(context.Background(), f.artifacts); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestTitleStepPrefersSourceTitle(t *testing.T) {
	f := newStepFixture(t)
	f.deps.Generator = &fakeGenerator{title: "generated"}
	if err := f.artifacts.Update(map[string]any{"text": "t", "source_title": "原始标题"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	step := newTitleStep(f.deps)
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.artifacts.GetString("title"); got != "原始标题" {
		t.Fatalf("title = %q", got)
	}
	if f.deps.Tracker.Record().Title != "原始标题" {
		t.Fatalf("record title = %q", f.deps.Tracker.Record().Title)
	}
}

func TestTitleStepFallsBackToGenerator(t *testing.T) {
	f := newStepFixture(t)
	f.deps.Generator = &fakeGenerator{title: "生成的标题"}
	if err := f.artifacts.Set("text", "t"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	step := newTitleStep(f.deps)
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.artifacts.GetString("title"); got != "生成的标题" {
		t.Fatalf("title = %q", got)
	}
}

func TestDialogueStepWritesArtifact(t *testing.T) {
	f := newStepFixture(t)
	f.deps.Generator = &fakeGenerator{dialogue: sampleTurns(4)}
	if err := f.artifacts.Set(contentKey("elementary"), "adapted"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	step := newDialogueStep(f.deps, "elementary")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	key := dialogueKey("elementary", "cn")
	if got := f.artifacts.GetString(key); got != key {
		t.Fatalf("context value = %q", got)
	}
	turns, err := readTurns(f.artifacts, key)
	if err != nil {
		t.Fatalf("readTurns: %v", err)
	}
	if len(turns) != 4 || turns[1].Role != "guest" {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestTranslateStepBatchFallback(t *testing.T) {
	f := newStepFixture(t)
	gen := &fakeGenerator{
		batchErr:  services.Wrap(services.ErrGeneration, "translate", "batch", "overloaded", nil),
		itemErrAt: map[int]error{2: services.Wrap(services.ErrGeneration, "translate", "item", "overloaded", nil)},
	}
	f.deps.Generator = gen

	source := sampleTurns(5)
	sourceKey := dialogueKey("elementary", "cn")
	if err := writeTurns(f.deps, f.artifacts, sourceKey, source); err != nil {
		t.Fatalf("writeTurns: %v", err)
	}
	if err := f.artifacts.Set(sourceKey, sourceKey); err != nil {
		t.Fatalf("seed: %v", err)
	}

	step := newTranslateStep(f.deps, "elementary")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	translated, err := readTurns(f.artifacts, dialogueKey("elementary", "en"))
	if err != nil {
		t.Fatalf("readTurns: %v", err)
	}
	if len(translated) != 5 {
		t.Fatalf("translated count = %d", len(translated))
	}
	for i, turn := range translated {
		if turn.Role != source[i].Role {
			t.Fatalf("turn %d role = %q, want %q", i, turn.Role, source[i].Role)
		}
		if i == 2 {
			if turn.Content != "" {
				t.Fatalf("failed item should be an empty placeholder, got %q", turn.Content)
			}
			continue
		}
		if turn.Content != "en:"+source[i].Content {
			t.Fatalf("turn %d content = %q", i, turn.Content)
		}
	}
	if gen.batchCalls != 1 {
		t.Fatalf("batch calls = %d", gen.batchCalls)
	}
	if gen.itemCalls != 5 {
		t.Fatalf("item calls = %d", gen.itemCalls)
	}
}

func TestTranslateStepSplitsBatches(t *testing.T) {
	f := newStepFixture(t)
	gen := &fakeGenerator{}
	f.deps.Generator = gen
	f.cfg.Workflow.TranslationBatchSize = 5

	sourceKey := dialogueKey("intermediate", "cn")
	if err := writeTurns(f.deps, f.artifacts, sourceKey, sampleTurns(12)); err != nil {
		t.Fatalf("writeTurns: %v", err)
	}
	if err := f.artifacts.Set(sourceKey, sourceKey); err != nil {
		t.Fatalf("seed: %v", err)
	}

	step := newTranslateStep(f.deps, "intermediate")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gen.batchCalls != 3 {
		t.Fatalf("batch calls = %d, want 3 for 12 turns", gen.batchCalls)
	}
}

func seedAudioInputs(t *testing.T, f *stepFixture, level, lang string, turns []llm.Turn) {
	t.Helper()
	key := dialogueKey(level, lang)
	if err := writeTurns(f.deps, f.artifacts, key, turns); err != nil {
		t.Fatalf("writeTurns: %v", err)
	}
	if err := f.artifacts.Set(key, key); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAudioStepSynthesizesAllTurns(t *testing.T) {
	f := newStepFixture(t)
	synth := &fakeSynthesizer{}
	f.deps.Synthesizer = synth
	f.deps.Prober = &fakeProber{fallback: time.Second}

	seedAudioInputs(t, f, "elementary", "cn", sampleTurns(3))
	step := newAudioStep(f.deps, f.record.TaskID, "elementary", "cn")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	segments := f.artifacts.GetStringSlice(audioListKey("elementary", "cn"))
	if len(segments) != 3 {
		t.Fatalf("segments = %v", segments)
	}
	for _, segment := range segments {
		if !f.files.Exists(f.record.TaskID, segment) {
			t.Fatalf("segment %s not written", segment)
		}
	}
	if synth.calls != 3 {
		t.Fatalf("synthesize calls = %d", synth.calls)
	}
}

func TestAudioStepRetriesWithBackoff(t *testing.T) {
	f := newStepFixture(t)
	f.cfg.Workflow.AudioSynthesisRetries = 3
	synth := &fakeSynthesizer{failFor: 2}
	f.deps.Synthesizer = synth
	f.deps.Prober = &fakeProber{fallback: time.Second}

	var waits []time.Duration
	f.deps.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	seedAudioInputs(t, f, "elementary", "cn", sampleTurns(1))
	step := newAudioStep(f.deps, f.record.TaskID, "elementary", "cn")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if synth.calls != 3 {
		t.Fatalf("synthesize calls = %d", synth.calls)
	}
	if len(waits) != 2 || waits[0] != synthesisBackoffBase || waits[1] != 2*synthesisBackoffBase {
		t.Fatalf("linear backoff waits = %v", waits)
	}
}

func TestAudioStepExhaustsRetries(t *testing.T) {
	f := newStepFixture(t)
	f.cfg.Workflow.AudioSynthesisRetries = 3
	synth := &fakeSynthesizer{failFor: 99}
	f.deps.Synthesizer = synth
	f.deps.Prober = &fakeProber{fallback: time.Second}

	seedAudioInputs(t, f, "elementary", "cn", sampleTurns(1))
	step := newAudioStep(f.deps, f.record.TaskID, "elementary", "cn")
	_, err := step.Execute(context.Background(), f.artifacts)
	if !errors.Is(err, services.ErrSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if synth.calls != 3 {
		t.Fatalf("synthesize calls = %d, want bounded at 3", synth.calls)
	}
}

func TestAudioStepSkipsEmptyTurns(t *testing.T) {
	f := newStepFixture(t)
	synth := &fakeSynthesizer{}
	f.deps.Synthesizer = synth
	f.deps.Prober = &fakeProber{fallback: time.Second}

	turns := []llm.Turn{
		{Role: "host", Content: "hello"},
		{Role: "guest", Content: ""},
		{Role: "host", Content: "bye"},
	}
	seedAudioInputs(t, f, "elementary", "en", turns)
	step := newAudioStep(f.deps, f.record.TaskID, "elementary", "en")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	segments := f.artifacts.GetStringSlice(audioListKey("elementary", "en"))
	if len(segments) != 2 {
		t.Fatalf("segments = %v", segments)
	}
	if segments[0] != turnFileName("elementary", "en", 0) || segments[1] != turnFileName("elementary", "en", 2) {
		t.Fatalf("segment indices should track source turns: %v", segments)
	}
}

func seedSubtitleInputs(t *testing.T, f *stepFixture, level, lang string, primary, secondary []llm.Turn, durations []time.Duration) *fakeProber {
	t.Helper()
	seedAudioInputs(t, f, level, lang, primary)
	seedAudioInputs(t, f, level, otherLang(lang), secondary)

	prober := &fakeProber{durations: make(map[string]time.Duration)}
	var segments []string
	segmentIdx := 0
	for i, turn := range primary {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		name := turnFileName(level, lang, i)
		if _, err := f.files.Write(f.record.TaskID, name, []byte("seg")); err != nil {
			t.Fatalf("write segment: %v", err)
		}
		prober.durations[name] = durations[segmentIdx]
		segments = append(segments, name)
		segmentIdx++
	}
	if err := f.artifacts.Set(audioListKey(level, lang), segments); err != nil {
		t.Fatalf("seed list: %v", err)
	}
	return prober
}

func TestSubtitleStepAlignsTimestamps(t *testing.T) {
	f := newStepFixture(t)
	primary := []llm.Turn{
		{Role: "host", Content: "A"},
		{Role: "guest", Content: "B"},
	}
	secondary := []llm.Turn{{Role: "host", Content: "X"}}
	prober := seedSubtitleInputs(t, f, "elementary", "cn", primary, secondary, []time.Duration{2 * time.Second, 3 * time.Second})
	f.deps.Prober = prober

	step := newSubtitleStep(f.deps, f.record.TaskID, "elementary", "cn")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	outputName := storage.FileName("elementary", "cn", "subtitle", f.record.TaskID)
	data, err := os.ReadFile(f.files.PathFor(f.record.TaskID, outputName))
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	rendered := string(data)
	if !strings.Contains(rendered, "00:00:02,500 --> 00:00:06,000") {
		t.Fatalf("entry 2 timing missing:\n%s", rendered)
	}
	if !strings.Contains(rendered, "B\n【Missing English content】") {
		t.Fatalf("entry 2 must carry the secondary placeholder:\n%s", rendered)
	}

	got, err := f.store.GetByTaskID(context.Background(), f.record.TaskID)
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.Files["elementary"]["cn"].Subtitle != outputName {
		t.Fatalf("subtitle not registered: %+v", got.Files)
	}
}

func TestSubtitleStepSegmentCountMismatch(t *testing.T) {
	f := newStepFixture(t)
	primary := sampleTurns(2)
	prober := seedSubtitleInputs(t, f, "elementary", "cn", primary, primary, []time.Duration{time.Second, time.Second})
	f.deps.Prober = prober
	if err := f.artifacts.Set(audioListKey("elementary", "cn"), []string{turnFileName("elementary", "cn", 0)}); err != nil {
		t.Fatalf("shrink list: %v", err)
	}

	step := newSubtitleStep(f.deps, f.record.TaskID, "elementary", "cn")
	if _, err := step.Execute(context.Background(), f.artifacts); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMergeStepConcatenatesAndCleansUp(t *testing.T) {
	f := newStepFixture(t)
	concat := &fakeConcat{}
	f.deps.Concat = concat
	f.deps.Prober = &fakeProber{fallback: 5 * time.Second}

	segments := []string{
		turnFileName("elementary", "cn", 0),
		turnFileName("elementary", "cn", 1),
	}
	for _, segment := range segments {
		if _, err := f.files.Write(f.record.TaskID, segment, []byte("seg")); err != nil {
			t.Fatalf("write segment: %v", err)
		}
	}
	listKey := audioListKey("elementary", "cn")
	if err := f.artifacts.Set(listKey, segments); err != nil {
		t.Fatalf("seed list: %v", err)
	}

	step := newMergeStep(f.deps, f.record.TaskID, "elementary", "cn")
	if _, err := step.Execute(context.Background(), f.artifacts); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	outputName := storage.FileName("elementary", "cn", "audio", f.record.TaskID)
	if !f.files.Exists(f.record.TaskID, outputName) {
		t.Fatal("merged audio not written")
	}
	if len(concat.calls) != 1 || len(concat.calls[0]) != 2 {
		t.Fatalf("concat calls = %v", concat.calls)
	}
	for _, segment := range segments {
		if f.files.Exists(f.record.TaskID, segment) {
			t.Fatalf("segment %s should be removed after merge", segment)
		}
	}
	if f.artifacts.Has(listKey) {
		t.Fatal("audio list key should be deleted after merge")
	}

	got, err := f.store.GetByTaskID(context.Background(), f.record.TaskID)
	if err != nil {
		t.Fatalf("reload record: %v", err)
	}
	if got.Files["elementary"]["cn"].Audio != outputName {
		t.Fatalf("audio not registered: %+v", got.Files)
	}
}

func TestMergeStepRecordGonePropagates(t *testing.T) {
	f := newStepFixture(t)
	f.deps.Concat = &fakeConcat{}
	f.deps.Prober = &fakeProber{fallback: time.Second}

	segment := turnFileName("elementary", "cn", 0)
	if _, err := f.files.Write(f.record.TaskID, segment, []byte("seg")); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	if err := f.artifacts.Set(audioListKey("elementary", "cn"), []string{segment}); err != nil {
		t.Fatalf("seed list: %v", err)
	}
	if _, err := f.store.Remove(context.Background(), f.record.TaskID); err != nil {
		t.Fatalf("remove record: %v", err)
	}

	step := newMergeStep(f.deps, f.record.TaskID, "elementary", "cn")
	_, err := step.Execute(context.Background(), f.artifacts)
	if !task.IsGone(err) {
		t.Fatalf("expected record-gone error, got %v", err)
	}
}
