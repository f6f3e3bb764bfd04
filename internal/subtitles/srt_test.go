package subtitles_test

import (
	"strings"
	"testing"
	"time"

	"podforge/internal/subtitles"
)

func TestBuildAlignsAndFillsMissingSecondary(t *testing.T) {
	primary := []string{"A", "B"}
	secondary := []string{"X"}
	durations := []time.Duration{2 * time.Second, 3 * time.Second}
	gap := 500 * time.Millisecond

	entries := subtitles.Build(primary, secondary, durations, gap)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Start != 0 || first.End != 2500*time.Millisecond {
		t.Fatalf("unexpected first cue window: %v -> %v", first.Start, first.End)
	}
	if first.Primary != "A" || first.Secondary != "X" {
		t.Fatalf("unexpected first cue text: %q / %q", first.Primary, first.Secondary)
	}

	second := entries[1]
	if second.Start != 2500*time.Millisecond {
		t.Fatalf("expected second cue to start at 2.5s, got %v", second.Start)
	}
	if subtitles.FormatTimestamp(second.Start) != "00:00:02,500" {
		t.Fatalf("unexpected start timestamp: %s", subtitles.FormatTimestamp(second.Start))
	}
	if second.Secondary != subtitles.PlaceholderSecondary {
		t.Fatalf("expected secondary placeholder, got %q", second.Secondary)
	}
}

func TestBuildFillsMissingPrimary(t *testing.T) {
	entries := subtitles.Build(nil, []string{"X"}, []time.Duration{time.Second}, 500*time.Millisecond)
	if entries[0].Primary != subtitles.PlaceholderPrimary {
		t.Fatalf("expected primary placeholder, got %q", entries[0].Primary)
	}
}

func TestBuildMonotonicTimestamps(t *testing.T) {
	durations := []time.Duration{time.Second, 2 * time.Second, 500 * time.Millisecond}
	entries := subtitles.Build([]string{"a", "b", "c"}, []string{"x", "y", "z"}, durations, 500*time.Millisecond)

	var last time.Duration
	for _, entry := range entries {
		if entry.Start != last {
			t.Fatalf("cue %d: expected start %v, got %v", entry.Index, last, entry.Start)
		}
		if entry.End <= entry.Start {
			t.Fatalf("cue %d: end not after start", entry.Index)
		}
		last = entry.End
	}
}

func TestRenderFormat(t *testing.T) {
	entries := subtitles.Build([]string{"你好"}, []string{"Hello"}, []time.Duration{1200 * time.Millisecond}, 500*time.Millisecond)
	rendered := subtitles.Render(entries)

	want := "1\n00:00:00,000 --> 00:00:01,700\n你好\nHello\n"
	if rendered != want {
		t.Fatalf("unexpected SRT output:\n%q\nwant:\n%q", rendered, want)
	}
	if strings.Count(rendered, "-->") != 1 {
		t.Fatalf("expected one cue, got %q", rendered)
	}
}

func TestFormatTimestampHoursAndClamping(t *testing.T) {
	if got := subtitles.FormatTimestamp(3661*time.Second + 42*time.Millisecond); got != "01:01:01,042" {
		t.Fatalf("unexpected timestamp: %s", got)
	}
	if got := subtitles.FormatTimestamp(-time.Second); got != "00:00:00,000" {
		t.Fatalf("negative durations should clamp to zero, got %s", got)
	}
}
