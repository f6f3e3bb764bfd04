package subtitles

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PlaceholderPrimary substitutes a missing primary-language line.
	PlaceholderPrimary = "【缺失中文内容】"
	// PlaceholderSecondary substitutes a missing secondary-language line.
	PlaceholderSecondary = "【Missing English content】"
)

// Entry is one bilingual subtitle cue.
type Entry struct {
	Index     int
	Start     time.Duration
	End       time.Duration
	Primary   string
	Secondary string
}

// Build walks per-turn audio durations sequentially and pairs each turn's
// primary text with the index-aligned secondary text. A fixed gap separates
// turns: each cue ends gap after its audio and the next cue starts there, so
// timestamps accumulate monotonically. Index misalignment fills the shorter
// side with an explicit placeholder instead of failing.
func Build(primary, secondary []string, durations []time.Duration, gap time.Duration) []Entry {
	entries := make([]Entry, 0, len(durations))
	var current time.Duration

	for i, duration := range durations {
		primaryText := PlaceholderPrimary
		if i < len(primary) {
			primaryText = primary[i]
		}
		secondaryText := PlaceholderSecondary
		if i < len(secondary) {
			secondaryText = secondary[i]
		}

		audioEnd := current + duration
		entries = append(entries, Entry{
			Index:     i + 1,
			Start:     current,
			End:       audioEnd + gap,
			Primary:   primaryText,
			Secondary: secondaryText,
		})
		current = audioEnd + gap
	}

	return entries
}

// Render produces the SRT document for the given entries.
func Render(entries []Entry) string {
	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, fmt.Sprintf(
			"%d\n%s --> %s\n%s\n%s\n",
			entry.Index,
			FormatTimestamp(entry.Start),
			FormatTimestamp(entry.End),
			entry.Primary,
			entry.Secondary,
		))
	}
	return strings.Join(blocks, "\n")
}

// FormatTimestamp renders a duration as an SRT timestamp (HH:MM:SS,mmm).
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	millis := int(d/time.Millisecond) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
