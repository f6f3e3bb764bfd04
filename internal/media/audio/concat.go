package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// commandContext is swapped out by tests to avoid invoking ffmpeg.
var commandContext = exec.CommandContext

// Concatenator merges per-turn audio segments into a single episode file
// with a silence gap between turns.
type Concatenator struct {
	Binary string
	Gap    time.Duration
}

// NewConcatenator builds a Concatenator honoring the configured ffmpeg
// binary override and gap duration.
func NewConcatenator(binary string, gap time.Duration) *Concatenator {
	return &Concatenator{Binary: binary, Gap: gap}
}

// Concat joins the segment files in order, inserting the configured gap
// between consecutive segments, and writes the result to output. Scratch
// files are created next to the output and removed before returning.
func (c *Concatenator) Concat(ctx context.Context, segments []string, output string) error {
	if len(segments) == 0 {
		return errors.New("audio concat: no segments")
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return errors.New("audio concat: empty output path")
	}
	binary := strings.TrimSpace(c.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}

	workDir := filepath.Dir(output)
	silencePath := ""
	if c.Gap > 0 && len(segments) > 1 {
		silencePath = filepath.Join(workDir, ".gap.mp3")
		if err := c.writeSilence(ctx, binary, silencePath); err != nil {
			return err
		}
		defer os.Remove(silencePath)
	}

	listPath := filepath.Join(workDir, ".concat.txt")
	if err := writeConcatList(listPath, segments, silencePath); err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c:a", "libmp3lame", "-q:a", "4",
		output,
	}
	cmd := commandContext(ctx, binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio concat: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *Concatenator) writeSilence(ctx context.Context, binary, path string) error {
	duration := fmt.Sprintf("%.3f", c.Gap.Seconds())
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "anullsrc=r=24000:cl=mono",
		"-t", duration,
		"-c:a", "libmp3lame", "-q:a", "4",
		path,
	}
	cmd := commandContext(ctx, binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio concat: generate silence: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func writeConcatList(listPath string, segments []string, silencePath string) error {
	var builder strings.Builder
	for i, segment := range segments {
		if i > 0 && silencePath != "" {
			fmt.Fprintf(&builder, "file '%s'\n", escapeConcatPath(silencePath))
		}
		fmt.Fprintf(&builder, "file '%s'\n", escapeConcatPath(segment))
	}
	if err := os.WriteFile(listPath, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("audio concat: write list: %w", err)
	}
	return nil
}

func escapeConcatPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return strings.ReplaceAll(abs, "'", `'\''`)
}
