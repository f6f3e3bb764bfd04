package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("AUDIO_HELPER_MODE") == "fail" {
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(1)
	}
	os.Exit(0)
}

func stubCommand(t *testing.T, mode string) *[][]string {
	t.Helper()
	var captured [][]string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append(captured, append([]string{name}, args...))
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "AUDIO_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func TestConcatInsertsGapBetweenSegments(t *testing.T) {
	dir := t.TempDir()
	captured := stubCommand(t, "success")

	concat := NewConcatenator("ffmpeg", 500*time.Millisecond)
	segments := []string{
		filepath.Join(dir, "turn_0.mp3"),
		filepath.Join(dir, "turn_1.mp3"),
	}
	output := filepath.Join(dir, "episode.mp3")

	var listContents string
	originalCapture := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		listPath := filepath.Join(dir, ".concat.txt")
		if data, err := os.ReadFile(listPath); err == nil {
			listContents = string(data)
		}
		return originalCapture(ctx, name, args...)
	}
	t.Cleanup(func() {
		commandContext = originalCapture
	})

	if err := concat.Concat(context.Background(), segments, output); err != nil {
		t.Fatalf("Concat() error = %v", err)
	}

	if len(*captured) != 2 {
		t.Fatalf("expected silence + concat invocations, got %d", len(*captured))
	}
	silenceArgs := strings.Join((*captured)[0], " ")
	if !strings.Contains(silenceArgs, "anullsrc") || !strings.Contains(silenceArgs, "0.500") {
		t.Fatalf("silence invocation missing gap settings: %s", silenceArgs)
	}
	concatArgs := strings.Join((*captured)[1], " ")
	if !strings.Contains(concatArgs, "-f concat") || !strings.Contains(concatArgs, output) {
		t.Fatalf("concat invocation malformed: %s", concatArgs)
	}

	lines := strings.Split(strings.TrimSpace(listContents), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 list entries (turn, gap, turn), got %d: %q", len(lines), listContents)
	}
	if !strings.Contains(lines[1], ".gap.mp3") {
		t.Fatalf("middle entry should reference gap file: %q", lines[1])
	}
}

func TestConcatSingleSegmentSkipsSilence(t *testing.T) {
	dir := t.TempDir()
	captured := stubCommand(t, "success")

	concat := NewConcatenator("", 500*time.Millisecond)
	err := concat.Concat(context.Background(), []string{filepath.Join(dir, "only.mp3")}, filepath.Join(dir, "episode.mp3"))
	if err != nil {
		t.Fatalf("Concat() error = %v", err)
	}
	if len(*captured) != 1 {
		t.Fatalf("expected single invocation, got %d", len(*captured))
	}
	if (*captured)[0][0] != "ffmpeg" {
		t.Fatalf("expected default binary ffmpeg, got %s", (*captured)[0][0])
	}
}

func TestConcatPropagatesFailure(t *testing.T) {
	dir := t.TempDir()
	stubCommand(t, "fail")

	concat := NewConcatenator("ffmpeg", 0)
	err := concat.Concat(context.Background(), []string{filepath.Join(dir, "turn.mp3")}, filepath.Join(dir, "episode.mp3"))
	if err == nil {
		t.Fatal("Concat() expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error should include command output: %v", err)
	}
}

func TestConcatRejectsEmptyInput(t *testing.T) {
	concat := NewConcatenator("ffmpeg", 0)
	if err := concat.Concat(context.Background(), nil, "out.mp3"); err == nil {
		t.Fatal("expected error for empty segment list")
	}
	if err := concat.Concat(context.Background(), []string{"a.mp3"}, "  "); err == nil {
		t.Fatal("expected error for empty output")
	}
}
