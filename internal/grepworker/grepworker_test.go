package grepworker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	derrors "github.com/mimecast/lnavcore/internal/errors"
	"github.com/mimecast/lnavcore/internal/regex"
	"github.com/mimecast/lnavcore/internal/testutil"
)

type sliceSource []string

func (s sliceSource) ValueForLine(line int) (string, bool) {
	if line < 0 || line >= len(s) {
		return "", false
	}
	return s[line], true
}

type recordingSink struct {
	NopSink
	matches  []int
	captures [][]byte
	ended    bool
}

func (s *recordingSink) Match(_ *Worker, line int, start, end int) {
	s.matches = append(s.matches, line, start, end)
}

func (s *recordingSink) Capture(_ *Worker, _ int, _ int, _ int, capture []byte) {
	s.captures = append(s.captures, capture)
}

func (s *recordingSink) End(*Worker) { s.ended = true }

func drainUntil(t *testing.T, w *Worker, want int, field func() int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for field() < want {
		w.Poll()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d results, got %d", want, field())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestQueueRequestBeforeStartThenMatches(t *testing.T) {
	source := sliceSource{"hello world", "nothing here", "hello again"}
	re, err := regex.New("hello", regex.Default)
	if err != nil {
		t.Fatalf("regex.New: %v", err)
	}
	w := New(re, source)

	sink := &recordingSink{}
	w.SetSink(sink)
	w.QueueRequest(0, EndOfSource)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	drainUntil(t, w, 2, func() int { return len(sink.matches) / 3 })

	if sink.matches[0] != 0 || sink.matches[3] != 2 {
		t.Fatalf("matched lines = %v, want lines 0 and 2", sink.matches)
	}
}

func TestCapturesDispatched(t *testing.T) {
	source := sliceSource{"key=value"}
	re, err := regex.New(`(\w+)=(\w+)`, regex.Default)
	if err != nil {
		t.Fatalf("regex.New: %v", err)
	}
	w := New(re, source)
	sink := &recordingSink{}
	w.SetSink(sink)
	w.QueueRequest(0, 1)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	drainUntil(t, w, 2, func() int { return len(sink.captures) })

	if string(sink.captures[0]) != "key" || string(sink.captures[1]) != "value" {
		t.Fatalf("captures = %q, %q", sink.captures[0], sink.captures[1])
	}
}

func TestTerminateStopsWorker(t *testing.T) {
	source := sliceSource{"a", "b", "c"}
	re, _ := regex.New("a", regex.Default)
	w := New(re, source)
	sink := &recordingSink{}
	w.SetSink(sink)
	w.QueueRequest(0, EndOfSource)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Terminate()
	if w.IsRunning() {
		t.Fatal("worker should not be running after Terminate")
	}
	if !sink.ended {
		t.Fatal("sink.End should have been called")
	}
}

func TestNewFromPatternRejectsInvalidRegex(t *testing.T) {
	source := sliceSource{"x"}
	_, err := NewFromPattern("(unterminated", false, source)
	if !derrors.Is(err, derrors.ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestMatchesOnlyGeneratedErrorLines(t *testing.T) {
	lines := testutil.GenerateLogLines(40)
	source := sliceSource(lines)
	re, err := regex.New(`\[ERROR\]`, regex.Default)
	if err != nil {
		t.Fatalf("regex.New: %v", err)
	}
	w := New(re, source)
	sink := &recordingSink{}
	w.SetSink(sink)
	w.QueueRequest(0, EndOfSource)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wantLines []int
	for i, l := range lines {
		if regexpContains(l, "[ERROR]") {
			wantLines = append(wantLines, i)
		}
	}
	drainUntil(t, w, len(wantLines), func() int { return len(sink.matches) / 3 })

	for i, want := range wantLines {
		if got := sink.matches[i*3]; got != want {
			t.Fatalf("match %d = line %d, want %d", i, got, want)
		}
	}
}

func regexpContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestFormatMatchContextShortLinePassesThrough(t *testing.T) {
	value := "short line"
	if got := FormatMatchContext(value, 0, 5, 80); got != value {
		t.Fatalf("FormatMatchContext = %q, want unchanged %q", got, value)
	}
}

func TestFormatMatchContextTruncatesLongLine(t *testing.T) {
	value := strings.Repeat("a", 40) + "NEEDLE" + strings.Repeat("b", 40)
	start := strings.Index(value, "NEEDLE")
	end := start + len("NEEDLE")

	got := FormatMatchContext(value, start, end, 20)
	if !strings.Contains(got, "NEEDLE") {
		t.Fatalf("truncated context %q lost the match", got)
	}
	if runewidth.StringWidth(got) > 20+2*runewidth.StringWidth("...") {
		t.Fatalf("truncated context %q wider than budget", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipses on both sides, got %q", got)
	}
}

func TestHighWaterMarkAfterScanToEnd(t *testing.T) {
	source := sliceSource{"a", "a", "a"}
	re, _ := regex.New("a", regex.Default)
	w := New(re, source)
	sink := &recordingSink{}
	w.SetSink(sink)
	w.QueueRequest(0, EndOfSource)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for w.highestLine != 2 {
		w.Poll()
		select {
		case <-deadline:
			t.Fatalf("highestLine = %d, want 2", w.highestLine)
		case <-time.After(time.Millisecond):
		}
	}
}
