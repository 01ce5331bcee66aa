package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/mimecast/lnavcore/internal/grepworker"
)

// cliSink prints match records to stdout as they're dispatched, mirroring
// grep's own line-oriented output rather than lnav's wire protocol (that
// protocol is for a controlling process, not a human at a terminal).
type cliSink struct {
	grepworker.NopSink
	out     *bufio.Writer
	source  grepworker.Source
	noColor bool
	quiet   bool
	width   int
	matched int
}

func newCLISink(source grepworker.Source, noColor, quiet bool) *cliSink {
	width := 0
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	return &cliSink{out: bufio.NewWriter(os.Stdout), source: source, noColor: noColor, quiet: quiet, width: width}
}

func (s *cliSink) Match(_ *grepworker.Worker, line, start, end int) {
	s.matched++
	if s.quiet {
		return
	}
	value, ok := s.source.ValueForLine(line)
	if !ok {
		return
	}

	prefix := fmt.Sprintf("%d:", line+1)
	fits := start >= 0 && end <= len(value) && start <= end
	inWidth := s.width <= 0 || runewidth.StringWidth(prefix)+runewidth.StringWidth(value) <= s.width

	if fits && !s.noColor && inWidth {
		fmt.Fprintf(s.out, "%s%s\n", prefix, highlight(value, start, end))
		return
	}
	if s.width > 0 {
		value = grepworker.FormatMatchContext(value, start, end, s.width-runewidth.StringWidth(prefix))
	}
	fmt.Fprintf(s.out, "%s%s\n", prefix, value)
}

func highlight(value string, start, end int) string {
	const (
		highlightOn  = "\x1b[1;31m"
		highlightOff = "\x1b[0m"
	)
	return value[:start] + highlightOn + value[start:end] + highlightOff + value[end:]
}

func (s *cliSink) EndBatch(*grepworker.Worker) { s.out.Flush() }

func (s *cliSink) End(*grepworker.Worker) {
	s.out.Flush()
	if s.quiet {
		fmt.Fprintf(os.Stderr, "%d matches\n", s.matched)
	}
}

// cliControl prints worker errors to stderr instead of
// crashing the process, matching how a long-running viewer would
// surface a bad pattern or a source read failure.
type cliControl struct{}

func (cliControl) Error(msg string) {
	fmt.Fprintln(os.Stderr, "grepworker:", msg)
}
