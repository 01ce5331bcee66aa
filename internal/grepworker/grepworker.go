// Package grepworker runs a pattern over an arbitrarily large line
// source without stalling the caller: matching happens on a worker
// goroutine that frames its results the same way lnav's forked grep
// child talks to its parent, and the results are dispatched back to a
// Sink a bounded number of records at a time so a single Poll call
// never blocks for long.
//
// lnav (original_source/src/grep_proc.cc) forks a child process that
// writes framed match records down a pipe, and the parent multiplexes
// that pipe into its poll(2) loop. Go has no equivalent of fork, and a
// goroutine is the idiomatic replacement for the child; since the
// worker and the dispatcher now share an address space there is no
// byte-stream boundary left to cross, so a buffered channel of framed
// records stands in for the pipe. The wire format itself (line number,
// "[start:end]" match, "(start:end)<bytes>" captures, "/" end-of-match,
// "h<n>" high-water mark) is kept unchanged from the original so
// dispatchLine's parsing logic is a direct, recognisable port of
// grep_proc::dispatch_line.
package grepworker

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/mimecast/lnavcore/internal/constants"
	derrors "github.com/mimecast/lnavcore/internal/errors"
	"github.com/mimecast/lnavcore/internal/io/dlog"
	"github.com/mimecast/lnavcore/internal/io/pool"
	"github.com/mimecast/lnavcore/internal/metrics"
	"github.com/mimecast/lnavcore/internal/regex"
)

// EndOfSource is the stop-line sentinel meaning "scan to the end of
// whatever the source currently has", mirroring grep_line_t(-1).
const EndOfSource = -1

// frameQueueSize bounds how many unread wire-format records can pile up
// before the worker goroutine blocks sending more, standing in for a
// full pipe buffer in the original.
const frameQueueSize = 4096

// Source supplies the text of a given line number to match against. It
// returns ok=false once line is beyond what the source currently holds.
type Source interface {
	ValueForLine(line int) (value string, ok bool)
}

// Sink receives the results of a grep run.
type Sink interface {
	Begin(gw *Worker)
	EndBatch(gw *Worker)
	End(gw *Worker)
	Match(gw *Worker, line int, start, end int)
	Capture(gw *Worker, line int, start, end int, capture []byte)
	MatchEnd(gw *Worker, line int)
}

// Control receives out-of-band error reports from the worker.
type Control interface {
	Error(msg string)
}

// NopSink is embeddable by sinks that only care about a subset of Sink's
// methods.
type NopSink struct{}

func (NopSink) Begin(*Worker)                          {}
func (NopSink) EndBatch(*Worker)                       {}
func (NopSink) End(*Worker)                            {}
func (NopSink) Match(*Worker, int, int, int)           {}
func (NopSink) Capture(*Worker, int, int, int, []byte) {}
func (NopSink) MatchEnd(*Worker, int)                  {}

type request struct {
	start, stop int
}

// Worker manages the lifetime of one pattern matched against one
// Source: queuing requests, running the match loop on its own
// goroutine, and dispatching framed results back to a Sink in bounded
// batches via Poll.
type Worker struct {
	pattern regex.Regex
	source  Source

	sink    Sink
	control Control

	mu          sync.Mutex
	queue       []request
	started     bool
	lastLine    int
	highestLine int

	frames chan string
	reqCh  chan request
	stopCh chan struct{}
	doneCh chan struct{}
	idleCh chan struct{}
}

// New constructs a Worker for pattern over source. Call QueueRequest one
// or more times, then Start.
func New(pattern regex.Regex, source Source) *Worker {
	return &Worker{
		pattern:     pattern,
		source:      source,
		highestLine: -1,
	}
}

// SetSink installs the result sink and announces a fresh run to it.
func (w *Worker) SetSink(sink Sink) {
	w.sink = sink
	if w.sink != nil {
		w.sink.Begin(w)
	}
}

// SetControl installs the error-report delegate.
func (w *Worker) SetControl(control Control) { w.control = control }

// QueueRequest schedules a scan of [start, stop). stop == EndOfSource
// scans until the source runs dry; start == EndOfSource resumes at the
// line after the highest line number previously scanned.
func (w *Worker) QueueRequest(start, stop int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	req := request{start: start, stop: stop}
	if !w.started {
		w.queue = append(w.queue, req)
		return
	}
	select {
	case w.reqCh <- req:
	default:
		dlog.Common.Warn("grepworker", "request queue full, dropping request")
	}
}

// Start launches the worker goroutine if it isn't already running and
// there is work queued.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started || len(w.queue) == 0 {
		w.mu.Unlock()
		return nil
	}
	pending := w.queue
	w.queue = nil
	w.started = true
	w.mu.Unlock()

	w.frames = make(chan string, frameQueueSize)
	w.reqCh = make(chan request, 64)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.idleCh = make(chan struct{}, 1)
	for _, req := range pending {
		w.reqCh <- req
	}

	metrics.ActiveGrepWorkers.Inc()
	go w.run(ctx)
	return nil
}

// run is the worker's match loop: the in-process stand-in for
// grep_proc::child_loop.
func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.frames)
	defer metrics.ActiveGrepWorkers.Dec()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case req := <-w.reqCh:
			if !w.runRequest(ctx, req) {
				return
			}
			if len(w.reqCh) == 0 {
				select {
				case w.idleCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (w *Worker) runRequest(ctx context.Context, req request) bool {
	start := req.start
	if start == EndOfSource {
		w.mu.Lock()
		start = w.highestLine + 1
		w.mu.Unlock()
	}

	line := start
	for req.stop == EndOfSource || line < req.stop {
		select {
		case <-ctx.Done():
			return false
		case <-w.stopCh:
			return false
		default:
		}

		value, ok := w.source.ValueForLine(line)
		if !ok {
			break
		}
		metrics.LinesScanned.Inc()
		if !w.matchLine(line, value) {
			return false
		}
		line++
	}

	if req.stop == EndOfSource {
		if !w.emit(fmt.Sprintf("h%d", line-1)) {
			return false
		}
	}
	return true
}

// matchLine emits one frame per match found on line, each followed by
// its capture groups and an end-of-match marker, mirroring
// grep_proc::child_loop's pcre match loop. The line-number frame itself
// is emitted only once, before the first match, since it identifies the
// source line rather than the match (grep_proc.cc:190 does the same:
// "if (pi.pi_offset == 0) fprintf(stdout, "%d\n", line)").
func (w *Worker) matchLine(line int, value string) bool {
	b := []byte(value)
	matches := w.pattern.FindAllSubmatchIndex(b)
	if len(matches) == 0 {
		return true
	}
	if !w.emit(fmt.Sprintf("%d", line)) {
		return false
	}
	for _, m := range matches {
		metrics.MatchesEmitted.Inc()
		if !w.emit(fmt.Sprintf("[%d:%d]", m[0], m[1])) {
			return false
		}
		for g := 1; g*2+1 < len(m); g++ {
			cs, ce := m[g*2], m[g*2+1]
			buf := pool.BytesBuffer.Get().(*bytes.Buffer)
			fmt.Fprintf(buf, "(%d:%d)", cs, ce)
			if cs >= 0 {
				buf.Write(b[cs:ce])
			}
			frame := buf.String()
			pool.RecycleBytesBuffer(buf)
			if !w.emit(frame) {
				return false
			}
		}
		if !w.emit("/") {
			return false
		}
	}
	return true
}

// emit sends one wire-format frame, returning false if the worker was
// asked to stop while waiting for queue space.
func (w *Worker) emit(frame string) bool {
	select {
	case w.frames <- frame:
		return true
	case <-w.stopCh:
		return false
	}
}

// Poll dispatches at most constants.MaxDispatchIterations buffered
// frames to the sink, returning the number dispatched. It never blocks
// waiting for more frames.
func (w *Worker) Poll() int {
	if w.frames == nil {
		return 0
	}

	dispatched := 0
	for dispatched < constants.MaxDispatchIterations {
		select {
		case frame, ok := <-w.frames:
			if !ok {
				goto done
			}
			w.dispatchLine(frame)
			dispatched++
		default:
			goto done
		}
	}
done:
	if w.sink != nil && dispatched > 0 {
		w.sink.EndBatch(w)
	}
	return dispatched
}

// dispatchLine parses one framed record and forwards it to the sink,
// mirroring grep_proc::dispatch_line's sscanf cascade.
func (w *Worker) dispatchLine(line string) {
	var a, b int
	switch {
	case scanHighWater(line, &a):
		w.mu.Lock()
		w.highestLine = a
		w.mu.Unlock()
	case scanLineNumber(line, &a):
		w.lastLine = a
	case scanMatch(line, &a, &b):
		if w.sink != nil {
			w.sink.Match(w, w.lastLine, a, b)
		}
	case scanCaptureHeader(line, &a, &b):
		var capture []byte
		if a >= 0 {
			capture = []byte(captureBody(line))
		}
		if w.sink != nil {
			w.sink.Capture(w, w.lastLine, a, b, capture)
		}
	case line == "/":
		if w.sink != nil {
			w.sink.MatchEnd(w, w.lastLine)
		}
	default:
		dlog.Common.Warn("grepworker", "unparseable record from worker", line)
		if w.control != nil {
			w.control.Error(fmt.Sprintf("unparseable record: %s", line))
		}
	}
}

func scanHighWater(line string, out *int) bool {
	if len(line) == 0 || line[0] != 'h' {
		return false
	}
	n, err := fmt.Sscanf(line, "h%d", out)
	return err == nil && n == 1
}

func scanLineNumber(line string, out *int) bool {
	n, err := fmt.Sscanf(line, "%d", out)
	return err == nil && n == 1
}

func scanMatch(line string, start, end *int) bool {
	n, err := fmt.Sscanf(line, "[%d:%d]", start, end)
	return err == nil && n == 2
}

func scanCaptureHeader(line string, start, end *int) bool {
	if len(line) == 0 || line[0] != '(' {
		return false
	}
	n, err := fmt.Sscanf(line, "(%d:%d)", start, end)
	return err == nil && n == 2
}

func captureBody(line string) string {
	idx := -1
	for i, c := range line {
		if c == ')' {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(line) {
		return ""
	}
	return line[idx+1:]
}

// Done reports whether the worker goroutine has exited and every frame
// it produced has been dispatched, satisfying pollset.Member.
func (w *Worker) Done() bool {
	if w.IsRunning() {
		return false
	}
	return len(w.frames) == 0
}

// IsRunning reports whether the worker goroutine is still alive.
func (w *Worker) IsRunning() bool {
	if w.doneCh == nil {
		return false
	}
	select {
	case <-w.doneCh:
		return false
	default:
		return true
	}
}

// CaughtUp reports, once and non-blockingly, whether the worker just
// finished a request with nothing else queued behind it, i.e. it has
// scanned everything the source held at the time. The signal is
// consumed on read, so a caller driving the worker in a loop sees it
// exactly once per request drained, the same way grep_proc's h<n>
// high-water frame tells the parent a scan reached the end of the
// source (original_source/src/grep_proc.cc:231).
func (w *Worker) CaughtUp() bool {
	if w.idleCh == nil {
		return false
	}
	select {
	case <-w.idleCh:
		return true
	default:
		return false
	}
}

// Invalidate discards any buffered, undispatched results, matching
// grep_proc::invalidate.
func (w *Worker) Invalidate() {
	if w.frames == nil {
		return
	}
	for {
		select {
		case <-w.frames:
		default:
			return
		}
	}
}

// Terminate stops the worker goroutine and waits for it to exit,
// standing in for grep_proc::cleanup's SIGTERM-then-waitpid sequence.
func (w *Worker) Terminate() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if w.sink != nil {
		w.sink.End(w)
	}
}

// NewFromPattern compiles pattern and constructs a Worker over source,
// translating a bad pattern into derrors.ErrInvalidPattern rather than
// letting a regexp.CompileError leak to callers.
func NewFromPattern(pattern string, invert bool, source Source) (*Worker, error) {
	flag := regex.Default
	if invert {
		flag = regex.Invert
	}
	re, err := regex.New(pattern, flag)
	if err != nil {
		return nil, derrors.Wrapf(derrors.ErrInvalidPattern, "%v", err)
	}
	return New(re, source), nil
}

// FormatMatchContext renders value for a plain-text summary printer,
// truncating to maxWidth display columns centered on the match at byte
// offsets [start:end) so a long line's match stays visible instead of
// scrolling off a narrow terminal. Widths are measured with go-runewidth
// rather than len(), since a matched line can contain multi-column runes
// (CJK text, wide emoji) whose byte count says nothing about how much
// terminal width they occupy.
func FormatMatchContext(value string, start, end, maxWidth int) string {
	if maxWidth <= 0 || runewidth.StringWidth(value) <= maxWidth {
		return value
	}

	runes := []rune(value)
	matchStartRune := len([]rune(value[:start]))
	matchEndRune := len([]rune(value[:end]))

	const ellipsis = "..."
	ellipsisWidth := runewidth.StringWidth(ellipsis)
	budget := maxWidth - 2*ellipsisWidth
	if budget < 0 {
		budget = 0
	}

	lo, hi := matchStartRune, matchEndRune
	width := runewidth.StringWidth(string(runes[lo:hi]))
	for width < budget {
		grew := false
		if lo > 0 {
			lo--
			grew = true
		}
		if width = runewidth.StringWidth(string(runes[lo:hi])); width >= budget {
			break
		}
		if hi < len(runes) {
			hi++
			grew = true
		}
		width = runewidth.StringWidth(string(runes[lo:hi]))
		if !grew {
			break
		}
	}

	window := string(runes[lo:hi])
	if lo > 0 {
		window = ellipsis + window
	}
	if hi < len(runes) {
		window = window + ellipsis
	}
	return window
}
