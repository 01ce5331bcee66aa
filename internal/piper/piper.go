// Package piper drains a non-seekable input (typically a pipe) into a
// private, seekable scratch file so the rest of the core can treat it
// like any other file: random-access reads via a LineBuffer attached to
// the scratch file's descriptor.
//
// lnav does this with a forked child process reading through its own
// line_buffer and writing back with positional pwrite(2) calls
// (original_source/src/piper_proc.cc). Go's goroutine scheduler is the
// idiomatic substitute for that fork: the drain loop below runs in its
// own goroutine, uses blocking reads (so there is no non-blocking/
// EAGAIN short-read case to roll back, unlike the C++ original), and
// commits bytes to the scratch file with WriteAt so any number of
// LineBuffer readers can concurrently pread it, exactly as the original
// intends.
package piper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	derrors "github.com/mimecast/lnavcore/internal/errors"
	"github.com/mimecast/lnavcore/internal/constants"
	"github.com/mimecast/lnavcore/internal/io/dlog"
	"github.com/mimecast/lnavcore/internal/metrics"
)

// TimestampMode controls whether drained lines get an ISO-8601
// millisecond timestamp prefix.
type TimestampMode int

const (
	TimestampOff TimestampMode = iota
	TimestampPrependISO8601MS
)

// Job is the state of a running (or finished) pipe-to-file worker.
type Job struct {
	scratch *os.File

	mu       sync.Mutex
	finished bool
	err      error

	cancel context.CancelFunc
	done   chan struct{}
}

// Start spawns a worker that drains input into a seekable scratch file
// and returns a handle to it. If scratchPath is empty, an anonymous file
// is created under TMPDIR (or os.TempDir()) and immediately unlinked so
// it is reachable only via its descriptor, mirroring piper_proc.cc's
// mkstemp-then-unlink behavior.
func Start(ctx context.Context, input *os.File, mode TimestampMode, scratchPath string) (*Job, error) {
	scratch, err := openScratch(scratchPath)
	if err != nil {
		return nil, derrors.Wrap(err, "piper: open scratch file")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		scratch: scratch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	metrics.ActivePiperJobs.Inc()
	go job.drain(jobCtx, input, mode)
	return job, nil
}

func openScratch(path string) (*os.File, error) {
	if path != "" {
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	}

	dir := os.Getenv("TMPDIR")
	if dir == "" {
		dir = os.TempDir()
	}
	name := filepath.Join(dir, fmt.Sprintf("lnavcore-piper-%s", uuid.NewString()))
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(name); err != nil {
		dlog.Common.Warn("piper", "failed to unlink anonymous scratch file", name, err)
	}
	return f, nil
}

// drain is the worker's main loop: read complete lines from input and
// append them, optionally timestamped, to the scratch file at the next
// free positional offset.
func (j *Job) drain(ctx context.Context, input *os.File, mode TimestampMode) {
	defer close(j.done)
	defer j.scratch.Sync()
	defer metrics.ActivePiperJobs.Dec()

	// Cancellation unblocks a read in progress by expiring input's read
	// deadline (effective for pipes and other pollable descriptors).
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			input.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	r := bufio.NewReaderSize(input, 64*1024)
	var woff int64

	for {
		select {
		case <-ctx.Done():
			j.setErr(ctx.Err())
			return
		default:
		}

		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			n, werr := j.writeLine(woff, line, mode)
			if werr != nil {
				dlog.Common.Error("piper", "write failed, stopping drain", werr)
				j.setErr(derrors.Wrap(werr, "piper: write"))
				return
			}
			woff += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				j.writeSentinel(woff, mode)
			} else if ctx.Err() != nil {
				j.setErr(ctx.Err())
			} else {
				j.setErr(derrors.Wrap(err, "piper: read"))
			}
			return
		}
	}
}

// writeLine writes one line (verbatim, or timestamp-prefixed) at the
// given positional offset and returns the number of bytes written.
func (j *Job) writeLine(woff int64, line []byte, mode TimestampMode) (int, error) {
	var written int
	if mode == TimestampPrependISO8601MS {
		n, err := j.writeTimestamp(woff)
		if err != nil {
			return written, err
		}
		written += n
		woff += int64(n)
	}
	n, err := j.scratch.WriteAt(line, woff)
	written += n
	if n > 0 {
		metrics.PiperBytesDrained.Add(float64(n))
	}
	return written, err
}

func (j *Job) writeTimestamp(woff int64) (int, error) {
	now := time.Now()
	ts := now.Format(constants.TimestampLayout) + "  "
	return j.scratch.WriteAt([]byte(ts), woff)
}

// writeSentinel appends the EOF marker, timestamped if enabled, exactly
// once after all input bytes have been committed.
func (j *Job) writeSentinel(woff int64, mode TimestampMode) {
	if mode == TimestampPrependISO8601MS {
		n, err := j.writeTimestamp(woff)
		if err != nil {
			j.setErr(derrors.Wrap(err, "piper: write sentinel timestamp"))
			return
		}
		woff += int64(n)
	}
	if _, err := j.scratch.WriteAt([]byte(constants.StdinEOFSentinel), woff); err != nil {
		j.setErr(derrors.Wrap(err, "piper: write sentinel"))
	}
}

func (j *Job) setErr(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = true
	if j.err == nil && err != nil && err != context.Canceled {
		j.err = err
	}
}

// IsFinished is a non-blocking, idempotent probe for worker completion.
func (j *Job) IsFinished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Err returns the error the worker stopped with, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// ScratchFile returns the descriptor LineBuffer readers should attach to.
func (j *Job) ScratchFile() *os.File { return j.scratch }

// Terminate requests an orderly shutdown and blocks until the worker has
// been reaped. Calling it more than once is safe.
func (j *Job) Terminate() {
	j.cancel()
	<-j.done
}

// Poll makes Job satisfy pollset.Member. A piper job has nothing to
// dispatch to a sink of its own — it just drains in the background —
// so Poll always reports no progress; pollset still uses it to detect
// completion via Done.
func (j *Job) Poll() int { return 0 }

// Done reports whether the drain goroutine has exited, satisfying
// pollset.Member.
func (j *Job) Done() bool { return j.IsFinished() }
