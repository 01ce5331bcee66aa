// Package lineindex bridges a linebuf.LineBuffer's byte-offset view of
// a source to grepworker.Source's line-number view of it: it walks the
// buffer forward exactly once, remembering where each line starts, and
// answers ValueForLine by re-reading the bytes between two remembered
// offsets.
//
// Neither the original lnav sources nor dtail need this glue directly —
// lnav's grep_proc_source is implemented by its text-file-backed line
// source classes, which already track line offsets as part of a larger
// indexing structure. This package is the minimal piece of that idea
// the core's line-number-addressed grep worker actually needs.
package lineindex

import (
	"sync"

	"github.com/mimecast/lnavcore/internal/linebuf"
)

// Index incrementally maps line numbers to byte ranges in a LineBuffer.
type Index struct {
	mu      sync.Mutex
	lb      *linebuf.LineBuffer
	offsets []int64 // offsets[i] is the start of line i; len(offsets)-1 lines known
	next    int64
}

// New wraps lb, whose ReadLine/ReadRange methods Index will drive.
func New(lb *linebuf.LineBuffer) *Index {
	return &Index{lb: lb, offsets: []int64{0}}
}

// ValueForLine implements grepworker.Source: it reads forward from
// wherever the index left off until line is known or the source runs
// dry (or stalls on an incomplete final line from a still-open pipe).
func (ix *Index) ValueForLine(line int) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for line >= len(ix.offsets)-1 {
		save := ix.next
		lr, err := ix.lb.ReadLine(&ix.next, true)
		if err != nil {
			// Not latched: a source still being written (a piper
			// scratch file) may hold more lines on a later call.
			ix.next = save
			return "", false
		}
		if lr.Partial {
			// A pipe source hasn't finished this line yet; don't
			// advance past it until a later call sees more bytes.
			ix.next = save
			return "", false
		}
		ix.offsets = append(ix.offsets, ix.next)
	}

	start := ix.offsets[line]
	end := ix.offsets[line+1]
	length := int(end - start)
	if length <= 0 {
		return "", true
	}
	buf, err := ix.lb.ReadRange(start, length)
	if err != nil {
		return "", false
	}
	data := buf.Data
	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	return string(data), true
}

// LineCount returns how many complete lines have been indexed so far.
func (ix *Index) LineCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.offsets) - 1
}
