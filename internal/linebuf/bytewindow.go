// Package linebuf implements the core's line-oriented, lazily-backed
// window over a file descriptor: a stateless-facing cache that locates
// line delimiters in a decompressed, possibly non-seekable byte stream
// and supports random-access line retrieval by logical offset.
package linebuf

import (
	"io"

	derrors "github.com/mimecast/lnavcore/internal/errors"
)

// ByteWindow is a contiguous, heap-backed cache of a range of a source
// stream. It never performs I/O itself; LineBuffer drives it via Ensure
// and Fetch according to its own read policy.
type ByteWindow struct {
	buffer     []byte
	baseOffset int64
	used       int
	maxBuffer  int
}

// NewByteWindow allocates a window that starts small and grows up to
// maxBuffer bytes on demand.
func NewByteWindow(initial, maxBuffer int) *ByteWindow {
	if initial <= 0 {
		initial = 4096
	}
	if initial > maxBuffer {
		initial = maxBuffer
	}
	return &ByteWindow{
		buffer:    make([]byte, initial),
		maxBuffer: maxBuffer,
	}
}

// BaseOffset is the source-stream offset corresponding to buffer[0].
func (w *ByteWindow) BaseOffset() int64 { return w.baseOffset }

// Used is the number of valid bytes currently cached.
func (w *ByteWindow) Used() int { return w.used }

// Capacity is the window's current allocation.
func (w *ByteWindow) Capacity() int { return len(w.buffer) }

// Contains reports whether offset falls within the currently cached range.
func (w *ByteWindow) Contains(offset int64) bool {
	return offset >= w.baseOffset && offset < w.baseOffset+int64(w.used)
}

// Bytes returns the slice of cached bytes starting at offset. The slice
// aliases the window's internal buffer and is only valid until the next
// Ensure/Fetch call.
func (w *ByteWindow) Bytes(offset int64) []byte {
	i := int(offset - w.baseOffset)
	if i < 0 || i > w.used {
		return nil
	}
	return w.buffer[i:w.used]
}

// Ensure guarantees the window can hold at least minLength bytes starting
// at the logical offset start, sliding or growing the backing buffer as
// needed. It implements spec.md's ByteWindow.ensure: slide when the tail
// from start already fits capacity, otherwise double capacity until it
// fits (bounded by maxBuffer), failing with ErrBufferExhausted if it still
// doesn't fit.
func (w *ByteWindow) Ensure(start int64, minLength int) error {
	shift := int(start - w.baseOffset)

	if shift >= 0 && shift <= w.used {
		// start is inside (or right at the end of) the cached region: the
		// bytes already cached there are worth keeping.
		if len(w.buffer)-shift >= minLength {
			return nil
		}
		if shift > 0 {
			copy(w.buffer, w.buffer[shift:w.used])
			w.used -= shift
			w.baseOffset = start
		}
	} else {
		// start is outside the cached range entirely (a seek past the
		// known tail): nothing useful to keep, so discard and restart.
		// Only a seekable underlying descriptor could make this
		// observably correct for forward jumps; LineBuffer restricts
		// Ensure to offsets it has validated against BaseOffset already.
		w.used = 0
		w.baseOffset = start
	}

	if len(w.buffer) >= minLength {
		return nil
	}

	newCap := len(w.buffer)
	if newCap == 0 {
		newCap = 4096
	}
	for newCap < minLength {
		if newCap >= w.maxBuffer {
			return derrors.ErrBufferExhausted
		}
		newCap *= 2
	}
	if newCap > w.maxBuffer {
		newCap = w.maxBuffer
	}
	if newCap < minLength {
		return derrors.ErrBufferExhausted
	}
	grown := make([]byte, newCap)
	copy(grown, w.buffer[:w.used])
	w.buffer = grown
	return nil
}

// Fetch reads up to want bytes from r into the window immediately after
// the currently cached region, advancing Used. It returns the number of
// bytes actually read; 0 with a nil error means EOF.
func (w *ByteWindow) Fetch(r io.Reader, want int) (int, error) {
	if want <= 0 {
		return 0, nil
	}
	if w.used+want > len(w.buffer) {
		want = len(w.buffer) - w.used
	}
	if want <= 0 {
		return 0, nil
	}
	n, err := r.Read(w.buffer[w.used : w.used+want])
	w.used += n
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Reset discards all cached content without releasing the backing array.
func (w *ByteWindow) Reset(offset int64) {
	w.used = 0
	w.baseOffset = offset
}
