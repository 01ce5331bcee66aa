package linebuf

import (
	"bytes"
	"io"
	"os"
	"time"

	derrors "github.com/mimecast/lnavcore/internal/errors"
	"github.com/mimecast/lnavcore/internal/constants"
)

// delim is the single-byte line terminator. A trailing '\r' before it is
// never stripped; callers that care do so themselves.
const delim = '\n'

// LineRef is the result of a successful ReadLine. Data aliases the
// window's internal buffer and must be consumed or copied before the
// next ReadLine, ReadRange or Invalidate call.
type LineRef struct {
	Data    []byte
	Partial bool
}

// BufferRef is the result of a ReadRange bulk read.
type BufferRef struct {
	Data []byte
}

// countingReader tracks how many bytes have been pulled from the
// underlying physical source, independent of any decompression layered
// on top of it.
type countingReader struct {
	r   io.Reader
	pos int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.pos += int64(n)
	return n, err
}

// LineBuffer is a lazily-backed window over a file descriptor that may be
// a regular file, a pipe, or a compressed stream. It hides compression
// and seekability from callers, which only ever deal in logical
// (decompressed) offsets.
type LineBuffer struct {
	fd          *os.File
	isSeekable  bool
	compression Compression
	logical     io.Reader // decompressed stream, offsets are relative to this
	physical    *countingReader
	streamSize  int64 // -1 until known (pipe, pre-EOF)
	fileTime    time.Time
	pipeClosed  bool

	window    *ByteWindow
	maxBuffer int
}

// New creates an empty, unattached LineBuffer bounded by maxBuffer bytes
// (spec.md's MAX_BUFFER; 0 selects constants.MaxBuffer).
func New(maxBuffer int) *LineBuffer {
	if maxBuffer <= 0 {
		maxBuffer = constants.MaxBuffer
	}
	return &LineBuffer{
		maxBuffer:  maxBuffer,
		streamSize: -1,
	}
}

// Attach binds the LineBuffer to fd, determining seekability and
// compression at this point per spec.md §4.2. It fails only if fd is nil.
func (lb *LineBuffer) Attach(fd *os.File) error {
	if fd == nil {
		return derrors.Wrap(derrors.ErrInvalidArgument, "attach: nil descriptor")
	}
	lb.reset()
	lb.fd = fd

	if pos, err := fd.Seek(0, io.SeekCurrent); err == nil {
		lb.isSeekable = true
		if info, statErr := fd.Stat(); statErr == nil {
			lb.streamSize = info.Size()
			lb.fileTime = info.ModTime()
		}
		if _, err := fd.Seek(pos, io.SeekStart); err != nil {
			return derrors.Wrap(err, "attach: seek back")
		}
	} else {
		lb.isSeekable = false
		lb.streamSize = -1
	}

	head := make([]byte, constants.SniffLength)
	n, _ := io.ReadFull(fd, head)
	head = head[:n]

	var raw io.Reader
	if lb.isSeekable {
		if _, err := fd.Seek(0, io.SeekStart); err != nil {
			return derrors.Wrap(err, "attach: rewind after sniff")
		}
		raw = fd
	} else {
		raw = io.MultiReader(bytes.NewReader(head), fd)
	}

	lb.compression = sniffCompression(head)
	lb.physical = &countingReader{r: raw}

	logical, err := decompressorFor(lb.compression, lb.physical)
	if err != nil {
		return derrors.Wrap(err, "attach: init decompressor")
	}
	lb.logical = logical
	lb.window = NewByteWindow(constants.DefaultWindowSize, lb.maxBuffer)
	return nil
}

// IsPipe reports whether the attached descriptor is non-seekable.
func (lb *LineBuffer) IsPipe() bool { return !lb.isSeekable }

// IsPipeClosed reports whether a pipe source has been fully drained.
func (lb *LineBuffer) IsPipeClosed() bool { return !lb.isSeekable && lb.pipeClosed }

// StreamSize returns fstat.size for seekable sources, or the total bytes
// drained once a pipe has closed; -1 while a pipe is still open.
func (lb *LineBuffer) StreamSize() int64 { return lb.streamSize }

// FileTime is the underlying file's last-modified time, if available.
func (lb *LineBuffer) FileTime() time.Time { return lb.fileTime }

// Compression reports the sniffed compression kind.
func (lb *LineBuffer) Compression() Compression { return lb.compression }

// PhysicalOffset is a diagnostic aid, not a seek target. For an
// uncompressed source it returns logical unchanged; for a compressed
// source it ignores logical and returns the total number of compressed
// bytes consumed from the underlying stream so far.
func (lb *LineBuffer) PhysicalOffset(logical int64) int64 {
	if lb.compression == CompressionNone {
		return logical
	}
	return lb.physical.pos
}

// ReadLine returns the line beginning at *offset and advances *offset
// past the delimiter (or to end-of-stream for a partial final line).
func (lb *LineBuffer) ReadLine(offset *int64, includeDelim bool) (LineRef, error) {
	start := *offset
	if lb.window != nil && start < lb.window.BaseOffset() {
		return LineRef{}, derrors.ErrSeek
	}

	want := constants.DefaultWindowSize
	if want > lb.maxBuffer {
		want = lb.maxBuffer
	}

	for {
		if err := lb.window.Ensure(start, want); err != nil {
			return LineRef{}, err
		}
		data := lb.window.Bytes(start)
		if idx := bytes.IndexByte(data, delim); idx >= 0 {
			lineLen := idx
			if includeDelim {
				lineLen++
			}
			*offset = start + int64(idx) + 1
			return LineRef{Data: data[:lineLen]}, nil
		}

		if len(data) < want {
			n, err := lb.window.Fetch(lb.logical, want-len(data))
			if err != nil {
				return LineRef{}, derrors.Wrap(err, "read_line")
			}
			if n == 0 {
				// EOF. For a pipe this is final: the pipe is marked
				// closed and its stream size fixed at the bytes
				// drained so far.
				if lb.IsPipe() {
					lb.pipeClosed = true
					lb.streamSize = lb.window.BaseOffset() + int64(lb.window.Used())
				}
				if len(data) == 0 {
					return LineRef{}, io.EOF
				}
				*offset = start + int64(len(data))
				return LineRef{Data: data, Partial: true}, nil
			}
			continue
		}

		if want >= lb.maxBuffer {
			return LineRef{}, derrors.ErrBufferExhausted
		}
		want *= 2
		if want > lb.maxBuffer {
			want = lb.maxBuffer
		}
	}
}

// ReadRange performs a non-line-oriented bulk read of length bytes
// starting at offset, used to extract slices referenced by earlier match
// offsets.
func (lb *LineBuffer) ReadRange(offset int64, length int) (BufferRef, error) {
	if lb.window != nil && offset < lb.window.BaseOffset() {
		if !lb.isSeekable || lb.compression != CompressionNone {
			return BufferRef{}, derrors.ErrSeek
		}
		// Bytes the window already slid past are re-read positionally
		// from a seekable, uncompressed file.
		data := make([]byte, length)
		n, err := lb.fd.ReadAt(data, offset)
		if err != nil && err != io.EOF {
			return BufferRef{}, derrors.Wrap(err, "read_range")
		}
		return BufferRef{Data: data[:n]}, nil
	}
	if err := lb.window.Ensure(offset, length); err != nil {
		return BufferRef{}, err
	}
	for lb.window.Used()-int(offset-lb.window.BaseOffset()) < length {
		n, err := lb.window.Fetch(lb.logical, length)
		if err != nil {
			return BufferRef{}, derrors.Wrap(err, "read_range")
		}
		if n == 0 {
			break
		}
	}
	data := lb.window.Bytes(offset)
	if len(data) > length {
		data = data[:length]
	}
	return BufferRef{Data: data}, nil
}

// Invalidate forgets cached content without closing the descriptor. Safe
// to call after the caller has mutated buffer bytes in place.
func (lb *LineBuffer) Invalidate() {
	if lb.window != nil {
		lb.window.Reset(lb.window.BaseOffset() + int64(lb.window.Used()))
	}
}

// Reset detaches the descriptor and clears all state.
func (lb *LineBuffer) Reset() {
	lb.reset()
}

func (lb *LineBuffer) reset() {
	lb.fd = nil
	lb.isSeekable = false
	lb.compression = CompressionNone
	lb.logical = nil
	lb.physical = nil
	lb.streamSize = -1
	lb.fileTime = time.Time{}
	lb.pipeClosed = false
	lb.window = nil
}
