package linebuf

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"testing"

	derrors "github.com/mimecast/lnavcore/internal/errors"
	"github.com/mimecast/lnavcore/internal/testutil"
)

func tempFileWithContent(t *testing.T, content []byte) *os.File {
	t.Helper()
	path := testutil.TempFile(t, string(content))
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestReadLineRoundTrip(t *testing.T) {
	content := []byte("alpha\nbeta\ngamma\n")
	f := tempFileWithContent(t, content)

	lb := New(constantsMaxBufferForTest)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var offset int64
	var lines [][]byte
	for {
		lr, err := lb.ReadLine(&offset, false)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		line := make([]byte, len(lr.Data))
		copy(line, lr.Data)
		lines = append(lines, line)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i, w := range want {
		if string(lines[i]) != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestReadLinePartialFinalLine(t *testing.T) {
	f := tempFileWithContent(t, []byte("one\ntwo"))
	lb := New(constantsMaxBufferForTest)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var offset int64
	lr, err := lb.ReadLine(&offset, false)
	if err != nil || string(lr.Data) != "one" || lr.Partial {
		t.Fatalf("first line = %q partial=%v err=%v", lr.Data, lr.Partial, err)
	}
	lr, err = lb.ReadLine(&offset, false)
	if err != nil {
		t.Fatalf("second ReadLine: %v", err)
	}
	if string(lr.Data) != "two" || !lr.Partial {
		t.Fatalf("second line = %q partial=%v, want \"two\" partial=true", lr.Data, lr.Partial)
	}
}

func TestMonotonicOffsets(t *testing.T) {
	f := tempFileWithContent(t, []byte("a\nbb\nccc\n"))
	lb := New(constantsMaxBufferForTest)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var offset int64
	var last int64 = -1
	for {
		start := offset
		_, err := lb.ReadLine(&offset, false)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if start < last {
			t.Fatalf("offsets went backwards: start=%d last=%d", start, last)
		}
		last = start
		if offset <= start {
			t.Fatalf("offset did not advance: start=%d next=%d", start, offset)
		}
	}
}

func TestBufferExhausted(t *testing.T) {
	longLine := bytes.Repeat([]byte("x"), 64)
	content := append(append([]byte("short\n"), longLine...), '\n')
	f := tempFileWithContent(t, content)

	lb := New(8) // absurdly small MAX_BUFFER to force exhaustion
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	var offset int64
	if _, err := lb.ReadLine(&offset, false); err != nil {
		t.Fatalf("first line should fit: %v", err)
	}
	_, err := lb.ReadLine(&offset, false)
	if !derrors.Is(err, derrors.ErrBufferExhausted) {
		t.Fatalf("expected ErrBufferExhausted, got %v", err)
	}
}

func TestGzipCompressionSniffed(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("one\ntwo\n"))
	gw.Close()

	f := tempFileWithContent(t, buf.Bytes())
	lb := New(constantsMaxBufferForTest)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if lb.Compression() != CompressionGzip {
		t.Fatalf("Compression() = %v, want gzip", lb.Compression())
	}

	var offset int64
	lr, err := lb.ReadLine(&offset, false)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(lr.Data) != "one" {
		t.Fatalf("line = %q, want \"one\"", lr.Data)
	}
}

func TestSeekBehindWindowFails(t *testing.T) {
	f := tempFileWithContent(t, []byte("aaaa\nbbbb\ncccc\n"))
	lb := New(16)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	var offset int64
	// Advance past the first two lines; the window only holds MAX_BUFFER
	// (16) bytes so the first line eventually falls out of range.
	for i := 0; i < 2; i++ {
		if _, err := lb.ReadLine(&offset, false); err != nil {
			t.Fatalf("ReadLine %d: %v", i, err)
		}
	}
	behind := int64(0)
	if _, err := lb.ReadLine(&behind, false); !derrors.Is(err, derrors.ErrSeek) {
		t.Fatalf("expected ErrSeek reading behind the window, got %v", err)
	}
}

// constantsMaxBufferForTest keeps these tests independent of the
// production MAX_BUFFER default.
const constantsMaxBufferForTest = 1 << 20
