package lineindex

import (
	"os"
	"testing"

	"github.com/mimecast/lnavcore/internal/linebuf"
	"github.com/mimecast/lnavcore/internal/testutil"
)

func tempFile(t *testing.T, content string) *os.File {
	t.Helper()
	path := testutil.TempFile(t, content)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestValueForLineSequential(t *testing.T) {
	f := tempFile(t, "alpha\nbeta\ngamma\n")
	lb := linebuf.New(1 << 20)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ix := New(lb)

	want := []string{"alpha", "beta", "gamma"}
	for i, w := range want {
		v, ok := ix.ValueForLine(i)
		if !ok || v != w {
			t.Fatalf("line %d = %q, ok=%v, want %q", i, v, ok, w)
		}
	}
	if _, ok := ix.ValueForLine(3); ok {
		t.Fatal("line 3 should not exist")
	}
}

func TestValueForLineOutOfOrder(t *testing.T) {
	f := tempFile(t, "one\ntwo\nthree\n")
	lb := linebuf.New(1 << 20)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ix := New(lb)

	if v, ok := ix.ValueForLine(2); !ok || v != "three" {
		t.Fatalf("line 2 = %q, ok=%v, want \"three\"", v, ok)
	}
	if v, ok := ix.ValueForLine(0); !ok || v != "one" {
		t.Fatalf("line 0 = %q, ok=%v, want \"one\"", v, ok)
	}
}

func TestLineCountGrowsAsRead(t *testing.T) {
	f := tempFile(t, "a\nb\nc\n")
	lb := linebuf.New(1 << 20)
	if err := lb.Attach(f); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ix := New(lb)
	if ix.LineCount() != 0 {
		t.Fatalf("LineCount() = %d before any reads, want 0", ix.LineCount())
	}
	ix.ValueForLine(1)
	if ix.LineCount() != 2 {
		t.Fatalf("LineCount() = %d after reading line 1, want 2", ix.LineCount())
	}
}
