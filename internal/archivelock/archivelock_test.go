package archivelock

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")

	guard, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestMarkDoneThenIsDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")

	if IsDone(path) {
		t.Fatal("IsDone should be false before MarkDone")
	}
	guard, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer guard.Release()

	if err := MarkDone(path); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if !IsDone(path) {
		t.Fatal("IsDone should be true after MarkDone")
	}
}

func TestSecondAcquireBlocksUntilReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire (first): %v", err)
	}

	acquired := make(chan *Guard, 1)
	go func() {
		g, err := Acquire(path)
		if err != nil {
			t.Errorf("Acquire (second): %v", err)
			return
		}
		acquired <- g
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should not succeed while first holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case g := <-acquired:
		g.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("second Acquire did not succeed after first released")
	}
}
