package pollset

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeMember struct {
	remaining int32
	done      int32
}

func (f *fakeMember) Poll() int {
	if atomic.LoadInt32(&f.remaining) <= 0 {
		return 0
	}
	atomic.AddInt32(&f.remaining, -1)
	if atomic.LoadInt32(&f.remaining) == 0 {
		atomic.StoreInt32(&f.done, 1)
	}
	return 1
}

func (f *fakeMember) Done() bool { return atomic.LoadInt32(&f.done) == 1 }

func TestRunOncePrunesFinishedMembers(t *testing.T) {
	s := New(0, 0)
	m := &fakeMember{remaining: 1}
	s.Add(m)

	if got := s.RunOnce(); got != 1 {
		t.Fatalf("RunOnce() = %d, want 1", got)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after member finished", s.Len())
	}
}

func TestRunOnceKeepsUnfinishedMembers(t *testing.T) {
	s := New(0, 0)
	m := &fakeMember{remaining: 3}
	s.Add(m)

	s.RunOnce()
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 while member still has work", s.Len())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunDrainsMemberToCompletion(t *testing.T) {
	s := New(time.Millisecond, 5*time.Millisecond)
	m := &fakeMember{remaining: 5}
	s.Add(m)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if !m.Done() {
		t.Fatal("member should be fully drained")
	}
}
