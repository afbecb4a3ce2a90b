package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter()
	l.SetClock(clock.Now)
	return l, clock
}

func TestMemoryLimiter_TryAcquire(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()
	l.SetCapacity("decision", 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.TryAcquire("decision") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}
	if l.TryAcquire("decision") {
		t.Error("fourth acquire should fail")
	}
	if got := l.Capacity("decision").Available; got != 0 {
		t.Errorf("available = %d, want 0", got)
	}
}

func TestMemoryLimiter_UnknownResourceIsUnlimited(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()

	for i := 0; i < 100; i++ {
		if !l.TryAcquire("anything") {
			t.Fatal("unknown resources must not be limited")
		}
	}
	if l.Capacity("anything") != nil {
		t.Error("Capacity of unknown resource should be nil")
	}
}

func TestMemoryLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter()
	defer l.Close()
	l.SetCapacity("decision", 4, time.Minute)

	for l.TryAcquire("decision") {
	}

	clock.Advance(15 * time.Second)
	if !l.TryAcquire("decision") {
		t.Error("one token should refill after window/capacity")
	}
	if l.TryAcquire("decision") {
		t.Error("only one token should have refilled")
	}

	clock.Advance(10 * time.Minute)
	if got := l.Capacity("decision").Available; got != 4 {
		t.Errorf("available = %d, refill must cap at capacity", got)
	}
}

func TestMemoryLimiter_SetCapacity(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()

	l.SetCapacity("decision", 10, time.Hour)
	l.TryAcquire("decision")
	l.SetCapacity("decision", 5, time.Hour)

	c := l.Capacity("decision")
	if c.Total != 5 || c.Available != 5 {
		t.Errorf("after shrink: %+v", c)
	}

	l.SetCapacity("decision", 0, time.Hour)
	if l.Capacity("decision") != nil {
		t.Error("zero capacity removes the limit")
	}
	l.SetCapacity("decision", 1, 0)
	if l.Capacity("decision") != nil {
		t.Error("zero window removes the limit")
	}
}

func TestMemoryLimiter_AcquireWaits(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	l.SetCapacity("decision", 1, 50*time.Millisecond)
	l.TryAcquire("decision")

	start := time.Now()
	if err := l.Acquire(context.Background(), "decision"); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Acquire returned after %v, expected to wait for refill", elapsed)
	}
}

func TestMemoryLimiter_AcquireCanceled(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	l.SetCapacity("decision", 1, time.Hour)
	l.TryAcquire("decision")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "decision"); err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestMemoryLimiter_Close(t *testing.T) {
	l, _ := newTestLimiter()
	l.SetCapacity("decision", 1, time.Hour)
	l.Close()

	if l.TryAcquire("decision") {
		t.Error("TryAcquire after Close should fail")
	}
	if err := l.Acquire(context.Background(), "decision"); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	l.SetCapacity("decision", 1, time.Hour)
	if l.Capacity("decision") != nil {
		t.Error("SetCapacity after Close is ignored")
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()
	l.SetCapacity("decision", 50, time.Hour)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.TryAcquire("decision") {
					granted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 50 {
		t.Errorf("granted = %d, want exactly 50", got)
	}
}
