package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is a token bucket refilled continuously at capacity/window.
type bucket struct {
	capacity   int
	available  int
	window     time.Duration
	lastRefill time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	tokens := int(float64(b.capacity) * float64(elapsed) / float64(b.window))
	if tokens > 0 {
		b.available += tokens
		if b.available > b.capacity {
			b.available = b.capacity
		}
		b.lastRefill = now
	}
}

// interval is the time it takes to earn one token.
func (b *bucket) interval() time.Duration {
	return b.window / time.Duration(b.capacity)
}

// MemoryLimiter provides local rate limiting using token buckets.
// It is safe for concurrent use.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	closed  bool
	nowFunc func() time.Time
}

// Compile-time assertion that MemoryLimiter implements Limiter.
var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a new in-memory rate limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (m *MemoryLimiter) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = now
}

func (m *MemoryLimiter) SetCapacity(resource string, capacity int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if capacity <= 0 || window <= 0 {
		delete(m.buckets, resource)
		return
	}

	if b, ok := m.buckets[resource]; ok {
		b.refill(m.nowFunc())
		b.capacity = capacity
		b.window = window
		if b.available > capacity {
			b.available = capacity
		}
		return
	}
	m.buckets[resource] = &bucket{
		capacity:   capacity,
		available:  capacity, // start full
		window:     window,
		lastRefill: m.nowFunc(),
	}
}

func (m *MemoryLimiter) Capacity(resource string) *Capacity {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[resource]
	if !ok {
		return nil
	}
	b.refill(m.nowFunc())
	return &Capacity{
		Resource:  resource,
		Available: b.available,
		Total:     b.capacity,
		Window:    b.window,
	}
}

func (m *MemoryLimiter) TryAcquire(resource string) bool {
	ok, _ := m.take(resource)
	return ok
}

func (m *MemoryLimiter) Acquire(ctx context.Context, resource string) error {
	for {
		ok, wait := m.take(resource)
		if ok {
			return nil
		}
		if wait < 0 {
			return ErrClosed
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token. On failure it returns how long until the next
// token, or -1 when the limiter is closed.
func (m *MemoryLimiter) take(resource string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, -1
	}
	b, ok := m.buckets[resource]
	if !ok {
		return true, 0
	}

	now := m.nowFunc()
	b.refill(now)
	if b.available > 0 {
		b.available--
		return true, 0
	}

	wait := b.interval() - now.Sub(b.lastRefill)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}

// Close shuts the limiter. Later acquisitions fail.
func (m *MemoryLimiter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.buckets = make(map[string]*bucket)
	return nil
}
