package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrClosed          = errors.New("limiter closed")
	ErrResourceUnknown = errors.New("unknown resource")
)

// Limiter guards calls to rate-limited collaborators such as the decision
// backend.
type Limiter interface {
	// TryAcquire takes a token without blocking.
	// Unknown resources are unlimited and always succeed.
	TryAcquire(resource string) bool

	// Acquire blocks until a token is available or ctx ends.
	Acquire(ctx context.Context, resource string) error

	// SetCapacity allows capacity calls per window for resource.
	// A non-positive capacity or window removes the limit.
	SetCapacity(resource string, capacity int, window time.Duration)

	// Capacity reports the current bucket state, or nil for unknown resources.
	Capacity(resource string) *Capacity

	Close() error
}

// Capacity describes a resource's token bucket.
type Capacity struct {
	Resource  string
	Available int
	Total     int
	Window    time.Duration
}
