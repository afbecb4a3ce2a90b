package state

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	ErrNotFound    = errors.New("key not found")
	ErrClosed      = errors.New("store closed")
	ErrLockHeld    = errors.New("lock already held")
	ErrLockNotHeld = errors.New("lock not held")
	ErrLockExpired = errors.New("lock expired")
	ErrInvalidKey  = errors.New("invalid key")
	ErrInvalidTTL  = errors.New("invalid TTL")
	ErrNotCounter  = errors.New("value is not a counter")
	ErrConflict    = errors.New("concurrent update conflict")
)

// StateStore is a key-value store with per-key expiry, atomic counters and
// locks. Breaker state lives here so it survives restarts and is shared by
// every engine instance pointed at the same backend.
type StateStore interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value. A ttl of 0 means the key never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Incr atomically adds one to the counter at key and returns the new
	// value. A missing or expired key starts from zero. Each increment
	// resets the expiry to now+ttl (sliding window); ttl 0 means no expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Keys returns live keys matching a pattern.
	// Pattern supports * wildcard at the end (e.g., "breaker.*").
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Lock acquires an exclusive lock that expires after ttl.
	// Returns ErrLockHeld if another holder owns it.
	Lock(ctx context.Context, key string, ttl time.Duration) (Lock, error)

	// Close shuts down the store and releases resources.
	Close() error
}

// Lock is an exclusive, expiring lock.
type Lock interface {
	// Unlock releases the lock.
	// Returns ErrLockNotHeld if already released.
	Unlock(ctx context.Context) error

	// Refresh extends the lock by its original TTL.
	// Returns ErrLockExpired if the lock has expired.
	Refresh(ctx context.Context) error

	// Key returns the lock key.
	Key() string
}

// ValidateKey checks if a key is valid.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, " \t\n") {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return ErrInvalidKey
	}
	if len(key) > 1024 {
		return ErrInvalidKey
	}
	return nil
}

// ValidateTTL checks if a TTL is valid.
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	return nil
}

// MatchPattern checks if a key matches a pattern.
// Supports * wildcard at the end (e.g., "breaker.*" matches "breaker.x.failures").
func MatchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}

// expiryFor returns the absolute expiry for ttl, or zero for no expiry.
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(expires, now time.Time) bool {
	return !expires.IsZero() && !now.Before(expires)
}
