package state

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore implements StateStore in process memory.
// Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]*entry
	locks  map[string]*memoryLock
	closed atomic.Bool

	// nowFunc allows injecting a clock for testing.
	nowFunc func() time.Time

	cleanupTicker *time.Ticker
	done          chan struct{}
}

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data:          make(map[string]*entry),
		locks:         make(map[string]*memoryLock),
		nowFunc:       time.Now,
		cleanupTicker: time.NewTicker(time.Minute),
		done:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// SetClock replaces the store clock. Tests use it to step past expiries.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

func (s *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanupExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for key, e := range s.data {
		if expired(e.expires, now) {
			delete(s.data, key)
		}
	}
	for key, l := range s.locks {
		if expired(l.expires, now) {
			l.released.Store(true)
			delete(s.locks, key)
		}
	}
}

// live returns the entry for key if present and unexpired. Caller holds mu.
func (s *MemoryStore) live(key string) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if expired(e.expires, s.nowFunc()) {
		delete(s.data, key)
		return nil, false
	}
	return e, true
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	val := make([]byte, len(e.value))
	copy(val, e.value)
	return val, nil
}

// Put stores a value with optional TTL.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	val := make([]byte, len(value))
	copy(val, value)
	s.data[key] = &entry{value: val, expires: expiryFor(s.nowFunc(), ttl)}
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Incr atomically increments the counter at key.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	if err := ValidateTTL(ttl); err != nil {
		return 0, err
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if e, ok := s.live(key); ok {
		v, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, ErrNotCounter
		}
		n = v
	}
	n++
	s.data[key] = &entry{
		value:   []byte(strconv.FormatInt(n, 10)),
		expires: expiryFor(s.nowFunc(), ttl),
	}
	return n, nil
}

// Keys returns all live keys matching a pattern.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	var keys []string
	for key, e := range s.data {
		if expired(e.expires, now) {
			continue
		}
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Lock acquires an expiring lock.
func (s *MemoryStore) Lock(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lockKey := "_lock." + key
	now := s.nowFunc()

	if existing, ok := s.locks[lockKey]; ok {
		if !existing.released.Load() && !expired(existing.expires, now) {
			return nil, ErrLockHeld
		}
	}

	l := &memoryLock{
		store:   s,
		key:     lockKey,
		ttl:     ttl,
		expires: now.Add(ttl),
	}
	s.locks[lockKey] = l
	return l, nil
}

// Close shuts down the store.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)
	s.cleanupTicker.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	s.locks = nil
	return nil
}

type memoryLock struct {
	store    *MemoryStore
	key      string
	ttl      time.Duration
	expires  time.Time
	released atomic.Bool
}

func (l *memoryLock) Unlock(_ context.Context) error {
	if l.released.Swap(true) {
		return ErrLockNotHeld
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if l.store.locks[l.key] == l {
		delete(l.store.locks, l.key)
	}
	return nil
}

func (l *memoryLock) Refresh(_ context.Context) error {
	if l.released.Load() {
		return ErrLockNotHeld
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	now := l.store.nowFunc()
	if expired(l.expires, now) {
		l.released.Store(true)
		if l.store.locks[l.key] == l {
			delete(l.store.locks, l.key)
		}
		return ErrLockExpired
	}
	l.expires = now.Add(l.ttl)
	return nil
}

func (l *memoryLock) Key() string {
	return l.key
}
