package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// maxCASAttempts bounds optimistic retries on concurrent updates.
const maxCASAttempts = 16

// NATSStore implements StateStore on a NATS JetStream KV bucket.
//
// JetStream KV only supports a bucket-wide TTL, so each value is stored in
// an envelope carrying its own expiry. Expired entries read as missing and
// are purged lazily. Counters and locks use revision-checked writes.
type NATSStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	config NATSStoreConfig
	closed atomic.Bool

	nowFunc func() time.Time

	lockMu sync.Mutex
	locks  map[string]*natsLock
}

// NATSStoreConfig holds NATS KV store configuration.
type NATSStoreConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// History is the number of revisions to keep per key.
	// Default: 1
	History int

	// MaxValueSize is the maximum value size in bytes.
	// Default: 64KB
	MaxValueSize int32

	// Timeout bounds each KV round trip when the caller's context has no deadline.
	// Default: 5s
	Timeout time.Duration
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:       "pulse-state",
		History:      1,
		MaxValueSize: 64 * 1024,
		Timeout:      5 * time.Second,
	}
}

// envelope is the stored form of every value.
type envelope struct {
	Value   []byte `json:"v"`
	Expires int64  `json:"exp,omitempty"` // unix nanos, 0 = never
}

func (e envelope) expiresAt() time.Time {
	if e.Expires == 0 {
		return time.Time{}
	}
	return time.Unix(0, e.Expires)
}

func newEnvelope(value []byte, expires time.Time) ([]byte, error) {
	env := envelope{Value: value}
	if !expires.IsZero() {
		env.Expires = expires.UnixNano()
	}
	return json.Marshal(env)
}

// NewNATSStore opens (creating if needed) the KV bucket and returns a store.
func NewNATSStore(cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	def := DefaultNATSStoreConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = def.Bucket
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = def.MaxValueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := ensureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		History:      uint8(cfg.History),
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		return nil, err
	}

	return &NATSStore{
		conn:    cfg.Conn,
		kv:      kv,
		config:  cfg,
		nowFunc: time.Now,
		locks:   make(map[string]*natsLock),
	}, nil
}

// ensureBucket creates the bucket, or opens it when another instance won the race.
func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = js.KeyValue(ctx, cfg.Bucket)
			if err == nil {
				return kv, nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("create kv bucket: %w", ctx.Err())
		case <-time.After(time.Duration(1<<attempt) * 10 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("create kv bucket: %w", lastErr)
}

func (s *NATSStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}

// load reads key and decodes its envelope. Expired entries are reported as
// ErrNotFound together with their revision so callers can write over them.
func (s *NATSStore) load(ctx context.Context, key string) (envelope, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return envelope{}, 0, ErrNotFound
		}
		return envelope{}, 0, fmt.Errorf("kv get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return envelope{}, entry.Revision(), fmt.Errorf("kv decode %s: %w", key, err)
	}
	if expired(env.expiresAt(), s.nowFunc()) {
		return envelope{}, entry.Revision(), ErrNotFound
	}
	return env, entry.Revision(), nil
}

// Get retrieves a value by key.
func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	env, rev, err := s.load(ctx, key)
	if errors.Is(err, ErrNotFound) && rev != 0 {
		// Lazily purge the expired entry; losing this race is harmless.
		_ = s.kv.Delete(ctx, key, jetstream.LastRevision(rev))
	}
	if err != nil {
		return nil, err
	}
	return env.Value, nil
}

// Put stores a value with optional TTL.
func (s *NATSStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := newEnvelope(value, expiryFor(s.nowFunc(), ttl))
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// Incr atomically increments the counter at key using revision-checked writes.
func (s *NATSStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	if err := ValidateTTL(ttl); err != nil {
		return 0, err
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		env, rev, err := s.load(ctx, key)
		var n int64
		switch {
		case err == nil:
			n, err = strconv.ParseInt(string(env.Value), 10, 64)
			if err != nil {
				return 0, ErrNotCounter
			}
		case errors.Is(err, ErrNotFound):
		default:
			return 0, err
		}
		n++

		data, err := newEnvelope([]byte(strconv.FormatInt(n, 10)), expiryFor(s.nowFunc(), ttl))
		if err != nil {
			return 0, err
		}

		err = s.write(ctx, key, data, rev)
		if err == nil {
			return n, nil
		}
		if !isConflict(err) {
			return 0, fmt.Errorf("kv incr: %w", err)
		}
	}
	return 0, ErrConflict
}

// write creates key when rev is 0, otherwise updates it at rev.
func (s *NATSStore) write(ctx context.Context, key string, data []byte, rev uint64) error {
	if rev == 0 {
		_, err := s.kv.Create(ctx, key, data)
		return err
	}
	_, err := s.kv.Update(ctx, key, data, rev)
	return err
}

// isConflict reports a lost optimistic-concurrency race.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}

// Keys returns all live keys matching a pattern.
func (s *NATSStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv list keys: %w", err)
	}

	var keys []string
	for key := range lister.Keys() {
		if !MatchPattern(pattern, key) {
			continue
		}
		if _, _, err := s.load(ctx, key); err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Lock acquires an expiring lock. Acquisition is a revision-checked create,
// so two instances can never both hold the same key.
func (s *NATSStore) Lock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	lockKey := "_lock." + key

	_, rev, err := s.load(ctx, lockKey)
	switch {
	case err == nil:
		return nil, ErrLockHeld
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("check lock: %w", err)
	}

	data, err := newEnvelope([]byte(ttl.String()), s.nowFunc().Add(ttl))
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, lockKey, data, rev); err != nil {
		if isConflict(err) {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	// Remember our revision so Refresh and Unlock only touch our own lock.
	entry, err := s.kv.Get(ctx, lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	l := &natsLock{store: s, key: lockKey, ttl: ttl, revision: entry.Revision()}
	s.lockMu.Lock()
	s.locks[lockKey] = l
	s.lockMu.Unlock()
	return l, nil
}

// Close shuts down the store. The NATS connection is owned by the caller.
func (s *NATSStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	for _, l := range s.locks {
		l.released.Store(true)
	}
	s.locks = nil
	return nil
}

type natsLock struct {
	store    *NATSStore
	key      string
	ttl      time.Duration
	mu       sync.Mutex
	revision uint64
	released atomic.Bool
}

func (l *natsLock) Unlock(ctx context.Context) error {
	if l.released.Swap(true) {
		return ErrLockNotHeld
	}

	l.store.lockMu.Lock()
	delete(l.store.locks, l.key)
	l.store.lockMu.Unlock()

	ctx, cancel := l.store.withTimeout(ctx)
	defer cancel()

	l.mu.Lock()
	rev := l.revision
	l.mu.Unlock()

	err := l.store.kv.Delete(ctx, l.key, jetstream.LastRevision(rev))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) && !isConflict(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *natsLock) Refresh(ctx context.Context) error {
	if l.released.Load() {
		return ErrLockNotHeld
	}

	ctx, cancel := l.store.withTimeout(ctx)
	defer cancel()

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := newEnvelope([]byte(l.ttl.String()), l.store.nowFunc().Add(l.ttl))
	if err != nil {
		return err
	}
	rev, err := l.store.kv.Update(ctx, l.key, data, l.revision)
	if err != nil {
		if isConflict(err) || errors.Is(err, jetstream.ErrKeyNotFound) {
			l.released.Store(true)
			return ErrLockExpired
		}
		return fmt.Errorf("refresh lock: %w", err)
	}
	l.revision = rev
	return nil
}

func (l *natsLock) Key() string {
	return l.key
}
