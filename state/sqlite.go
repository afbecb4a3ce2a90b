package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore implements StateStore on a SQLite database, so breaker state
// outlives the process that wrote it. The engine's one-shot mode relies on
// this: each invocation is a new process.
//
// The store borrows the handle; Close stops the store but leaves the
// database open for its owner. Expiry is stored as unix nanoseconds, 0 for
// never, and expired rows read as missing.
type SQLiteStore struct {
	db     *sql.DB
	closed atomic.Bool

	// mu serialises read-modify-write transactions within the process.
	mu sync.Mutex

	// nowFunc allows injecting a clock for testing.
	nowFunc func() time.Time
}

// NewSQLiteStore creates the state tables on db if needed and purges
// expired rows.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite database required")
	}
	s := &SQLiteStore{db: db, nowFunc: time.Now}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pulse_state (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS pulse_locks (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("sqlite migrate state: %w", err)
		}
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SetClock replaces the store clock. Tests use it to step past expiries.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

func (s *SQLiteStore) now() int64 {
	return s.nowFunc().UnixNano()
}

func (s *SQLiteStore) expiry(ttl time.Duration) int64 {
	e := expiryFor(s.nowFunc(), ttl)
	if e.IsZero() {
		return 0
	}
	return e.UnixNano()
}

func liveAt(expiresAt, now int64) bool {
	return expiresAt == 0 || expiresAt > now
}

// sweep deletes expired values and locks.
func (s *SQLiteStore) sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pulse_state WHERE expires_at != 0 AND expires_at <= ?`, now); err != nil {
		return fmt.Errorf("sqlite sweep: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pulse_locks WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("sqlite sweep locks: %w", err)
	}
	return nil
}

// Get retrieves a value by key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM pulse_state WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	if !liveAt(expiresAt, now) {
		return nil, ErrNotFound
	}
	return value, nil
}

// Put stores a value with optional TTL.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateTTL(ttl); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if value == nil {
		value = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pulse_state (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.expiry(ttl))
	if err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pulse_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Incr atomically increments the counter at key.
func (s *SQLiteStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite incr: %w", err)
	}
	defer tx.Rollback()

	var (
		value     []byte
		expiresAt int64
		n         int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM pulse_state WHERE key = ?`, key).Scan(&value, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("sqlite incr: %w", err)
	case liveAt(expiresAt, s.now()):
		v, perr := strconv.ParseInt(string(value), 10, 64)
		if perr != nil {
			return 0, ErrNotCounter
		}
		n = v
	}
	n++

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pulse_state (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, []byte(strconv.FormatInt(n, 10)), s.expiry(ttl))
	if err != nil {
		return 0, fmt.Errorf("sqlite incr: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite incr commit: %w", err)
	}
	return n, nil
}

// Keys returns all live keys matching a pattern.
func (s *SQLiteStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM pulse_state WHERE expires_at = 0 OR expires_at > ? ORDER BY key`, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite list keys: %w", err)
		}
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list keys: %w", err)
	}
	return keys, nil
}

// Lock acquires an expiring lock. An expired holder is taken over.
func (s *SQLiteStore) Lock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
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

	l := &sqliteLock{
		store: s,
		key:   "_lock." + key,
		owner: uuid.NewString(),
		ttl:   ttl,
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pulse_locks (key, owner, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		 WHERE pulse_locks.expires_at <= ?`,
		l.key, l.owner, now+int64(ttl), now)
	if err != nil {
		return nil, fmt.Errorf("sqlite lock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("sqlite lock: %w", err)
	} else if n == 0 {
		return nil, ErrLockHeld
	}
	return l, nil
}

// Close stops the store. The database stays open for its owner.
func (s *SQLiteStore) Close() error {
	s.closed.Store(true)
	return nil
}

type sqliteLock struct {
	store    *SQLiteStore
	key      string
	owner    string
	ttl      time.Duration
	released atomic.Bool
}

func (l *sqliteLock) Unlock(ctx context.Context) error {
	if l.released.Swap(true) {
		return ErrLockNotHeld
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	_, err := l.store.db.ExecContext(ctx,
		`DELETE FROM pulse_locks WHERE key = ? AND owner = ?`, l.key, l.owner)
	if err != nil {
		return fmt.Errorf("sqlite unlock: %w", err)
	}
	return nil
}

func (l *sqliteLock) Refresh(ctx context.Context) error {
	if l.released.Load() {
		return ErrLockNotHeld
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	now := l.store.now()
	res, err := l.store.db.ExecContext(ctx,
		`UPDATE pulse_locks SET expires_at = ? WHERE key = ? AND owner = ? AND expires_at > ?`,
		now+int64(l.ttl), l.key, l.owner, now)
	if err != nil {
		return fmt.Errorf("sqlite refresh lock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("sqlite refresh lock: %w", err)
	} else if n == 0 {
		l.released.Store(true)
		return ErrLockExpired
	}
	return nil
}

func (l *sqliteLock) Key() string {
	return l.key
}
