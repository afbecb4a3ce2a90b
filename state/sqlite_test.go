package state

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSQLiteStore(t *testing.T, clock *fakeClock) StateStore {
	s, err := NewSQLiteStore(context.Background(), openTestDB(t, "file::memory:"))
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	s.SetClock(clock.Now)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, newTestSQLiteStore)
}

func TestNewSQLiteStore_NilDB(t *testing.T) {
	if _, err := NewSQLiteStore(context.Background(), nil); err == nil {
		t.Error("expected error for nil database")
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pulse.db")
	clock := newFakeClock()

	first, err := NewSQLiteStore(ctx, openTestDB(t, path))
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	first.SetClock(clock.Now)
	first.Incr(ctx, "breaker.disk_space.failures", 5*time.Minute)
	first.Incr(ctx, "breaker.disk_space.failures", 5*time.Minute)
	first.Put(ctx, "breaker.disk_space.disabled_until", []byte("later"), time.Hour)
	first.Close()

	// A second process opening the same file.
	second, err := NewSQLiteStore(ctx, openTestDB(t, path))
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	second.SetClock(clock.Now)
	defer second.Close()

	n, err := second.Incr(ctx, "breaker.disk_space.failures", 5*time.Minute)
	if err != nil {
		t.Fatalf("Incr error: %v", err)
	}
	if n != 3 {
		t.Errorf("Incr after reopen = %d, want 3", n)
	}
	if got, err := second.Get(ctx, "breaker.disk_space.disabled_until"); err != nil || string(got) != "later" {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
}

func TestSQLiteStore_CloseLeavesDBOpen(t *testing.T) {
	db := openTestDB(t, "file::memory:")
	s, err := NewSQLiteStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	s.Close()
	if err := db.Ping(); err != nil {
		t.Errorf("borrowed database closed by store: %v", err)
	}
}

func TestSQLiteStore_LockHeldAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pulse.db")

	a, err := NewSQLiteStore(ctx, openTestDB(t, path))
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	b, err := NewSQLiteStore(ctx, openTestDB(t, path))
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}

	l, err := a.Lock(ctx, "heartbeat.cycle", time.Minute)
	if err != nil {
		t.Fatalf("Lock error: %v", err)
	}
	if _, err := b.Lock(ctx, "heartbeat.cycle", time.Minute); err != ErrLockHeld {
		t.Errorf("Lock from second handle = %v, want ErrLockHeld", err)
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("Unlock error: %v", err)
	}
	if _, err := b.Lock(ctx, "heartbeat.cycle", time.Minute); err != nil {
		t.Errorf("Lock after release = %v", err)
	}
}

func TestSQLiteStore_SweepOnOpen(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "file::memory:")
	clock := newFakeClock()

	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	s.SetClock(clock.Now)
	s.Put(ctx, "short", []byte("x"), time.Second)
	s.Put(ctx, "forever", []byte("x"), 0)

	// Rows written with the fake clock are long expired by the real one.
	if _, err := NewSQLiteStore(ctx, db); err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pulse_state`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows after sweep = %d, want 1", n)
	}
}
