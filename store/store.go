// Package store is the host's SQLite database: personas, calendar events,
// user activity and reminders. Builtin checks query it through the data
// handle, and it implements the situation readers.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/situation"
)

// tsLayout is fixed width so string comparison orders timestamps.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

// Store wraps the host database.
type Store struct {
	db    *sql.DB
	owned bool
}

var (
	_ situation.PersonaReader  = (*Store)(nil)
	_ situation.EventReader    = (*Store)(nil)
	_ situation.ActivityReader = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeFailed(err, "open database")
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY and
	// keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, owned: true}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// From wraps a database the caller owns. It does not migrate.
func From(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle. Checks receive it as their data.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables if needed.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			start_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_at)`,
		`CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_at ON activity(at)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			due_at TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			done INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeFailed(err, "migrate")
		}
	}
	return nil
}

// Name identifies the store to the shutdown coordinator.
func (s *Store) Name() string {
	return "store"
}

// Shutdown closes the database if Open created it.
func (s *Store) Shutdown(ctx context.Context) error {
	return s.Close()
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func storeFailed(err error, what string) error {
	return perrors.WrapWithCode(err, perrors.ErrCodeStoreFailed, what)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
