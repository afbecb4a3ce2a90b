package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vinayprograms/pulse/situation"
)

// SetActivePersona makes id the only active persona, creating it if needed.
func (s *Store) SetActivePersona(ctx context.Context, id, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailed(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE personas SET active = 0`); err != nil {
		return storeFailed(err, "clear active persona")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO personas (id, name, active) VALUES (?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = 1`, id, name); err != nil {
		return storeFailed(err, "set active persona")
	}
	if err := tx.Commit(); err != nil {
		return storeFailed(err, "commit")
	}
	return nil
}

// ActivePersona implements situation.PersonaReader.
func (s *Store) ActivePersona(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM personas WHERE active = 1 LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeFailed(err, "read active persona")
	}
	return id, nil
}

// AddEvent inserts a calendar event.
func (s *Store) AddEvent(ctx context.Context, title string, start time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (title, start_at) VALUES (?, ?)`,
		title, formatTS(start))
	if err != nil {
		return storeFailed(err, "insert event")
	}
	return nil
}

// NextEvent implements situation.EventReader.
func (s *Store) NextEvent(ctx context.Context, now time.Time) (*situation.Event, error) {
	events, err := s.EventsBetween(ctx, now, time.Time{}, 1)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// EventsBetween returns events starting in [from, to), soonest first. A
// zero to means no upper bound; limit <= 0 means no limit.
func (s *Store) EventsBetween(ctx context.Context, from, to time.Time, limit int) ([]situation.Event, error) {
	query := `SELECT title, start_at FROM events WHERE start_at >= ?`
	args := []interface{}{formatTS(from)}
	if !to.IsZero() {
		query += ` AND start_at < ?`
		args = append(args, formatTS(to))
	}
	query += ` ORDER BY start_at`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeFailed(err, "query events")
	}
	defer rows.Close()

	var events []situation.Event
	for rows.Next() {
		var title, start string
		if err := rows.Scan(&title, &start); err != nil {
			return nil, storeFailed(err, "scan event")
		}
		ts, err := parseTS(start)
		if err != nil {
			return nil, storeFailed(err, "parse event start")
		}
		events = append(events, situation.Event{Title: title, Start: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailed(err, "iterate events")
	}
	return events, nil
}

// RecordActivity logs a user interaction.
func (s *Store) RecordActivity(ctx context.Context, kind string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO activity (kind, at) VALUES (?, ?)`, kind, formatTS(at))
	if err != nil {
		return storeFailed(err, "insert activity")
	}
	return nil
}

// LastActivity implements situation.ActivityReader.
func (s *Store) LastActivity(ctx context.Context) (*time.Time, error) {
	var at sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(at) FROM activity`).Scan(&at); err != nil {
		return nil, storeFailed(err, "read last activity")
	}
	if !at.Valid {
		return nil, nil
	}
	ts, err := parseTS(at.String)
	if err != nil {
		return nil, storeFailed(err, "parse activity time")
	}
	return &ts, nil
}
