package store

import (
	"context"
	"time"
)

// Reminder is one user reminder.
type Reminder struct {
	ID        int64
	Text      string
	Priority  string // critical, high, medium, low
	Due       time.Time
	UpdatedAt time.Time
	Done      bool
}

// AddReminder inserts r and returns its id. A zero UpdatedAt is stamped
// with now.
func (s *Store) AddReminder(ctx context.Context, r Reminder, now time.Time) (int64, error) {
	if r.Priority == "" {
		r.Priority = "medium"
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	due := ""
	if !r.Due.IsZero() {
		due = formatTS(r.Due)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO reminders (text, priority, due_at, updated_at, done)
		VALUES (?, ?, ?, ?, ?)`, r.Text, r.Priority, due, formatTS(r.UpdatedAt), boolToInt(r.Done))
	if err != nil {
		return 0, storeFailed(err, "insert reminder")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeFailed(err, "reminder id")
	}
	return id, nil
}

// CompleteReminder marks a reminder done.
func (s *Store) CompleteReminder(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET done = 1, updated_at = ? WHERE id = ?`,
		formatTS(now), id)
	if err != nil {
		return storeFailed(err, "complete reminder")
	}
	return nil
}

// Overdue returns open reminders of the given priority due before now,
// oldest due first.
func (s *Store) Overdue(ctx context.Context, priority string, now time.Time) ([]Reminder, error) {
	return s.queryReminders(ctx, `WHERE done = 0 AND priority = ? AND due_at != '' AND due_at < ?
		ORDER BY due_at`, priority, formatTS(now))
}

// Stale returns open reminders not updated since before, least recently
// updated first.
func (s *Store) Stale(ctx context.Context, before time.Time) ([]Reminder, error) {
	return s.queryReminders(ctx, `WHERE done = 0 AND updated_at < ? ORDER BY updated_at`, formatTS(before))
}

// CountOpen returns the number of open reminders.
func (s *Store) CountOpen(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminders WHERE done = 0`).Scan(&n); err != nil {
		return 0, storeFailed(err, "count reminders")
	}
	return n, nil
}

func (s *Store) queryReminders(ctx context.Context, where string, args ...interface{}) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, priority, due_at, updated_at, done
		FROM reminders `+where, args...)
	if err != nil {
		return nil, storeFailed(err, "query reminders")
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var (
			r              Reminder
			due, updatedAt string
			done           int
		)
		if err := rows.Scan(&r.ID, &r.Text, &r.Priority, &due, &updatedAt, &done); err != nil {
			return nil, storeFailed(err, "scan reminder")
		}
		if due != "" {
			if r.Due, err = parseTS(due); err != nil {
				return nil, storeFailed(err, "parse due time")
			}
		}
		if r.UpdatedAt, err = parseTS(updatedAt); err != nil {
			return nil, storeFailed(err, "parse update time")
		}
		r.Done = done != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailed(err, "iterate reminders")
	}
	return out, nil
}
