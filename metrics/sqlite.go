package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	perrors "github.com/vinayprograms/pulse/errors"
)

// tsLayout is fixed width so that ORDER BY ts sorts chronologically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRecorder appends cycles to the heartbeat_cycles table.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder creates the table if needed. The caller owns db.
func NewSQLiteRecorder(ctx context.Context, db *sql.DB) (*SQLiteRecorder, error) {
	r := &SQLiteRecorder{db: db}
	if err := r.initSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS heartbeat_cycles (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			status TEXT NOT NULL,
			selected TEXT NOT NULL DEFAULT '[]',
			executed INTEGER NOT NULL DEFAULT 0,
			notified INTEGER NOT NULL DEFAULT 0,
			reasoning TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			fallback INTEGER NOT NULL DEFAULT 0,
			quiet_hours INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_heartbeat_cycles_ts ON heartbeat_cycles(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "init heartbeat_cycles schema")
		}
	}
	return nil
}

// RecordCycle inserts one row.
func (r *SQLiteRecorder) RecordCycle(ctx context.Context, c Cycle) error {
	selected, err := json.Marshal(nonNil(c.Selected))
	if err != nil {
		return recordFailed(err, c, "encode selected checks")
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO heartbeat_cycles
		(id, ts, status, selected, executed, notified, reasoning, duration_ms, error, fallback, quiet_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Timestamp.UTC().Format(tsLayout), c.Status, string(selected),
		c.Executed, c.Notified, c.Reasoning, c.DurationMS, c.Error,
		boolToInt(c.Fallback), boolToInt(c.QuietHours))
	if err != nil {
		return recordFailed(err, c, "insert cycle")
	}
	return nil
}

// Recent returns up to limit cycles, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, ts, status, selected, executed, notified,
		reasoning, duration_ms, error, fallback, quiet_hours
		FROM heartbeat_cycles ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "query cycles")
	}
	defer rows.Close()
	return scanCycles(rows)
}

// Get returns the cycles with the given ids, newest first. Missing ids are skipped.
func (r *SQLiteRecorder) Get(ctx context.Context, ids ...string) ([]Cycle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, ts, status, selected, executed, notified,
		reasoning, duration_ms, error, fallback, quiet_hours
		FROM heartbeat_cycles WHERE id IN (%s) ORDER BY ts DESC`, placeholders), args...)
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "query cycles")
	}
	defer rows.Close()
	return scanCycles(rows)
}

func scanCycles(rows *sql.Rows) ([]Cycle, error) {
	var out []Cycle
	for rows.Next() {
		var (
			c                    Cycle
			ts, selected         string
			fallback, quietHours int
		)
		if err := rows.Scan(&c.ID, &ts, &c.Status, &selected, &c.Executed, &c.Notified,
			&c.Reasoning, &c.DurationMS, &c.Error, &fallback, &quietHours); err != nil {
			return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "scan cycle")
		}
		c.Timestamp, _ = time.Parse(tsLayout, ts)
		if err := json.Unmarshal([]byte(selected), &c.Selected); err != nil {
			return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "decode selected checks",
				perrors.WithCycleID(c.ID))
		}
		c.Fallback = fallback != 0
		c.QuietHours = quietHours != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "iterate cycles")
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
