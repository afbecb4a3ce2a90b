package metrics

import (
	"context"
	"time"

	perrors "github.com/vinayprograms/pulse/errors"
)

// Cycle is the record written once per heartbeat cycle, including failed ones.
type Cycle struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
	Selected   []string  `json:"selected"`
	Executed   int       `json:"executed"`
	Notified   int       `json:"notified"`
	Reasoning  string    `json:"reasoning"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Fallback   bool      `json:"fallback"`
	QuietHours bool      `json:"quiet_hours"`
}

// Recorder persists cycle records. Records are append-only.
type Recorder interface {
	RecordCycle(ctx context.Context, c Cycle) error
}

// History reads back recent cycles, newest first.
type History interface {
	Recent(ctx context.Context, limit int) ([]Cycle, error)
}

// Multi writes to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) RecordCycle(ctx context.Context, c Cycle) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordCycle(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return perrors.Join(errs...)
}

func recordFailed(err error, c Cycle, what string) error {
	return perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, what, perrors.WithCycleID(c.ID))
}
