package notify

import (
	"context"
	"time"
)

// Severity ranks operator alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Notifier delivers user-facing messages produced by checks.
type Notifier interface {
	// Notify delivers message with an optional suggested action.
	// The bool reports whether any sink accepted the message.
	Notify(ctx context.Context, message, action string) (bool, error)
}

// Alerter delivers operator alerts on the system channel.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// Alert is a system-level event: a tripped breaker or a failed cycle.
type Alert struct {
	Severity  Severity          `json:"severity"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	CheckID   string            `json:"check_id,omitempty"`
	CycleID   string            `json:"cycle_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notification is the wire form of a delivered check message.
type Notification struct {
	Message   string    `json:"message"`
	Action    string    `json:"action,omitempty"`
	CheckID   string    `json:"check_id,omitempty"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type originKey struct{}

type origin struct {
	cycleID string
	checkID string
}

// WithOrigin tags ctx with the cycle and check a notification comes from.
func WithOrigin(ctx context.Context, cycleID, checkID string) context.Context {
	return context.WithValue(ctx, originKey{}, origin{cycleID: cycleID, checkID: checkID})
}

// Origin returns the cycle and check ids attached by WithOrigin.
func Origin(ctx context.Context) (cycleID, checkID string) {
	o, _ := ctx.Value(originKey{}).(origin)
	return o.cycleID, o.checkID
}

func stamp(a Alert, now time.Time) Alert {
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	if a.Severity == "" {
		a.Severity = SeverityWarning
	}
	return a
}
