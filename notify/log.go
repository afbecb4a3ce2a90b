package notify

import (
	"context"

	"github.com/vinayprograms/pulse/logging"
)

// Log writes notifications and alerts to a logger. It is the sink of last
// resort when nothing else is configured.
type Log struct {
	logger *logging.Logger
}

// NewLog creates a log sink. A nil logger discards everything.
func NewLog(logger *logging.Logger) *Log {
	return &Log{logger: logging.OrNop(logger).WithComponent("notify")}
}

func (l *Log) Notify(ctx context.Context, message, action string) (bool, error) {
	cycleID, checkID := Origin(ctx)
	l.logger.Info("notification", map[string]interface{}{
		"message":  message,
		"action":   action,
		"check_id": checkID,
		"cycle_id": cycleID,
	})
	return true, nil
}

func (l *Log) Alert(_ context.Context, alert Alert) error {
	fields := map[string]interface{}{
		"severity": string(alert.Severity),
		"title":    alert.Title,
		"message":  alert.Message,
	}
	if alert.CheckID != "" {
		fields["check_id"] = alert.CheckID
	}
	if alert.CycleID != "" {
		fields["cycle_id"] = alert.CycleID
	}
	for k, v := range alert.Metadata {
		fields[k] = v
	}
	switch alert.Severity {
	case SeverityHigh, SeverityCritical:
		l.logger.Error("alert", fields)
	default:
		l.logger.Warn("alert", fields)
	}
	return nil
}
