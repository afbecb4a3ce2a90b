package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vinayprograms/pulse/bus"
	perrors "github.com/vinayprograms/pulse/errors"
)

// Bus publishes notifications and alerts as JSON on the pulse subjects.
type Bus struct {
	bus bus.MessageBus
	now func() time.Time
}

// NewBus creates a notifier and alerter backed by b.
func NewBus(b bus.MessageBus) *Bus {
	return &Bus{bus: b, now: time.Now}
}

// Notify publishes a Notification on bus.SubjectNotify.
func (b *Bus) Notify(ctx context.Context, message, action string) (bool, error) {
	cycleID, checkID := Origin(ctx)
	data, err := json.Marshal(Notification{
		Message:   message,
		Action:    action,
		CheckID:   checkID,
		CycleID:   cycleID,
		Timestamp: b.now(),
	})
	if err != nil {
		return false, perrors.WrapWithCode(err, perrors.ErrCodeNotifyFailed, "encode notification")
	}
	if err := b.bus.Publish(ctx, bus.SubjectNotify, data); err != nil {
		return false, perrors.WrapWithCode(err, perrors.ErrCodeNotifyFailed, "publish notification",
			perrors.WithCheckID(checkID), perrors.WithCycleID(cycleID))
	}
	return true, nil
}

// Alert publishes alert on bus.SubjectAlert.
func (b *Bus) Alert(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(stamp(alert, b.now()))
	if err != nil {
		return perrors.WrapWithCode(err, perrors.ErrCodeNotifyFailed, "encode alert")
	}
	if err := b.bus.Publish(ctx, bus.SubjectAlert, data); err != nil {
		return perrors.WrapWithCode(err, perrors.ErrCodeNotifyFailed, "publish alert",
			perrors.WithCheckID(alert.CheckID), perrors.WithCycleID(alert.CycleID))
	}
	return nil
}
