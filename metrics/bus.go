package metrics

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/pulse/bus"
)

// BusRecorder publishes each cycle on bus.SubjectCycle.
type BusRecorder struct {
	bus bus.MessageBus
}

// NewBusRecorder creates a recorder publishing on b.
func NewBusRecorder(b bus.MessageBus) *BusRecorder {
	return &BusRecorder{bus: b}
}

func (r *BusRecorder) RecordCycle(ctx context.Context, c Cycle) error {
	data, err := json.Marshal(c)
	if err != nil {
		return recordFailed(err, c, "encode cycle")
	}
	if err := r.bus.Publish(ctx, bus.SubjectCycle, data); err != nil {
		return recordFailed(err, c, "publish cycle")
	}
	return nil
}
