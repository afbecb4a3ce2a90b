package heartbeat

import (
	"time"

	"github.com/robfig/cron/v3"
)

// waker computes how long the daemon sleeps after a cycle.
type waker struct {
	schedule cron.Schedule
	location *time.Location
}

func newWaker(expr string, loc *time.Location) (*waker, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := &waker{location: loc}
	if expr != "" {
		s, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, err
		}
		w.schedule = s
	}
	return w, nil
}

// wait returns the delay until the next cycle. Without a schedule it is
// the fixed interval.
func (w *waker) wait(now time.Time, interval time.Duration) time.Duration {
	if w.schedule == nil {
		return interval
	}
	next := w.schedule.Next(now.In(w.location))
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (w *waker) scheduled() bool {
	return w.schedule != nil
}
