package builtin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/pulse/checks"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/store"
)

// Check ids.
const (
	UpcomingEventID   = "upcoming_event"
	IdleUserID        = "idle_user"
	StaleRemindersID  = "stale_reminders"
	OverdueCriticalID = "overdue_critical"
)

// Defaults for the tunable thresholds.
const (
	DefaultEventLead  = 30 * time.Minute
	DefaultIdleAfter  = 4 * time.Hour
	DefaultStaleAfter = 7 * 24 * time.Hour
)

type options struct {
	now        func() time.Time
	eventLead  time.Duration
	idleAfter  time.Duration
	staleAfter time.Duration
}

// Option tunes the builtin checks.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEventLead sets how far ahead upcoming_event looks.
func WithEventLead(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.eventLead = d
		}
	}
}

// WithIdleAfter sets how long without activity counts as idle.
func WithIdleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleAfter = d
		}
	}
}

// WithStaleAfter sets how long an untouched reminder takes to go stale.
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		eventLead:  DefaultEventLead,
		idleAfter:  DefaultIdleAfter,
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// All returns every builtin check, most urgent first.
func All(opts ...Option) []checks.Check {
	o := newOptions(opts)
	return []checks.Check{
		checks.NewFunc(OverdueCriticalID, checks.Critical,
			"Critical reminders that are past due", o.overdueCritical),
		checks.NewFunc(UpcomingEventID, checks.High,
			fmt.Sprintf("Calendar events starting within %s", o.eventLead), o.upcomingEvent),
		checks.NewFunc(StaleRemindersID, checks.Medium,
			fmt.Sprintf("Open reminders untouched for %s", o.staleAfter), o.staleReminders),
		checks.NewFunc(IdleUserID, checks.Low,
			fmt.Sprintf("No user activity for %s", o.idleAfter), o.idleUser),
	}
}

// Register adds every builtin check to r.
func Register(r *checks.Registry, opts ...Option) error {
	for _, c := range All(opts...) {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func database(data any) (*store.Store, error) {
	switch d := data.(type) {
	case *store.Store:
		if d != nil {
			return d, nil
		}
	case *sql.DB:
		if d != nil {
			return store.From(d), nil
		}
	}
	return nil, perrors.Newf(perrors.ErrCodeCheckFailed, "unsupported data handle %T", data)
}

func (o options) upcomingEvent(ctx context.Context, data any) (checks.Result, error) {
	db, err := database(data)
	if err != nil {
		return checks.Result{}, err
	}
	now := o.now()
	events, err := db.EventsBetween(ctx, now, now.Add(o.eventLead), 0)
	if err != nil {
		return checks.Result{}, err
	}
	if len(events) == 0 {
		return checks.OK(), nil
	}

	first := events[0]
	in := first.Start.Sub(now).Round(time.Minute)
	msg := fmt.Sprintf("%q starts in %s", first.Title, in)
	if len(events) > 1 {
		msg += fmt.Sprintf(" (%d more soon)", len(events)-1)
	}
	res := checks.Alert(msg, "prepare")
	res.Payload = map[string]any{
		"title": first.Title,
		"start": first.Start.Format(time.RFC3339),
		"count": len(events),
	}
	return res, nil
}

func (o options) idleUser(ctx context.Context, data any) (checks.Result, error) {
	db, err := database(data)
	if err != nil {
		return checks.Result{}, err
	}
	last, err := db.LastActivity(ctx)
	if err != nil {
		return checks.Result{}, err
	}
	// No history yet means nothing to compare against.
	if last == nil {
		return checks.OK(), nil
	}
	idle := o.now().Sub(*last)
	if idle < o.idleAfter {
		return checks.OK(), nil
	}
	res := checks.Alert(fmt.Sprintf("No activity for %s", idle.Round(time.Minute)), "check_in")
	res.Payload = map[string]any{"last_activity": last.Format(time.RFC3339)}
	return res, nil
}

func (o options) staleReminders(ctx context.Context, data any) (checks.Result, error) {
	db, err := database(data)
	if err != nil {
		return checks.Result{}, err
	}
	stale, err := db.Stale(ctx, o.now().Add(-o.staleAfter))
	if err != nil {
		return checks.Result{}, err
	}
	if len(stale) == 0 {
		return checks.OK(), nil
	}
	res := checks.Alert(fmt.Sprintf("%d stale reminder(s): %s", len(stale), summarize(stale, 3)), "review_reminders")
	res.Payload = map[string]any{"count": len(stale)}
	return res, nil
}

func (o options) overdueCritical(ctx context.Context, data any) (checks.Result, error) {
	db, err := database(data)
	if err != nil {
		return checks.Result{}, err
	}
	overdue, err := db.Overdue(ctx, checks.Critical.String(), o.now())
	if err != nil {
		return checks.Result{}, err
	}
	if len(overdue) == 0 {
		return checks.OK(), nil
	}
	res := checks.Alert(fmt.Sprintf("%d critical reminder(s) overdue: %s", len(overdue), summarize(overdue, 3)), "act_now")
	ids := make([]int64, len(overdue))
	for i, r := range overdue {
		ids[i] = r.ID
	}
	res.Payload = map[string]any{"ids": ids}
	return res, nil
}

func summarize(rs []store.Reminder, max int) string {
	texts := make([]string, 0, max)
	for i, r := range rs {
		if i == max {
			texts = append(texts, fmt.Sprintf("and %d more", len(rs)-max))
			break
		}
		texts = append(texts, r.Text)
	}
	return strings.Join(texts, ", ")
}
