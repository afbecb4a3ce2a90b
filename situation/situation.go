package situation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Event summarises the next scheduled calendar entry.
type Event struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
}

// String renders the event for prompts and logs.
func (e Event) String() string {
	return fmt.Sprintf("%s at %s", e.Title, e.Start.UTC().Format(time.RFC3339))
}

// Snapshot is the immutable view of the world for one cycle. It is built
// once at cycle start and passed by value so every decision in the cycle
// sees the same state.
type Snapshot struct {
	CurrentTime  time.Time    `json:"current_time"`
	DayOfWeek    time.Weekday `json:"day_of_week"`
	IsWeekend    bool         `json:"is_weekend"`
	IsQuietHours bool         `json:"is_quiet_hours"`

	// ActivePersona is empty when unknown.
	ActivePersona string `json:"active_persona,omitempty"`

	// NextEvent is nil when unknown or nothing is scheduled.
	NextEvent *Event `json:"next_event,omitempty"`

	// LastActivity is nil when unknown.
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Describe renders the snapshot as prompt lines.
func (s Snapshot) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Current time (UTC): %s\n", s.CurrentTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Day: %s (weekend: %t)\n", s.DayOfWeek, s.IsWeekend)
	fmt.Fprintf(&b, "- Quiet hours: %t\n", s.IsQuietHours)

	persona := s.ActivePersona
	if persona == "" {
		persona = "unknown"
	}
	fmt.Fprintf(&b, "- Active persona: %s\n", persona)

	if s.NextEvent != nil {
		fmt.Fprintf(&b, "- Next event: %s (in %s)\n", s.NextEvent.Title,
			s.NextEvent.Start.Sub(s.CurrentTime).Round(time.Minute))
	} else {
		b.WriteString("- Next event: none known\n")
	}

	if s.LastActivity != nil {
		fmt.Fprintf(&b, "- Last user activity: %s ago\n",
			s.CurrentTime.Sub(*s.LastActivity).Round(time.Minute))
	} else {
		b.WriteString("- Last user activity: unknown\n")
	}
	return b.String()
}

// PersonaReader returns the active persona id, or "" when none is active.
type PersonaReader interface {
	ActivePersona(ctx context.Context) (string, error)
}

// EventReader returns the next scheduled event after now, or nil.
type EventReader interface {
	NextEvent(ctx context.Context, now time.Time) (*Event, error)
}

// ActivityReader returns the most recent user activity, or nil.
type ActivityReader interface {
	LastActivity(ctx context.Context) (*time.Time, error)
}

// PersonaFunc adapts a function to PersonaReader.
type PersonaFunc func(ctx context.Context) (string, error)

func (f PersonaFunc) ActivePersona(ctx context.Context) (string, error) { return f(ctx) }

// EventFunc adapts a function to EventReader.
type EventFunc func(ctx context.Context, now time.Time) (*Event, error)

func (f EventFunc) NextEvent(ctx context.Context, now time.Time) (*Event, error) { return f(ctx, now) }

// ActivityFunc adapts a function to ActivityReader.
type ActivityFunc func(ctx context.Context) (*time.Time, error)

func (f ActivityFunc) LastActivity(ctx context.Context) (*time.Time, error) { return f(ctx) }

// QuietHours is a daily window given as whole hours in 0..23.
//
// When Start > End the window wraps midnight (22 -> 8 covers 22:00-07:59).
// When Start < End it is a same-day window. Start == End disables it.
type QuietHours struct {
	Start int
	End   int
}

// Validate checks the hour bounds.
func (q QuietHours) Validate() error {
	if q.Start < 0 || q.Start > 23 {
		return fmt.Errorf("quiet hours start %d out of range 0..23", q.Start)
	}
	if q.End < 0 || q.End > 23 {
		return fmt.Errorf("quiet hours end %d out of range 0..23", q.End)
	}
	return nil
}

// Contains reports whether hour falls inside the window.
func (q QuietHours) Contains(hour int) bool {
	switch {
	case q.Start == q.End:
		return false
	case q.Start > q.End:
		return hour >= q.Start || hour < q.End
	default:
		return hour >= q.Start && hour < q.End
	}
}
