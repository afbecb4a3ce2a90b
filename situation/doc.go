// Package situation builds the per-cycle Snapshot the heartbeat engine
// decides from: time, weekday, quiet hours, and whatever the persona,
// calendar and activity readers can tell it.
//
// Only the clock is required. Each reader is independent; a failing or
// slow reader is logged and its field is left unknown so a broken calendar
// never blocks a cycle.
package situation
