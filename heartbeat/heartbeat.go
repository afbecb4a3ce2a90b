package heartbeat

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	perrors "github.com/vinayprograms/pulse/errors"
)

// Mode selects how Run drives cycles.
type Mode string

const (
	// ModeOneShot runs a single cycle and returns its summary.
	ModeOneShot Mode = "one-shot"
	// ModeDaemon runs cycles until the context is cancelled.
	ModeDaemon Mode = "daemon"
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOneShot, ModeDaemon:
		return Mode(s), nil
	}
	return "", perrors.InvalidConfig("heartbeat.mode", fmt.Sprintf("unknown mode %q", s))
}

// Cycle statuses.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusError          = "error"
	StatusDisabled       = "disabled"
	StatusSkipped        = "skipped"
)

// Selection reasoning used when the decider is bypassed.
const (
	ReasonQuietHours = "quiet hours override"
	ReasonDisabled   = "heartbeat disabled"
	ReasonSkipped    = "another instance holds the cycle lock"
)

// LockKey is the state-store key of the cycle lock.
const LockKey = "heartbeat.cycle"

// Summary describes one finished cycle.
type Summary struct {
	CycleID        string   `json:"cycle_id"`
	Status         string   `json:"status"`
	ChecksExecuted int      `json:"checks_executed"`
	ChecksNotified int      `json:"checks_notified"`
	ChecksFailed   int      `json:"checks_failed"`
	DurationMS     int64    `json:"duration_ms"`
	SelectedChecks []string `json:"selected_checks"`
	Reasoning      string   `json:"reasoning"`
	Fallback       bool     `json:"fallback"`
	QuietHours     bool     `json:"quiet_hours"`
	Error          string   `json:"error,omitempty"`
}

// Config configures an Engine.
type Config struct {
	// Enabled false turns every cycle into a no-op with status "disabled".
	Enabled bool

	// Schedule is an optional five-field cron expression. When set, daemon
	// mode wakes on its ticks instead of sleeping a fixed interval.
	Schedule string

	// Location is the timezone the schedule is evaluated in. Default: UTC.
	Location *time.Location

	// CycleLock guards each cycle with a state-store lock.
	CycleLock bool

	// LockTTL bounds how long a crashed holder blocks other instances.
	// Default: 10m
	LockTTL time.Duration
}

// DefaultConfig returns an enabled engine with no schedule and no lock.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Location: time.UTC,
		LockTTL:  10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return perrors.InvalidConfig("heartbeat.schedule", err.Error())
		}
	}
	if c.CycleLock && c.LockTTL <= 0 {
		return perrors.InvalidConfig("heartbeat.lock_ttl", "must be positive")
	}
	return nil
}
