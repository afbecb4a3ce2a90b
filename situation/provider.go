package situation

import (
	"context"
	"fmt"
	"time"

	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/logging"
)

// Config configures a Provider.
type Config struct {
	QuietHours QuietHours

	// Location is the timezone quiet hours and weekdays are evaluated in.
	// Default: UTC.
	Location *time.Location

	// ReaderTimeout bounds each external lookup.
	// Default: 5s
	ReaderTimeout time.Duration
}

// DefaultConfig returns a 22:00-08:00 quiet window in UTC.
func DefaultConfig() Config {
	return Config{
		QuietHours:    QuietHours{Start: 22, End: 8},
		Location:      time.UTC,
		ReaderTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.QuietHours.Validate(); err != nil {
		return perrors.InvalidConfig("quiet_hours", err.Error())
	}
	if c.ReaderTimeout < 0 {
		return perrors.InvalidConfig("reader_timeout", "must not be negative")
	}
	return nil
}

// Provider builds Snapshots from the clock and three optional readers.
// Clock-derived fields are always set; each reader is best-effort.
type Provider struct {
	config   Config
	persona  PersonaReader
	events   EventReader
	activity ActivityReader
	logger   *logging.Logger

	// nowFunc allows injecting a clock for testing.
	nowFunc func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithPersonaReader sets the persona lookup.
func WithPersonaReader(r PersonaReader) Option {
	return func(p *Provider) { p.persona = r }
}

// WithEventReader sets the calendar lookup.
func WithEventReader(r EventReader) Option {
	return func(p *Provider) { p.events = r }
}

// WithActivityReader sets the activity-log lookup.
func WithActivityReader(r ActivityReader) Option {
	return func(p *Provider) { p.activity = r }
}

// WithLogger sets the logger for reader warnings.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provider) { p.logger = logging.OrNop(l).WithComponent("situation") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.nowFunc = now }
}

// NewProvider creates a Provider. Readers left unset report "unknown".
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ReaderTimeout == 0 {
		cfg.ReaderTimeout = DefaultConfig().ReaderTimeout
	}

	p := &Provider{
		config:  cfg,
		logger:  logging.Nop(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Current returns the snapshot for this instant. It never fails: a reader
// error is logged and leaves its field unknown.
func (p *Provider) Current(ctx context.Context) Snapshot {
	now := p.nowFunc()
	local := now.In(p.config.Location)

	snap := Snapshot{
		CurrentTime:  now.UTC(),
		DayOfWeek:    local.Weekday(),
		IsWeekend:    local.Weekday() == time.Saturday || local.Weekday() == time.Sunday,
		IsQuietHours: p.config.QuietHours.Contains(local.Hour()),
	}

	if p.persona != nil {
		var v string
		if p.read(ctx, "persona", func(ctx context.Context) (err error) {
			v, err = p.persona.ActivePersona(ctx)
			return err
		}) {
			snap.ActivePersona = v
		}
	}
	if p.events != nil {
		var ev *Event
		if p.read(ctx, "next_event", func(ctx context.Context) (err error) {
			ev, err = p.events.NextEvent(ctx, snap.CurrentTime)
			return err
		}) && ev != nil {
			e := *ev
			snap.NextEvent = &e
		}
	}
	if p.activity != nil {
		var ts *time.Time
		if p.read(ctx, "last_activity", func(ctx context.Context) (err error) {
			ts, err = p.activity.LastActivity(ctx)
			return err
		}) && ts != nil {
			t := ts.UTC()
			snap.LastActivity = &t
		}
	}
	return snap
}

// read runs one lookup under its own timeout and panic recovery and
// reports whether it succeeded. Failures are logged as warnings.
func (p *Provider) read(ctx context.Context, field string, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, p.config.ReaderTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()
	if err != nil {
		p.logger.Warn("reader_failed", map[string]interface{}{
			"field": field,
			"error": perrors.WrapWithCode(err, perrors.ErrCodeReaderFailed, "reading "+field).Error(),
		})
		return false
	}
	return true
}
