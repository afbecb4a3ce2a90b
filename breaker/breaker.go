package breaker

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/logging"
	"github.com/vinayprograms/pulse/state"
)

const keyPrefix = "breaker."

// Config configures a Breaker.
type Config struct {
	// Threshold is the number of failures inside FailureWindow that opens the breaker.
	// Default: 3
	Threshold int64

	// FailureWindow is the sliding expiry of the failure counter. Each
	// failure extends it, so isolated failures age out.
	// Default: 5m
	FailureWindow time.Duration

	// Cooldown is how long an opened breaker suppresses the check.
	// Default: 1h
	Cooldown time.Duration
}

// DefaultConfig returns the standard 3 failures / 5 minutes / 1 hour policy.
func DefaultConfig() Config {
	return Config{
		Threshold:     3,
		FailureWindow: 5 * time.Minute,
		Cooldown:      time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return perrors.InvalidConfig("breaker.threshold", "must be at least 1")
	}
	if c.FailureWindow <= 0 {
		return perrors.InvalidConfig("breaker.failure_window", "must be positive")
	}
	if c.Cooldown <= 0 {
		return perrors.InvalidConfig("breaker.cooldown", "must be positive")
	}
	return nil
}

// State is the breaker view of one check.
type State struct {
	CheckID       string     `json:"check_id"`
	Failures      int64      `json:"failures"`
	DisabledUntil *time.Time `json:"disabled_until,omitempty"`
}

// Open reports whether the check is currently suppressed.
func (s State) Open() bool {
	return s.DisabledUntil != nil
}

// Trip describes a breaker that just opened.
type Trip struct {
	CheckID       string
	Failures      int64
	DisabledUntil time.Time
}

// Breaker tracks per-check failures in a StateStore. Store errors fail
// open: a breaker that cannot read its state lets the check run.
type Breaker struct {
	store  state.StateStore
	config Config
	logger *logging.Logger

	// nowFunc allows injecting a clock for testing.
	nowFunc func() time.Time
}

// New creates a Breaker over store.
func New(store state.StateStore, cfg Config, logger *logging.Logger) (*Breaker, error) {
	if store == nil {
		return nil, perrors.InvalidConfig("breaker.store", "state store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Breaker{
		store:   store,
		config:  cfg,
		logger:  logging.OrNop(logger).WithComponent("breaker"),
		nowFunc: time.Now,
	}, nil
}

// SetClock replaces time.Now.
func (b *Breaker) SetClock(now func() time.Time) {
	b.nowFunc = now
}

func failuresKey(id string) string { return keyPrefix + id + ".failures" }
func disabledKey(id string) string { return keyPrefix + id + ".disabled_until" }

// DisabledUntil returns the suppression deadline when the check's breaker is open.
func (b *Breaker) DisabledUntil(ctx context.Context, id string) (time.Time, bool) {
	raw, err := b.store.Get(ctx, disabledKey(id))
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			b.storeWarning("read_disabled", id, err)
		}
		return time.Time{}, false
	}

	until, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		b.storeWarning("parse_disabled", id, err)
		return time.Time{}, false
	}
	if !b.nowFunc().Before(until) {
		return time.Time{}, false
	}
	return until, true
}

// RecordSuccess clears the failure counter.
func (b *Breaker) RecordSuccess(ctx context.Context, id string) {
	if err := b.store.Delete(ctx, failuresKey(id)); err != nil {
		b.storeWarning("reset_failures", id, err)
	}
}

// RecordFailure counts one failure. When the count reaches the threshold
// the breaker opens for Cooldown, the counter is cleared and the trip is
// returned.
func (b *Breaker) RecordFailure(ctx context.Context, id string) (Trip, bool) {
	n, err := b.store.Incr(ctx, failuresKey(id), b.config.FailureWindow)
	if err != nil {
		b.storeWarning("incr_failures", id, err)
		return Trip{}, false
	}
	if n < b.config.Threshold {
		return Trip{}, false
	}

	until := b.nowFunc().Add(b.config.Cooldown).UTC()
	if err := b.store.Put(ctx, disabledKey(id), []byte(until.Format(time.RFC3339Nano)), b.config.Cooldown); err != nil {
		b.storeWarning("open_breaker", id, err)
		return Trip{}, false
	}
	if err := b.store.Delete(ctx, failuresKey(id)); err != nil {
		b.storeWarning("reset_failures", id, err)
	}

	b.logger.BreakerTripped(id, n, until)
	return Trip{CheckID: id, Failures: n, DisabledUntil: until}, true
}

// Reset closes the breaker and clears the counter for id.
func (b *Breaker) Reset(ctx context.Context, id string) error {
	if err := b.store.Delete(ctx, disabledKey(id)); err != nil {
		return perrors.WrapWithCode(err, perrors.ErrCodeStoreFailed, "resetting breaker", perrors.WithCheckID(id))
	}
	if err := b.store.Delete(ctx, failuresKey(id)); err != nil {
		return perrors.WrapWithCode(err, perrors.ErrCodeStoreFailed, "resetting breaker", perrors.WithCheckID(id))
	}
	return nil
}

// State reads the breaker state of one check.
func (b *Breaker) State(ctx context.Context, id string) (State, error) {
	st := State{CheckID: id}

	raw, err := b.store.Get(ctx, failuresKey(id))
	switch {
	case err == nil:
		st.Failures, _ = strconv.ParseInt(string(raw), 10, 64)
	case !errors.Is(err, state.ErrNotFound):
		return st, perrors.WrapWithCode(err, perrors.ErrCodeStoreFailed, "reading failures", perrors.WithCheckID(id))
	}

	if until, open := b.DisabledUntil(ctx, id); open {
		st.DisabledUntil = &until
	}
	return st, nil
}

// List returns the state of every check with a live counter or open breaker.
func (b *Breaker) List(ctx context.Context) ([]State, error) {
	keys, err := b.store.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeStoreFailed, "listing breakers")
	}

	seen := make(map[string]bool)
	var ids []string
	for _, k := range keys {
		id := strings.TrimPrefix(k, keyPrefix)
		switch {
		case strings.HasSuffix(id, ".failures"):
			id = strings.TrimSuffix(id, ".failures")
		case strings.HasSuffix(id, ".disabled_until"):
			id = strings.TrimSuffix(id, ".disabled_until")
		default:
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	states := make([]State, 0, len(ids))
	for _, id := range ids {
		st, err := b.State(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

func (b *Breaker) storeWarning(op, id string, err error) {
	b.logger.Warn("store_error", map[string]interface{}{
		"op":    op,
		"check": id,
		"error": err.Error(),
	})
}
