package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/pulse/checks"
	"github.com/vinayprograms/pulse/decision"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/logging"
	"github.com/vinayprograms/pulse/metrics"
	"github.com/vinayprograms/pulse/notify"
	"github.com/vinayprograms/pulse/situation"
	"github.com/vinayprograms/pulse/state"
	"github.com/vinayprograms/pulse/telemetry"
)

// SnapshotProvider builds the per-cycle view of the world.
// *situation.Provider implements it.
type SnapshotProvider interface {
	Current(ctx context.Context) situation.Snapshot
}

// Runner executes one check by id and never fails.
// *executor.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, id string) checks.Result
}

// Engine drives heartbeat cycles.
type Engine struct {
	config   Config
	registry *checks.Registry
	provider SnapshotProvider
	runner   Runner
	waker    *waker

	decider   decision.Decider
	notifier  notify.Notifier
	alerter   notify.Alerter
	recorder  metrics.Recorder
	collector metrics.Collector
	locks     state.StateStore
	logger    *logging.Logger

	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithDecider sets the selection policy. Without one every non-quiet
// cycle uses the high-priority fallback.
func WithDecider(d decision.Decider) Option {
	return func(e *Engine) { e.decider = d }
}

// WithNotifier receives check notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithAlerter receives system alerts for failed cycles.
func WithAlerter(a notify.Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// WithRecorder persists one metrics.Cycle per cycle.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithCollector reports live cycle counters.
func WithCollector(c metrics.Collector) Option {
	return func(e *Engine) { e.collector = metrics.OrNop(c) }
}

// WithLockStore provides the store the cycle lock lives in. It is only
// used when Config.CycleLock is set.
func WithLockStore(s state.StateStore) Option {
	return func(e *Engine) { e.locks = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l).WithComponent("heartbeat") }
}

// WithClock replaces the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces uuid cycle ids. Tests only.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an engine. registry, provider and runner are required.
func New(cfg Config, registry *checks.Registry, provider SnapshotProvider, runner Runner, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, perrors.InvalidConfig("heartbeat.registry", "required")
	}
	if provider == nil {
		return nil, perrors.InvalidConfig("heartbeat.provider", "required")
	}
	if runner == nil {
		return nil, perrors.InvalidConfig("heartbeat.executor", "required")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w, err := newWaker(cfg.Schedule, cfg.Location)
	if err != nil {
		return nil, perrors.InvalidConfig("heartbeat.schedule", err.Error())
	}

	e := &Engine{
		config:    cfg,
		registry:  registry,
		provider:  provider,
		runner:    runner,
		waker:     w,
		collector: metrics.NopCollector{},
		logger:    logging.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.CycleLock && e.locks == nil {
		return nil, perrors.InvalidConfig("heartbeat.cycle_lock", "requires a lock store")
	}
	return e, nil
}

// Run drives cycles in the given mode. One-shot returns the single
// cycle's summary and a nil error. Daemon returns the last summary and
// ctx.Err() once ctx is cancelled.
func (e *Engine) Run(ctx context.Context, mode Mode, interval time.Duration) (Summary, error) {
	switch mode {
	case ModeOneShot:
		return e.RunCycle(ctx), nil
	case ModeDaemon:
		if interval <= 0 && !e.waker.scheduled() {
			return Summary{}, perrors.InvalidConfig("heartbeat.interval", "must be positive in daemon mode")
		}
		return e.daemon(ctx, interval)
	default:
		return Summary{}, perrors.InvalidConfig("heartbeat.mode", fmt.Sprintf("unknown mode %q", mode))
	}
}

func (e *Engine) daemon(ctx context.Context, interval time.Duration) (Summary, error) {
	e.logger.Info("daemon_start", map[string]interface{}{
		"interval": interval.String(),
		"schedule": e.config.Schedule,
	})

	var last Summary
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("daemon_stop", nil)
			return last, err
		}

		last = e.RunCycle(ctx)

		wait := e.waker.wait(e.now(), interval)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info("daemon_stop", nil)
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle runs exactly one cycle and returns its summary. It never
// panics and never returns an error; failures are reflected in the status.
func (e *Engine) RunCycle(ctx context.Context) Summary {
	sum := Summary{CycleID: e.newID(), Status: StatusSuccess, SelectedChecks: []string{}}
	logger := e.logger.WithCycleID(sum.CycleID)

	if !e.config.Enabled {
		sum.Status = StatusDisabled
		sum.Reasoning = ReasonDisabled
		logger.Info("cycle_disabled", nil)
		return sum
	}

	start := e.now()
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartCycleSpan(ctx, sum.CycleID)
	ctx = notify.WithOrigin(ctx, sum.CycleID, "")

	var cycleErr error
	if unlock, ok := e.acquire(ctx, logger); !ok {
		sum.Status = StatusSkipped
		sum.Reasoning = ReasonSkipped
		logger.Info("cycle_skipped", map[string]interface{}{"lock": LockKey})
	} else {
		cycleErr = e.runGuarded(ctx, &sum, logger)
		unlock()
	}

	sum.DurationMS = e.now().Sub(start).Milliseconds()
	if sum.Status != StatusSkipped {
		e.finish(ctx, start, &sum, cycleErr, logger)
	}

	tracer.EndCycleSpan(span, telemetry.CycleSpanOptions{
		CycleID:    sum.CycleID,
		Status:     sum.Status,
		Selected:   sum.SelectedChecks,
		Executed:   sum.ChecksExecuted,
		Notified:   sum.ChecksNotified,
		Fallback:   sum.Fallback,
		QuietHours: sum.QuietHours,
		Reasoning:  sum.Reasoning,
	}, cycleErr)
	return sum
}

// acquire takes the cycle lock when configured. Store errors other than
// a held lock fail open.
func (e *Engine) acquire(ctx context.Context, logger *logging.Logger) (func(), bool) {
	if !e.config.CycleLock {
		return func() {}, true
	}
	lock, err := e.locks.Lock(ctx, LockKey, e.config.LockTTL)
	if errors.Is(err, state.ErrLockHeld) {
		return nil, false
	}
	if err != nil {
		logger.Warn("cycle_lock_failed", map[string]interface{}{"error": err.Error()})
		return func() {}, true
	}
	return func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("cycle_unlock_failed", map[string]interface{}{"error": err.Error()})
		}
	}, true
}

// runGuarded runs the cycle body, converting a panic into an error.
func (e *Engine) runGuarded(ctx context.Context, sum *Summary, logger *logging.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = perrors.RecoverPanic(r, perrors.WithCycleID(sum.CycleID))
		}
	}()
	return e.cycle(ctx, sum, logger)
}

func (e *Engine) cycle(ctx context.Context, sum *Summary, logger *logging.Logger) error {
	snap := e.provider.Current(ctx)
	sum.QuietHours = snap.IsQuietHours
	logger.CycleStart(snap.IsQuietHours)

	sel := e.selectChecks(ctx, snap, logger)
	sum.SelectedChecks = sel.ids
	sum.Reasoning = sel.reasoning
	sum.Fallback = sel.source == metrics.SelectionFallback
	e.collector.ObserveSelection(sel.source)
	logger.Selection(sel.ids, sel.reasoning)

	var firstErr error
	for i, id := range sel.ids {
		if err := ctx.Err(); err != nil {
			logger.Warn("cycle_interrupted", map[string]interface{}{
				"skipped": len(sel.ids) - i,
			})
			return perrors.Wrap(err, fmt.Sprintf("cycle interrupted with %d checks left", len(sel.ids)-i),
				perrors.WithCycleID(sum.CycleID))
		}

		if err := e.runCheck(ctx, id, sum, logger); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runCheck executes one selected check and delivers its notification. A
// panic is contained to this check so the rest of the selection still runs.
func (e *Engine) runCheck(ctx context.Context, id string, sum *Summary, logger *logging.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = perrors.RecoverPanic(r, perrors.WithCycleID(sum.CycleID), perrors.WithCheckID(id))
			sum.ChecksFailed++
			logger.Error("check_panicked", map[string]interface{}{
				"check": id,
				"error": err.Error(),
			})
		}
	}()

	checkCtx := notify.WithOrigin(context.WithoutCancel(ctx), sum.CycleID, id)
	sum.ChecksExecuted++
	res := e.runner.Execute(checkCtx, id)

	if res.Failed() {
		sum.ChecksFailed++
		return nil
	}
	if res.Notify {
		sum.ChecksNotified++
		e.deliver(checkCtx, id, res, logger)
	}
	return nil
}

func (e *Engine) deliver(ctx context.Context, checkID string, res checks.Result, logger *logging.Logger) {
	if e.notifier == nil {
		return
	}
	delivered, err := e.notifier.Notify(ctx, res.Message, res.Action)
	if err != nil {
		logger.Warn("notify_failed", map[string]interface{}{
			"check": checkID,
			"error": err.Error(),
		})
		return
	}
	if !delivered {
		logger.Debug("notify_not_delivered", map[string]interface{}{"check": checkID})
	}
}

// finish settles the status, records metrics and raises the system alert.
func (e *Engine) finish(ctx context.Context, start time.Time, sum *Summary, cycleErr error, logger *logging.Logger) {
	if cycleErr != nil {
		sum.Error = cycleErr.Error()
		if sum.ChecksExecuted == 0 {
			sum.Status = StatusError
		} else {
			sum.Status = StatusPartialSuccess
		}
	}

	// Recording and alerting must survive the host cancelling the cycle.
	ctx = context.WithoutCancel(ctx)

	if e.recorder != nil {
		err := e.recorder.RecordCycle(ctx, metrics.Cycle{
			ID:         sum.CycleID,
			Timestamp:  start.UTC(),
			Status:     sum.Status,
			Selected:   sum.SelectedChecks,
			Executed:   sum.ChecksExecuted,
			Notified:   sum.ChecksNotified,
			Reasoning:  sum.Reasoning,
			DurationMS: sum.DurationMS,
			Error:      sum.Error,
			Fallback:   sum.Fallback,
			QuietHours: sum.QuietHours,
		})
		if err != nil {
			logger.Warn("metrics_failed", map[string]interface{}{"error": err.Error()})
		}
	}
	e.collector.ObserveCycle(sum.Status, time.Duration(sum.DurationMS)*time.Millisecond,
		sum.ChecksExecuted, sum.ChecksNotified)

	if cycleErr != nil {
		logger.Error("cycle_failed", map[string]interface{}{
			"status": sum.Status,
			"error":  sum.Error,
		})
		if !interrupted(cycleErr) {
			e.alert(ctx, sum, logger)
		}
	}
	logger.CycleComplete(sum.Status, sum.ChecksExecuted, sum.ChecksNotified,
		time.Duration(sum.DurationMS)*time.Millisecond)
}

// interrupted reports a cycle cut short by its context rather than a fault.
func interrupted(err error) bool {
	return perrors.Is(err, perrors.ErrCodeCanceled) || perrors.Is(err, perrors.ErrCodeTimeout)
}

func (e *Engine) alert(ctx context.Context, sum *Summary, logger *logging.Logger) {
	if e.alerter == nil {
		return
	}
	err := e.alerter.Alert(ctx, notify.Alert{
		Severity: notify.SeverityCritical,
		Title:    "heartbeat cycle failed",
		Message:  sum.Error,
		CycleID:  sum.CycleID,
		Metadata: map[string]string{
			"status":   sum.Status,
			"executed": fmt.Sprint(sum.ChecksExecuted),
		},
	})
	if err != nil {
		logger.Warn("alert_failed", map[string]interface{}{"error": err.Error()})
	}
}
