package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vinayprograms/pulse/breaker"
	"github.com/vinayprograms/pulse/checks"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/logging"
	"github.com/vinayprograms/pulse/metrics"
	"github.com/vinayprograms/pulse/notify"
	"github.com/vinayprograms/pulse/telemetry"
)

// DefaultTimeout bounds a single check run.
const DefaultTimeout = 30 * time.Second

// Executor runs registered checks behind their circuit breakers.
type Executor struct {
	registry  *checks.Registry
	breaker   *breaker.Breaker
	alerter   notify.Alerter
	collector metrics.Collector
	logger    *logging.Logger
	data      any
	timeout   time.Duration
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithBreaker guards checks with b. Without it checks always run.
func WithBreaker(b *breaker.Breaker) Option {
	return func(e *Executor) { e.breaker = b }
}

// WithAlerter receives an alert whenever a breaker trips.
func WithAlerter(a notify.Alerter) Option {
	return func(e *Executor) { e.alerter = a }
}

// WithCollector reports check outcomes.
func WithCollector(c metrics.Collector) Option {
	return func(e *Executor) { e.collector = metrics.OrNop(c) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = logging.OrNop(l).WithComponent("executor") }
}

// WithData sets the opaque handle passed to every Check.Run.
func WithData(data any) Option {
	return func(e *Executor) { e.data = data }
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an executor over registry.
func New(registry *checks.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:  registry,
		collector: metrics.NopCollector{},
		logger:    logging.Nop(),
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one check by id. It never panics and never returns an error;
// every failure is reported in Result.Error, and failed results never notify.
func (e *Executor) Execute(ctx context.Context, id string) checks.Result {
	cycleID, _ := notify.Origin(ctx)
	logger := e.logger
	if cycleID != "" {
		logger = logger.WithCycleID(cycleID)
	}

	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartCheckSpan(ctx, id)
	var spanOpts telemetry.CheckSpanOptions

	start := e.now()
	res, outcome := e.execute(ctx, id, &spanOpts, logger)
	elapsed := e.now().Sub(start)

	res = res.Sanitize()
	spanOpts.Notify = res.Notify

	var spanErr error
	if res.Failed() {
		spanErr = errors.New(res.Error)
	}
	tracer.EndCheckSpan(span, spanOpts, spanErr)
	e.collector.ObserveCheck(id, outcome, elapsed)
	logger.CheckResult(id, elapsed, res.Notify, res.Error)
	return res
}

func (e *Executor) execute(ctx context.Context, id string, spanOpts *telemetry.CheckSpanOptions, logger *logging.Logger) (checks.Result, string) {
	c, ok := e.registry.Get(id)
	if !ok {
		return checks.Failed(perrors.UnknownCheck(id)), metrics.OutcomeUnknown
	}
	spanOpts.Priority = c.Priority().String()

	if e.breaker != nil {
		if until, open := e.breaker.DisabledUntil(ctx, id); open {
			spanOpts.BreakerOpen = true
			return checks.Failed(perrors.BreakerOpen(id, until)), metrics.OutcomeBreakerOpen
		}
	}

	res, err := e.run(ctx, c)
	if err != nil {
		res = checks.Failed(err)
	}

	if res.Failed() {
		spanOpts.Tripped = e.recordFailure(ctx, id, logger)
		return res, metrics.OutcomeError
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess(ctx, id)
	}
	if res.Notify {
		return res, metrics.OutcomeNotify
	}
	return res, metrics.OutcomeQuiet
}

type runResult struct {
	res checks.Result
	err error
}

// run calls the check body in its own goroutine so a body that ignores its
// context cannot hold the cycle past the timeout.
func (e *Executor) run(ctx context.Context, c checks.Check) (checks.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: perrors.WrapWithCode(
					perrors.RecoverPanic(r, perrors.WithCheckID(c.ID())),
					perrors.ErrCodeCheckPanic,
					fmt.Sprintf("check %s panicked", c.ID()),
					perrors.WithCheckID(c.ID()),
				)}
			}
		}()
		res, err := c.Run(runCtx, e.data)
		done <- runResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return checks.Result{}, perrors.New(perrors.ErrCodeCheckTimeout,
				fmt.Sprintf("check %s timed out after %s", c.ID(), e.timeout),
				perrors.WithCheckID(c.ID()))
		}
		return checks.Result{}, perrors.Wrap(runCtx.Err(), "check "+c.ID()+" interrupted",
			perrors.WithCheckID(c.ID()))
	}
}

// recordFailure feeds the breaker and raises an alert on a trip.
func (e *Executor) recordFailure(ctx context.Context, id string, logger *logging.Logger) bool {
	if e.breaker == nil {
		return false
	}
	trip, tripped := e.breaker.RecordFailure(ctx, id)
	if !tripped {
		return false
	}
	e.collector.ObserveBreakerTrip(id)

	if e.alerter == nil {
		return true
	}
	cycleID, _ := notify.Origin(ctx)
	alert := notify.Alert{
		Severity: notify.SeverityHigh,
		Title:    "circuit breaker tripped",
		Message: fmt.Sprintf("check %s failed %d times in a row and is disabled until %s",
			id, trip.Failures, trip.DisabledUntil.UTC().Format(time.RFC3339)),
		CheckID: id,
		CycleID: cycleID,
		Metadata: map[string]string{
			"failures":       strconv.FormatInt(trip.Failures, 10),
			"disabled_until": trip.DisabledUntil.UTC().Format(time.RFC3339),
		},
		Timestamp: e.now(),
	}
	if err := e.alerter.Alert(ctx, alert); err != nil {
		logger.Warn("alert_failed", map[string]interface{}{
			"check_id": id,
			"error":    err.Error(),
		})
	}
	return true
}
