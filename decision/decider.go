package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/pulse/checks"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/logging"
	"github.com/vinayprograms/pulse/ratelimit"
	"github.com/vinayprograms/pulse/situation"
	"github.com/vinayprograms/pulse/telemetry"
)

// DefaultTimeout bounds a single decider call.
const DefaultTimeout = 20 * time.Second

// Resource is the rate limiter resource decider calls are charged to.
const Resource = "decision"

// Decision is the decider's selection for one cycle.
type Decision struct {
	ChecksToRun []string `json:"checks_to_run"`
	Reasoning   string   `json:"reasoning"`
}

// Decider selects checks for a snapshot. The engine depends on this
// interface so tests can script selections.
type Decider interface {
	Decide(ctx context.Context, snap situation.Snapshot, available []checks.Check) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, snap situation.Snapshot, available []checks.Check) (Decision, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, snap situation.Snapshot, available []checks.Check) (Decision, error) {
	return f(ctx, snap, available)
}

// LLMDecider asks a language model which checks are relevant.
type LLMDecider struct {
	backend     Backend
	backendName string
	limiter     ratelimit.Limiter
	timeout     time.Duration
	logger      *logging.Logger
}

var _ Decider = (*LLMDecider)(nil)

// Option configures an LLMDecider.
type Option func(*LLMDecider)

// WithLimiter charges every call to the Resource bucket of l.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(d *LLMDecider) { d.limiter = l }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *LLMDecider) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *LLMDecider) { d.logger = logging.OrNop(l).WithComponent("decision") }
}

// WithBackendName labels decision spans.
func WithBackendName(name string) Option {
	return func(d *LLMDecider) { d.backendName = name }
}

// NewLLMDecider creates a decider around backend.
func NewLLMDecider(backend Backend, opts ...Option) *LLMDecider {
	d := &LLMDecider{
		backend:     backend,
		backendName: "llm",
		timeout:     DefaultTimeout,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide implements Decider. Errors carry DECISION_FAILED, DECISION_TIMEOUT,
// MALFORMED_DECISION or RATE_LIMITED.
func (d *LLMDecider) Decide(ctx context.Context, snap situation.Snapshot, available []checks.Check) (Decision, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartDecisionSpan(ctx, "decision.decide")

	prompt := BuildPrompt(snap, available)
	var (
		raw      string
		decision Decision
	)
	err := d.decide(ctx, prompt, &raw, &decision)

	opts := telemetry.DecisionSpanOptions{
		Backend:  d.backendName,
		Selected: decision.ChecksToRun,
		Response: raw,
	}
	if tracer.Debug() {
		opts.Prompt = prompt
	}
	tracer.EndDecisionSpan(span, opts, err)

	if err != nil {
		d.logger.Warn("decision_failed", map[string]interface{}{
			"code":  string(perrors.Code(err)),
			"error": err.Error(),
		})
		return Decision{}, err
	}
	return decision, nil
}

func (d *LLMDecider) decide(ctx context.Context, prompt string, raw *string, out *Decision) error {
	if d.backend == nil {
		return perrors.New(perrors.ErrCodeDecisionFailed, "no decision backend configured")
	}
	if d.limiter != nil && !d.limiter.TryAcquire(Resource) {
		return perrors.RateLimited("decision backend rate limit exhausted")
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	text, err := d.complete(callCtx, prompt)
	d.logger.Debug("decision_call", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		return classify(ctx, callCtx, err, d.timeout)
	}

	*raw = text
	decision, err := ParseDecision(text)
	if err != nil {
		return err
	}
	*out = decision
	return nil
}

type completion struct {
	text string
	err  error
}

// complete calls the backend in its own goroutine so a backend that ignores
// its context cannot hold the cycle past the timeout.
func (d *LLMDecider) complete(ctx context.Context, prompt string) (string, error) {
	done := make(chan completion, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- completion{err: perrors.WrapWithCode(perrors.RecoverPanic(r),
					perrors.ErrCodeDecisionFailed, "decision backend panicked")}
			}
		}()
		text, err := d.backend.Complete(ctx, prompt)
		done <- completion{text: text, err: err}
	}()

	select {
	case c := <-done:
		return c.text, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// classify maps a backend error onto the decision error codes.
func classify(parent, callCtx context.Context, err error, timeout time.Duration) error {
	if parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return perrors.WrapWithCode(err, perrors.ErrCodeDecisionTimeout,
			fmt.Sprintf("decision backend timed out after %s", timeout))
	}
	if perrors.AsPulseError(err) != nil {
		return perrors.Wrap(err, "decision backend failed")
	}
	if parent.Err() != nil {
		return perrors.Wrap(parent.Err(), "decision interrupted")
	}
	return perrors.WrapWithCode(err, perrors.ErrCodeDecisionFailed, "decision backend failed")
}
