package telemetry

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with heartbeat-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include prompts and reasoning in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance. nil restores the no-op tracer.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer on an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{tracer: tp.Tracer(name), debug: debug}
}

// SetDebug enables or disables debug mode (content in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Cycle Spans ---

// CycleSpanOptions describes a finished heartbeat cycle.
type CycleSpanOptions struct {
	CycleID    string
	Status     string
	Selected   []string
	Executed   int
	Notified   int
	Fallback   bool
	QuietHours bool
	Reasoning  string // Only included if debug=true
}

// StartCycleSpan starts the root span of one heartbeat cycle.
func (t *Tracer) StartCycleSpan(ctx context.Context, cycleID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "heartbeat.cycle",
		trace.WithAttributes(attribute.String("pulse.cycle.id", cycleID)))
}

// EndCycleSpan ends a cycle span with its summary.
func (t *Tracer) EndCycleSpan(span trace.Span, opts CycleSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("pulse.cycle.status", opts.Status),
		attribute.StringSlice("pulse.cycle.selected", opts.Selected),
		attribute.Int("pulse.cycle.executed", opts.Executed),
		attribute.Int("pulse.cycle.notified", opts.Notified),
		attribute.Bool("pulse.cycle.fallback", opts.Fallback),
		attribute.Bool("pulse.cycle.quiet_hours", opts.QuietHours),
	}
	if t.debug && opts.Reasoning != "" {
		attrs = append(attrs, attribute.String("pulse.cycle.reasoning", truncate(opts.Reasoning, 4000)))
	}
	span.SetAttributes(attrs...)
	endSpan(span, err)
}

// --- Check Spans ---

// CheckSpanOptions describes one check execution.
type CheckSpanOptions struct {
	Priority    string
	Notify      bool
	BreakerOpen bool
	Tripped     bool
}

// StartCheckSpan starts a span for a single check execution.
func (t *Tracer) StartCheckSpan(ctx context.Context, checkID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "check.execute",
		trace.WithAttributes(attribute.String("pulse.check.id", checkID)))
}

// EndCheckSpan ends a check span.
func (t *Tracer) EndCheckSpan(span trace.Span, opts CheckSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("pulse.check.priority", opts.Priority),
		attribute.Bool("pulse.check.notify", opts.Notify),
		attribute.Bool("pulse.breaker.open", opts.BreakerOpen),
		attribute.Bool("pulse.breaker.tripped", opts.Tripped),
	)
	endSpan(span, err)
}

// --- Decision Spans ---

// DecisionSpanOptions describes one decider call.
type DecisionSpanOptions struct {
	Backend   string
	Model     string
	TokensIn  int
	TokensOut int
	Selected  []string
	Prompt    string // Only included if debug=true
	Response  string // Only included if debug=true
}

// StartDecisionSpan starts a span for a call to the decision backend.
func (t *Tracer) StartDecisionSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

// EndDecisionSpan ends a decision span with attributes.
func (t *Tracer) EndDecisionSpan(span trace.Span, opts DecisionSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", opts.Backend),
		attribute.String("llm.model", opts.Model),
		attribute.Int("llm.tokens.input", opts.TokensIn),
		attribute.Int("llm.tokens.output", opts.TokensOut),
		attribute.StringSlice("pulse.decision.selected", opts.Selected),
	}
	if t.debug {
		if opts.Prompt != "" {
			attrs = append(attrs, attribute.String("llm.prompt", truncate(opts.Prompt, 4000)))
		}
		if opts.Response != "" {
			attrs = append(attrs, attribute.String("llm.response", truncate(opts.Response, 4000)))
		}
	}
	span.SetAttributes(attrs...)
	endSpan(span, err)
}

// --- Helpers ---

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "") + "..."
}
