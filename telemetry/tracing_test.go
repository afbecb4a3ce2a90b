package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracerFromProvider(tp, "pulse-test", debug), rec
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestGetTracer_NoopDefault(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	if tr == nil {
		t.Fatal("GetTracer returned nil")
	}
	_, span := tr.StartCycleSpan(context.Background(), "c1")
	tr.EndCycleSpan(span, CycleSpanOptions{Status: "success"}, nil)
}

func TestCycleSpan(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	ctx, span := tr.StartCycleSpan(context.Background(), "cyc-1")
	_, child := tr.StartCheckSpan(ctx, "upcoming_event")
	tr.EndCheckSpan(child, CheckSpanOptions{Priority: "high", Notify: true}, nil)
	tr.EndCycleSpan(span, CycleSpanOptions{
		CycleID:   "cyc-1",
		Status:    "success",
		Selected:  []string{"upcoming_event"},
		Executed:  1,
		Notified:  1,
		Reasoning: "meeting soon",
	}, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	check, cycle := spans[0], spans[1]
	if check.Parent().SpanID() != cycle.SpanContext().SpanID() {
		t.Error("check span should be a child of the cycle span")
	}

	a := attrs(cycle)
	if a["pulse.cycle.id"].AsString() != "cyc-1" {
		t.Errorf("cycle id = %v", a["pulse.cycle.id"])
	}
	if a["pulse.cycle.executed"].AsInt64() != 1 {
		t.Errorf("executed = %v", a["pulse.cycle.executed"])
	}
	if _, ok := a["pulse.cycle.reasoning"]; ok {
		t.Error("reasoning must be omitted outside debug mode")
	}
	if cycle.Status().Code != codes.Ok {
		t.Errorf("status = %v", cycle.Status())
	}
}

func TestDecisionSpan_DebugAndError(t *testing.T) {
	tr, rec := newRecordingTracer(true)

	_, span := tr.StartDecisionSpan(context.Background(), "decision.decide")
	tr.EndDecisionSpan(span, DecisionSpanOptions{
		Backend:  "anthropic",
		Prompt:   strings.Repeat("p", 5000),
		Response: `{"checks_to_run":[],"reasoning":"quiet"}`,
	}, errors.New("rate limited"))

	got := rec.Ended()[0]
	a := attrs(got)
	if n := len(a["llm.prompt"].AsString()); n != 4003 {
		t.Errorf("prompt length = %d, want truncated 4003", n)
	}
	if a["llm.response"].AsString() == "" {
		t.Error("response should be recorded in debug mode")
	}
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", got.Status())
	}
	if len(got.Events()) == 0 {
		t.Error("error should be recorded as a span event")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("héllo", 2); got != "h..." {
		t.Errorf("truncate split rune: %q", got)
	}
}

func TestInitProvider_Validation(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, err := InitProvider(context.Background(), ProviderConfig{}); err == nil {
		t.Error("expected error without endpoint")
	}
	if _, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4317", Protocol: "udp"}); err == nil {
		t.Error("expected error for unknown protocol")
	}
}
