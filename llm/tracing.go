package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/pulse/telemetry"
)

// TracingProvider wraps a Provider with OpenTelemetry tracing.
type TracingProvider struct {
	provider     Provider
	providerName string
}

// WithTracing wraps a provider with tracing instrumentation.
func WithTracing(p Provider, providerName string) Provider {
	return &TracingProvider{
		provider:     p,
		providerName: providerName,
	}
}

// Chat implements Provider with tracing.
func (tp *TracingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartDecisionSpan(ctx, "llm.chat")

	resp, err := tp.provider.Chat(ctx, req)

	opts := telemetry.DecisionSpanOptions{Backend: tp.providerName}
	if resp != nil {
		opts.Model = resp.Model
		opts.TokensIn = resp.InputTokens
		opts.TokensOut = resp.OutputTokens
		opts.Response = resp.Content
	}
	if tracer.Debug() {
		parts := make([]string, 0, len(req.Messages))
		for _, msg := range req.Messages {
			parts = append(parts, fmt.Sprintf("[%s] %s", msg.Role, msg.Content))
		}
		opts.Prompt = strings.Join(parts, "\n")
	}
	tracer.EndDecisionSpan(span, opts, err)

	return resp, err
}

// Unwrap returns the traced provider.
func (tp *TracingProvider) Unwrap() Provider {
	return tp.provider
}
