// Package telemetry exports OpenTelemetry traces for heartbeat cycles.
//
// InitProvider configures an OTLP exporter (grpc or http) and installs a
// global Tracer. Without it GetTracer returns a no-op tracer, so callers
// can always start spans:
//
//	ctx, span := telemetry.GetTracer().StartCycleSpan(ctx, cycleID)
//	defer telemetry.GetTracer().EndCycleSpan(span, opts, err)
//
// Span tree for one cycle:
//
//	heartbeat.cycle
//	├── decision.decide
//	└── check.execute (one per selected check)
//
// Prompts and decider reasoning are attached only in debug mode.
package telemetry
