// Package telemetry provides OpenTelemetry span helpers for the turn loop
// and tool execution. No exporter is wired by default: a process that
// never calls SetTracerProvider gets otel's global no-op tracer, so spans
// cost a couple of allocations and nothing is exported. A host binary can
// opt in to real export by calling otel.SetTracerProvider before starting
// the loop.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/kestrelcode/kestrel"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartTurn opens a span covering one iteration of the turn loop: the LLM
// stream, tool-call filtering, and tool execution batch.
func StartTurn(ctx context.Context, agentID string, turn int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "turn", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Int("turn.number", turn),
		))
}

// StartLLMRequest opens a span covering a single Send/Stream call to the
// provider.
func StartLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return tracer().Start(ctx, fmt.Sprintf("llm.%s", provider), trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		))
}

// StartTool opens a span covering one tool call's execution.
func StartTool(ctx context.Context, toolName, toolCallID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, fmt.Sprintf("tool.%s", toolName), trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.call_id", toolCallID),
		))
}

// RecordError records err on span and marks it as failed. A nil err is a
// no-op so callers can defer-call this unconditionally.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetToolResult annotates span with the outcome of a finished tool call.
func SetToolResult(span trace.Span, success bool) {
	span.SetAttributes(attribute.Bool("tool.success", success))
	if !success {
		span.SetStatus(codes.Error, "tool execution failed")
	}
}
