package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "eleanor"

// StartDecideSpan starts a span for one decision request.
func StartDecideSpan(ctx context.Context, caseFingerprint, configFingerprint string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "decide",
		trace.WithAttributes(
			attribute.String("case.fingerprint", caseFingerprint),
			attribute.String("config.fingerprint", configFingerprint),
		),
	)
}

// StartCriticSpan starts a span for one critic evaluation within a decision.
func StartCriticSpan(ctx context.Context, criticName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "critic",
		trace.WithAttributes(
			attribute.String("critic.name", criticName),
		),
	)
}
