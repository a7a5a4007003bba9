package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "eleanor"

// Metrics holds all engine metric instruments.
type Metrics struct {
	DecisionsTotal   metric.Int64Counter
	CacheHits        metric.Int64Counter
	CriticFailures   metric.Int64Counter
	DecisionDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsTotal, err = meter.Int64Counter("eleanor.decisions.total",
		metric.WithDescription("Number of decisions computed, by verdict"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("eleanor.decisions.cache_hits",
		metric.WithDescription("Number of decisions served from cache"))
	if err != nil {
		return nil, err
	}

	m.CriticFailures, err = meter.Int64Counter("eleanor.critics.failures",
		metric.WithDescription("Number of critic failures across all decisions"))
	if err != nil {
		return nil, err
	}

	m.DecisionDuration, err = meter.Float64Histogram("eleanor.decision.duration_seconds",
		metric.WithDescription("End-to-end decision latency in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDecision records one computed decision.
func (m *Metrics) RecordDecision(ctx context.Context, verdict string, elapsed time.Duration, failures int) {
	attrs := metric.WithAttributes(attribute.String("verdict", verdict))
	m.DecisionsTotal.Add(ctx, 1, attrs)
	m.DecisionDuration.Record(ctx, elapsed.Seconds(), attrs)
	if failures > 0 {
		m.CriticFailures.Add(ctx, int64(failures))
	}
}

// RecordCacheHit records a decision served from cache.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	m.CacheHits.Add(ctx, 1)
}
