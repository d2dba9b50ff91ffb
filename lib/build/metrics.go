package build

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments the build pipeline. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	deriveDuration metric.Float64Histogram
	deriveTotal    metric.Int64Counter
}

// NewMetrics creates the pipeline instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	deriveDuration, err := meter.Float64Histogram(
		"forge_derivation_duration_seconds",
		metric.WithDescription("Duration of variant derivations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	deriveTotal, err := meter.Int64Counter(
		"forge_derivations_total",
		metric.WithDescription("Total number of variant derivations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		deriveDuration: deriveDuration,
		deriveTotal:    deriveTotal,
	}, nil
}

// RecordDerivation records one finished derivation.
func (m *Metrics) RecordDerivation(ctx context.Context, recipe, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("recipe", recipe),
		attribute.String("status", status),
	}
	m.deriveDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.deriveTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
