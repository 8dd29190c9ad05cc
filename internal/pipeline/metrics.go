package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	requests      metric.Int64Counter
	stageDuration metric.Float64Histogram
	overallScore  metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	requests, err := meter.Int64Counter("atc.pipeline.requests",
		metric.WithDescription("Pipeline runs by outcome"))
	if err != nil {
		return nil, err
	}
	stageDuration, err := meter.Float64Histogram("atc.pipeline.stage.duration",
		metric.WithDescription("Wall-clock time spent per pipeline stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	overallScore, err := meter.Float64Histogram("atc.efficiency.overall_score",
		metric.WithDescription("Composite efficiency score of completed runs"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0))
	if err != nil {
		return nil, err
	}
	return &metrics{requests: requests, stageDuration: stageDuration, overallScore: overallScore}, nil
}

func (m *metrics) recordStage(ctx context.Context, stage Stage, seconds float64) {
	m.stageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", string(stage))))
}

func (m *metrics) recordRun(ctx context.Context, source, status string) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
}
