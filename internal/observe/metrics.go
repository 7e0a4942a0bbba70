package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tiroq/scribed"

// Metrics are the pipeline's counters.
type Metrics struct {
	invocations  metric.Int64Counter
	routed       metric.Int64Counter
	conflicts    metric.Int64Counter
	placeholders metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	invocations, err := meter.Int64Counter("scribed.invocations",
		metric.WithDescription("Pipeline invocations by event kind"))
	if err != nil {
		return nil, fmt.Errorf("observe: invocations counter: %w", err)
	}
	routed, err := meter.Int64Counter("scribed.routed",
		metric.WithDescription("Recordings routed, by path and model"))
	if err != nil {
		return nil, fmt.Errorf("observe: routed counter: %w", err)
	}
	conflicts, err := meter.Int64Counter("scribed.write_conflicts",
		metric.WithDescription("Transcript writes skipped because the object already existed"))
	if err != nil {
		return nil, fmt.Errorf("observe: write_conflicts counter: %w", err)
	}
	placeholders, err := meter.Int64Counter("scribed.placeholders",
		metric.WithDescription("Transcripts written as the no-speech placeholder"))
	if err != nil {
		return nil, fmt.Errorf("observe: placeholders counter: %w", err)
	}
	return &Metrics{
		invocations:  invocations,
		routed:       routed,
		conflicts:    conflicts,
		placeholders: placeholders,
	}, nil
}

func (m *Metrics) Invocation(ctx context.Context, kind string) {
	m.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) Routed(ctx context.Context, path string, longModel bool) {
	m.routed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("long_model", longModel),
	))
}

func (m *Metrics) WriteConflict(ctx context.Context) {
	m.conflicts.Add(ctx, 1)
}

func (m *Metrics) Placeholder(ctx context.Context) {
	m.placeholders.Add(ctx, 1)
}
