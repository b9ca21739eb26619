// Package metrics records the suggestion lifecycle as OpenTelemetry
// counters.
package metrics

import (
	"context"
	"fmt"
	"time"

	"nextedit/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "nextedit"

const (
	MetricRequests  = "nextedit.requests"
	MetricShown     = "nextedit.suggestions.shown"
	MetricAccepted  = "nextedit.suggestions.accepted"
	MetricDismissed = "nextedit.suggestions.dismissed"
	MetricErrors    = "nextedit.errors"
	MetricLifespan  = "nextedit.suggestions.lifespan"
)

// CompletionMetrics describes one shown suggestion.
type CompletionMetrics struct {
	ID        string
	Type      types.SuggestionType
	Source    types.CompletionSource
	Additions int
	Deletions int
	ShownAt   time.Time
}

// NewCompletionMetrics builds the record for a suggestion shown at now.
func NewCompletionMetrics(t types.SuggestionType, source types.CompletionSource, set *types.EditDeltaSet, now time.Time) *CompletionMetrics {
	return &CompletionMetrics{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Additions: set.Count(types.DeltaAddition),
		Deletions: set.Count(types.DeltaDeletion),
		ShownAt:   now,
	}
}

func (m *CompletionMetrics) attrs() metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("suggestion.type", m.Type.String()),
		attribute.String("suggestion.source", m.Source.String()),
	)
}

// Tracker is safe to use as a nil pointer; every method is then a no-op.
type Tracker struct {
	requests  metric.Int64Counter
	shown     metric.Int64Counter
	accepted  metric.Int64Counter
	dismissed metric.Int64Counter
	errors    metric.Int64Counter
	lifespan  metric.Int64Histogram
	now       func() time.Time
}

func NewTracker(provider metric.MeterProvider) (*Tracker, error) {
	meter := provider.Meter(meterName)
	t := &Tracker{now: time.Now}

	var err error
	if t.requests, err = meter.Int64Counter(MetricRequests,
		metric.WithDescription("Number of suggestion requests sent to the service")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRequests, err)
	}
	if t.shown, err = meter.Int64Counter(MetricShown,
		metric.WithDescription("Number of suggestions rendered")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricShown, err)
	}
	if t.accepted, err = meter.Int64Counter(MetricAccepted,
		metric.WithDescription("Number of suggestions accepted in full or in part")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricAccepted, err)
	}
	if t.dismissed, err = meter.Int64Counter(MetricDismissed,
		metric.WithDescription("Number of suggestions dismissed or superseded")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDismissed, err)
	}
	if t.errors, err = meter.Int64Counter(MetricErrors,
		metric.WithDescription("Number of failed suggestion requests")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricErrors, err)
	}
	if t.lifespan, err = meter.Int64Histogram(MetricLifespan,
		metric.WithDescription("Time a dismissed suggestion stayed on screen in milliseconds")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricLifespan, err)
	}
	return t, nil
}

func (t *Tracker) TrackRequest(ctx context.Context, source types.CompletionSource, autoInvoked bool) {
	if t == nil {
		return
	}
	t.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("suggestion.source", source.String()),
		attribute.Bool("auto_invoked", autoInvoked),
	))
}

func (t *Tracker) TrackShown(ctx context.Context, m *CompletionMetrics) {
	if t == nil || m == nil {
		return
	}
	t.shown.Add(ctx, 1, m.attrs())
}

// TrackAccepted counts a full or partial acceptance.
func (t *Tracker) TrackAccepted(ctx context.Context, m *CompletionMetrics, partial bool) {
	if t == nil || m == nil {
		return
	}
	t.accepted.Add(ctx, 1, m.attrs(), metric.WithAttributes(attribute.Bool("partial", partial)))
}

func (t *Tracker) TrackDisposed(ctx context.Context, m *CompletionMetrics) {
	if t == nil || m == nil {
		return
	}
	t.dismissed.Add(ctx, 1, m.attrs())
	t.lifespan.Record(ctx, t.now().Sub(m.ShownAt).Milliseconds(), m.attrs())
}

func (t *Tracker) TrackError(ctx context.Context, source types.CompletionSource, err error) {
	if t == nil || err == nil {
		return
	}
	t.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("suggestion.source", source.String()),
		attribute.String("error.type", fmt.Sprintf("%T", err)),
	))
}
