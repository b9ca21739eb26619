package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"nextedit/assert"
	"nextedit/types"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(ProviderConfig{})
	assert.NoError(t, err, "Setup")
	assert.Nil(t, p.Tracker(), "no tracker")

	summary, err := p.Summary(context.Background())
	assert.NoError(t, err, "Summary")
	assert.Equal(t, "", summary, "no metrics")

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid(), "no-op span")
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()), "Shutdown")
}

func TestSetup_Metrics(t *testing.T) {
	p, err := Setup(ProviderConfig{EnableMetrics: true})
	assert.NoError(t, err, "Setup")
	defer p.Shutdown(context.Background())

	p.Tracker().TrackRequest(context.Background(), types.SourceInlineCompletion, false)
	summary, err := p.Summary(context.Background())
	assert.NoError(t, err, "Summary")
	assert.Equal(t, MetricRequests+"=1", summary, "request counted")
}

func TestSetup_TracesNeedWriter(t *testing.T) {
	_, err := Setup(ProviderConfig{EnableTraces: true})
	assert.Error(t, err, "missing writer")
}

func TestSetup_TracesWritten(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(ProviderConfig{EnableTraces: true, TraceWriter: &buf})
	assert.NoError(t, err, "Setup")

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "suggestapi.GenerateCompletions")
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()), "Shutdown flushes")

	var exported struct{ Name string }
	assert.NoError(t, json.NewDecoder(&buf).Decode(&exported), "decode span")
	assert.Equal(t, "suggestapi.GenerateCompletions", exported.Name, "span name")
}
