package metrics

import (
	"context"
	"errors"
	"testing"

	"nextedit/assert"
	"nextedit/types"
)

func TestSummary(t *testing.T) {
	tr, reader := newTestTracker(t)
	ctx := context.Background()

	tr.TrackRequest(ctx, types.SourceNextEdit, true)
	tr.TrackRequest(ctx, types.SourceInlineCompletion, false)
	tr.TrackError(ctx, types.SourceNextEdit, errors.New("boom"))

	summary, err := Summary(ctx, reader)
	assert.NoError(t, err, "Summary")
	assert.Equal(t, "nextedit.errors=1 nextedit.requests=2", summary, "sorted totals")
}

func TestSummary_Empty(t *testing.T) {
	_, reader := newTestTracker(t)
	summary, err := Summary(context.Background(), reader)
	assert.NoError(t, err, "Summary")
	assert.Equal(t, "", summary, "nothing recorded")
}
