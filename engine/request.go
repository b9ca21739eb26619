package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nextedit/logger"
	"nextedit/text"
	"nextedit/types"
)

// scheduleAutomatic arms the debounce timer for the primary backend after
// a qualifying editor event.
func (e *Engine) scheduleAutomatic() {
	if !e.autoEnabled {
		return
	}
	e.scheduleRequest(e.config.Debounce, trigger{source: e.config.Source.Primary, autoInvoked: true})
}

// scheduleRequest replaces any pending request timer. An active selection
// cancels scheduling instead.
func (e *Engine) scheduleRequest(delay time.Duration, t trigger) {
	e.stopTimer(&e.requestTimer)
	if (e.disabledInDocument && t.autoInvoked) || !e.config.Source.Allows(t.source) {
		return
	}
	if e.surface.HasSelection() {
		logger.Debug("selection active, not scheduling")
		return
	}
	e.requestTimer = e.clock.AfterFunc(delay, func() {
		e.post(Event{Type: EventTrigger, Data: t})
	})
}

// requestNow sends a manual request to the primary backend without
// debouncing.
func (e *Engine) requestNow() {
	e.requestNowFrom(e.config.Source.Primary)
}

func (e *Engine) requestNowFrom(source types.CompletionSource) {
	e.stopTimer(&e.requestTimer)
	if e.surface.HasSelection() {
		return
	}
	e.sendRequest(trigger{source: source, autoInvoked: false})
}

func (e *Engine) handleTrigger(t trigger) {
	if e.surface.HasSelection() {
		return
	}
	if e.disabledInDocument && t.autoInvoked {
		return
	}
	e.sendRequest(t)
}

// invalidateRequests drops any scheduled or in-flight request.
func (e *Engine) invalidateRequests() {
	e.stopTimer(&e.requestTimer)
	e.requestID++
	if e.currentCancel != nil {
		e.currentCancel()
		e.currentCancel = nil
	}
}

// sendRequest issues a request on a worker goroutine. The result comes back
// as an event carrying the request id and cursor it was made for.
func (e *Engine) sendRequest(t trigger) {
	defer logger.Trace("engine.sendRequest")()

	e.requestID++
	rc := requestContext{
		id:          e.requestID,
		cursor:      e.surface.Cursor(),
		source:      t.source,
		autoInvoked: t.autoInvoked,
		fallback:    t.fallback,
	}
	doc := e.surface.Document()

	if e.currentCancel != nil {
		e.currentCancel()
	}
	ctx, cancel := context.WithTimeout(e.context(), e.config.CompletionTimeout)
	e.currentCancel = cancel

	e.surface.ShowStatus(types.StatusRequested, "")
	e.tracker.TrackRequest(ctx, t.source, t.autoInvoked)
	logger.Debug("request %d: %s at %s (auto=%v)", rc.id, t.source, rc.cursor, t.autoInvoked)

	if t.source == types.SourceNextEdit {
		req := &types.NESRequest{
			DocumentID: doc.ID,
			Path:       doc.Path,
			IsUntitled: doc.IsUntitled(),
			Row:        rc.cursor.Row,
			Col:        rc.cursor.Column,
		}
		go func() {
			defer cancel()
			resp, err := e.service.NextEditSuggestions(ctx, req)
			e.post(Event{Type: EventNESResult, Data: &nesResult{requestContext: rc, resp: resp, err: err}})
		}()
		return
	}

	req := &types.CompletionRequest{
		DocumentID:  doc.ID,
		Path:        doc.Path,
		IsUntitled:  doc.IsUntitled(),
		AutoInvoked: t.autoInvoked,
		Row:         rc.cursor.Row,
		Col:         rc.cursor.Column,
	}
	go func() {
		defer cancel()
		resp, err := e.service.GenerateCompletions(ctx, req)
		e.post(Event{Type: EventCompletionResult, Data: &completionResult{requestContext: rc, resp: resp, err: err}})
	}()
}

// isCurrent reports whether a response may still be shown: it answers the
// latest request and the cursor has not moved since.
func (e *Engine) isCurrent(rc requestContext) bool {
	if rc.id != e.requestID {
		logger.Debug("dropping stale response %d (current %d)", rc.id, e.requestID)
		return false
	}
	if cursor := e.surface.Cursor(); cursor != rc.cursor {
		logger.Debug("dropping response %d: cursor moved %s -> %s", rc.id, rc.cursor, cursor)
		return false
	}
	return true
}

// handleRequestError reports whether err ended the cycle.
func (e *Engine) handleRequestError(rc requestContext, err error) bool {
	if err == nil {
		return false
	}
	e.currentCancel = nil
	switch {
	case errors.Is(err, types.ErrDocumentNotFound):
		e.receivedNone(rc)
	case errors.Is(err, context.Canceled):
		logger.Debug("request %d canceled", rc.id)
	default:
		logger.Error("request %d failed: %v", rc.id, err)
		e.tracker.TrackError(e.context(), rc.source, err)
		e.surface.ShowStatus(types.StatusError, err.Error())
	}
	return true
}

// receivedNone reports an empty result and, when allowed, asks the
// secondary backend shortly after.
func (e *Engine) receivedNone(rc requestContext) {
	e.surface.ShowStatus(types.StatusReceivedNone, "")
	if rc.fallback || rc.source != e.config.Source.Primary {
		return
	}
	secondary, ok := e.config.Source.Secondary()
	if !ok {
		return
	}
	logger.Debug("request %d empty, falling back to %s", rc.id, secondary)
	e.scheduleRequest(fallbackDelay, trigger{source: secondary, autoInvoked: rc.autoInvoked, fallback: true})
}

func (e *Engine) handleCompletionResult(r *completionResult) {
	defer logger.Trace("engine.handleCompletionResult")()

	if !e.isCurrent(r.requestContext) {
		return
	}
	if e.handleRequestError(r.requestContext, r.err) {
		return
	}
	e.currentCancel = nil

	resp := r.resp
	if resp == nil {
		e.receivedNone(r.requestContext)
		return
	}
	if resp.Disabled() {
		logger.Info("suggestions disabled for %s", e.surface.Document().Path)
		e.disabledInDocument = true
		e.stopTimer(&e.requestTimer)
		e.surface.ShowStatus(types.StatusCancelled, "disabled for this document")
		return
	}
	if resp.Error != nil {
		if !errors.Is(resp.Error, types.ErrDocumentNotFound) {
			e.handleRequestError(r.requestContext, fmt.Errorf("completion service: %w", resp.Error))
			return
		}
		logger.Debug("document not known to the service yet")
	}
	if resp.Result == nil {
		e.receivedNone(r.requestContext)
		return
	}
	if reason := resp.Result.CancellationReason; reason != "" {
		e.surface.ShowStatus(types.StatusCancelled, reason)
		return
	}

	items := make([]*types.Completion, 0, len(resp.Result.Items))
	for _, item := range resp.Result.Items {
		if item != nil && !e.isNoop(item) {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		e.receivedNone(r.requestContext)
		return
	}
	e.surface.ShowStatus(types.StatusReceivedSome, fmt.Sprintf("%d", len(items)))

	original := items[len(items)-1]
	c := original.Clone()
	c.Source = types.SourceInlineCompletion
	c.InsertText = text.PostProcess(c.InsertText)
	c.DisplayText = c.InsertText

	normalized := e.normalizeCompletion(c)
	if normalized.InsertText == "" {
		logger.Debug("completion already present in the document")
		return
	}
	e.establishGhost(original, normalized)
}

func (e *Engine) handleNESResult(r *nesResult) {
	defer logger.Trace("engine.handleNESResult")()

	if !e.isCurrent(r.requestContext) {
		return
	}
	if e.handleRequestError(r.requestContext, r.err) {
		return
	}
	e.currentCancel = nil

	if r.resp == nil || r.resp.Result == nil || len(r.resp.Result.Edits) == 0 || r.resp.Result.Edits[0] == nil {
		e.receivedNone(r.requestContext)
		return
	}

	original := r.resp.Result.Edits[0].ToCompletion()
	normalized := e.normalizeSuggestion(original)
	if e.isNoop(normalized) {
		e.receivedNone(r.requestContext)
		return
	}
	e.surface.ShowStatus(types.StatusReceivedSome, "1")
	e.establishNES(original, normalized)
}

// isNoop reports whether c would leave the document unchanged. Completions
// whose range is not in the document count as no-ops.
func (e *Engine) isNoop(c *types.Completion) bool {
	current, err := text.RangeText(e.surface, c.Range)
	if err != nil {
		logger.Debug("discarding completion with range %s: %v", c.Range, err)
		return true
	}
	return current == c.InsertText
}

// normalizeCompletion falls back to c when normalization fails.
func (e *Engine) normalizeCompletion(c *types.Completion) (out *types.Completion) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("normalize completion panic: %v", r)
			out = c
		}
	}()
	n, err := text.NormalizeCompletion(c, e.surface, e.surface.Cursor())
	if err != nil {
		logger.Warn("normalize completion: %v", err)
		return c
	}
	return n
}

func (e *Engine) normalizeSuggestion(c *types.Completion) (out *types.Completion) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("normalize suggestion panic: %v", r)
			out = c
		}
	}()
	n, err := text.NormalizeSuggestion(c, e.surface)
	if err != nil {
		logger.Warn("normalize suggestion: %v", err)
		return c
	}
	return n
}
