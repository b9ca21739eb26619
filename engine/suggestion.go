package engine

import (
	"strings"

	"nextedit/editor"
	"nextedit/logger"
	"nextedit/metrics"
	"nextedit/render"
	"nextedit/text"
	"nextedit/types"
)

// reset clears both slots. disposed marks the removed suggestions as
// dismissed for metrics.
func (e *Engine) reset(disposed bool) {
	e.resetNES(disposed)
	e.resetGhost(disposed)
}

func (e *Engine) resetNES(disposed bool) {
	e.stopTimer(&e.hideTimer)
	s := e.nes
	e.nes = nil
	e.state = stateNone
	if s == nil {
		return
	}
	s.release()
	if disposed && s.shown {
		e.tracker.TrackDisposed(e.context(), s.metrics)
	}
}

func (e *Engine) resetGhost(disposed bool) {
	e.stopTimer(&e.ghostHideTimer)
	g := e.ghost
	e.ghost = nil
	if g == nil {
		return
	}
	g.release()
	if disposed && g.shown {
		e.tracker.TrackDisposed(e.context(), g.metrics)
	}
}

// establishGhost makes c the active inline completion, replacing whatever
// was shown before.
func (e *Engine) establishGhost(original, c *types.Completion) {
	e.reset(true)

	s := &render.Suggestion{
		Completion: c,
		Type:       types.SuggestionGhostText,
		Anchors:    e.anchors.CreateRange(c.Range),
	}
	g := &slot{
		completion: c,
		original:   original,
		suggestion: s,
		metrics:    metrics.NewCompletionMetrics(s.Type, c.Source, nil, e.clock.Now()),
	}
	g.handle = e.renderer.Render(s)
	e.ghost = g
	e.notifyShown(g)
	logger.Debug("ghost text at %s: %q", c.Range.Start, c.DisplayText)
}

// establishNES makes c the active next-edit suggestion, fully rendered
// with autoshow and gutter-only otherwise.
func (e *Engine) establishNES(original, c *types.Completion) {
	e.reset(true)

	current, err := text.RangeText(e.surface, c.Range)
	if err != nil {
		logger.Warn("suggestion range %s: %v", c.Range, err)
		return
	}
	typ, set := classify(c.Range, current, c.InsertText)

	s := &render.Suggestion{
		Completion: c,
		Type:       typ,
		Deltas:     set,
		Anchors:    e.anchors.CreateRange(c.Range),
		Original:   current,
	}
	n := &slot{
		completion: c,
		original:   original,
		suggestion: s,
		metrics:    metrics.NewCompletionMetrics(typ, c.Source, set, e.clock.Now()),
	}
	e.nes = n

	if e.config.Source.Autoshow {
		n.handle = e.renderer.Render(s)
		e.state = stateRevealed
		e.notifyShown(n)
	} else {
		n.handle = e.renderer.RenderGutterOnly(s)
		e.state = statePending
	}
	n.tabReady = true
	logger.Debug("next edit %s at %s (state=%s)", typ, c.Range, e.state)
}

// classify never fails: a panic in the differ degrades to a DIFF view.
func classify(r types.Range, original, proposed string) (t types.SuggestionType, set *types.EditDeltaSet) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("classify panic: %v", rec)
			t, set = types.SuggestionDiff, &types.EditDeltaSet{}
		}
	}()
	t, set = text.Classify(r, original, proposed)
	if set == nil {
		set = &types.EditDeltaSet{}
	}
	return t, set
}

func (e *Engine) reveal(byHover bool) {
	n := e.nes
	if n == nil {
		return
	}
	e.stopTimer(&e.hideTimer)
	e.renderer.Reveal(n.handle)
	n.revealedByHover = byHover
	n.tabReady = true
	e.state = stateRevealed
	e.notifyShown(n)
}

// notifyShown tells the service about a suggestion the first time it is
// visible.
func (e *Engine) notifyShown(s *slot) {
	if s.shown {
		return
	}
	s.shown = true
	e.service.NotifyShown(s.original)
	e.tracker.TrackShown(e.context(), s.metrics)
}

func (e *Engine) dismissSuggestion() {
	logger.Debug("suggestion dismissed")
	e.resetNES(true)
}

func (e *Engine) suppressed() bool {
	return e.clock.Now().Before(e.suppressUntil)
}

// intersects reports whether an edit touches an anchored range. Both are in
// post-edit coordinates.
func intersects(r types.Range, c editor.Change) bool {
	return r.Contains(c.Start) || c.Span().ContainsRightExclusive(r.Start)
}

func (e *Engine) handleDocumentChanged(c editor.Change) {
	if c.Tick != 0 {
		if _, own := e.ownTicks[c.Tick]; own {
			delete(e.ownTicks, c.Tick)
			return
		}
	}

	if e.nes != nil && intersects(e.nes.suggestion.Anchors.Range(), c) {
		logger.Debug("edit at %s intersects suggestion", c.Start)
		e.resetNES(true)
	}
	if e.nes != nil {
		e.nes.tabReady = false
	}

	if e.ghost != nil {
		if e.consumeTyped(c) {
			return
		}
		if e.ghost != nil && intersects(e.ghost.suggestion.Anchors.Range(), c) {
			e.resetGhost(true)
		}
	}

	if e.suppressed() || c.IsNewlineOnly() {
		return
	}
	e.scheduleAutomatic()
}

// consumeTyped shrinks the ghost text when the user types its head. It
// reports whether the ghost is still live afterwards.
func (e *Engine) consumeTyped(c editor.Change) bool {
	g := e.ghost
	start := g.suggestion.Anchors.Start.Position()
	if !c.IsInsertion() || c.Start != start {
		return false
	}
	rest, ok := text.ConsumePrefix(g.completion.DisplayText, c.Text)
	if !ok {
		return false
	}
	if rest == "" {
		logger.Debug("ghost text fully typed")
		e.resetGhost(false)
		return false
	}

	g.completion.DisplayText = rest
	g.completion.InsertText = strings.TrimPrefix(g.completion.InsertText, c.Text)
	end := g.suggestion.Anchors.End.Position()
	if end.Before(c.NewEnd) {
		end = c.NewEnd
	}
	g.suggestion.Anchors.MoveTo(types.Range{Start: c.NewEnd, End: end})
	g.handle.SetGhostText(rest)
	return true
}

func (e *Engine) handleCursorMoved() {
	if e.suppressed() {
		return
	}
	if e.surface.HasSelection() {
		e.stopTimer(&e.requestTimer)
		return
	}

	if e.ghost != nil {
		if e.surface.Cursor() == e.ghost.suggestion.Anchors.Start.Position() {
			e.stopTimer(&e.ghostHideTimer)
			return
		}
		if e.ghostHideTimer == nil {
			e.ghostHideTimer = e.clock.AfterFunc(pendingHideDelay, func() {
				e.post(Event{Type: EventGhostHide})
			})
		}
	}
	e.scheduleAutomatic()
}

func (e *Engine) handleGhostHide() {
	if e.ghost == nil {
		return
	}
	if e.surface.Cursor() != e.ghost.suggestion.Anchors.Start.Position() {
		logger.Debug("cursor left ghost text")
		e.resetGhost(true)
	}
}
