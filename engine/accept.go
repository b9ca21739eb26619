package engine

import (
	"nextedit/editor"
	"nextedit/logger"
	"nextedit/text"
	"nextedit/types"
)

// applyEdit replaces r and remembers the resulting change so that its echo
// from the editor is not mistaken for typing.
func (e *Engine) applyEdit(r types.Range, insert string) (editor.Change, error) {
	change, err := e.surface.Replace(r, insert)
	if err != nil {
		return change, err
	}
	if change.Tick != 0 {
		e.ownTicks[change.Tick] = struct{}{}
	}
	if err := e.surface.SetCursor(change.NewEnd); err != nil {
		logger.Warn("move cursor after edit: %v", err)
	}
	return change, nil
}

// acceptSuggestion applies the active next-edit suggestion over its
// anchored range and asks for the next one shortly after.
func (e *Engine) acceptSuggestion() {
	defer logger.Trace("engine.acceptSuggestion")()

	n := e.nes
	if n == nil {
		return
	}
	r := n.suggestion.Anchors.Range()
	if _, err := e.applyEdit(r, n.completion.InsertText); err != nil {
		logger.Error("accept suggestion at %s: %v", r, err)
		e.resetNES(true)
		return
	}

	e.notifyShown(n)
	e.service.NotifyAccepted(n.original)
	e.tracker.TrackAccepted(e.context(), n.metrics, false)
	e.resetNES(false)

	if e.autoEnabled {
		e.scheduleRequest(acceptRetriggerDelay, trigger{source: e.config.Source.Primary, autoInvoked: true})
	}
}

// acceptGhost applies the active inline completion.
func (e *Engine) acceptGhost() {
	defer logger.Trace("engine.acceptGhost")()

	g := e.ghost
	if g == nil {
		return
	}
	r := g.suggestion.Anchors.Range()
	if _, err := e.applyEdit(r, g.completion.InsertText); err != nil {
		logger.Error("accept completion at %s: %v", r, err)
		e.resetGhost(true)
		return
	}

	e.service.NotifyAccepted(g.original)
	e.tracker.TrackAccepted(e.context(), g.metrics, false)
	e.resetGhost(false)
}

// acceptNextWord inserts the next word of the ghost text and keeps the rest
// on screen. The service hears the cumulative accepted length.
func (e *Engine) acceptNextWord() {
	g := e.ghost
	if g == nil {
		return
	}
	n := text.NextWordLength(g.completion.DisplayText)
	if n == 0 {
		return
	}
	word := g.completion.DisplayText[:n]

	start := g.suggestion.Anchors.Start.Position()
	change, err := e.applyEdit(types.Range{Start: start, End: start}, word)
	if err != nil {
		logger.Error("partial accept at %s: %v", start, err)
		e.resetGhost(true)
		return
	}

	g.partialAccepted += n
	g.completion.DisplayText = g.completion.DisplayText[n:]
	if len(g.completion.InsertText) >= n && g.completion.InsertText[:n] == word {
		g.completion.InsertText = g.completion.InsertText[n:]
	}
	end := g.suggestion.Anchors.End.Position()
	if end.Before(change.NewEnd) {
		end = change.NewEnd
	}
	g.suggestion.Anchors.MoveTo(types.Range{Start: change.NewEnd, End: end})

	e.suppressUntil = e.clock.Now().Add(partialAcceptWindow)
	e.service.NotifyPartialAccepted(g.original, g.partialAccepted)
	e.tracker.TrackAccepted(e.context(), g.metrics, true)
	logger.Debug("accepted %q, %d bytes so far", word, g.partialAccepted)

	if g.completion.DisplayText == "" {
		e.resetGhost(false)
		return
	}
	g.handle.SetGhostText(g.completion.DisplayText)
}
