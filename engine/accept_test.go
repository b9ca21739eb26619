package engine

import (
	"testing"
	"time"

	"nextedit/assert"
	"nextedit/render"
	"nextedit/types"
)

func TestGhost_TabAccepts(t *testing.T) {
	h := newHarness(t, "fmt.Pri", testConfig())
	h.setCursor(t, 0, 7)

	h.deliverItems(item(types.NewRange(0, 7, 0, 7), "ntln()"))
	g, ok := h.doc.GhostText()
	assert.True(t, ok, "ghost shown")
	assert.Equal(t, "ntln()", g.Text, "ghost text")
	shown, _, _ := h.svc.counts()
	assert.Equal(t, 1, shown, "shown notifications")

	assert.True(t, h.e.handleKey(KeyTab), "tab consumed")
	h.flush()

	assert.Equal(t, "fmt.Println()", h.doc.Text(), "document")
	assert.Equal(t, types.Position{Row: 0, Column: 13}, h.doc.Cursor(), "cursor at end of insert")
	_, accepted, _ := h.svc.counts()
	assert.Equal(t, 1, accepted, "accepted notifications")
	assert.Equal(t, `{"id":"c1"}`, string(h.svc.accepted[0].Command), "command echoed")
	assert.Nil(t, h.e.ghost, "ghost slot empty")
	assert.Equal(t, 0, h.doc.LiveArtifacts(), "artifacts")
	assert.Equal(t, 0, h.e.anchors.Live(), "anchors")
}

func TestGhost_TabIgnoredWithPopupOpen(t *testing.T) {
	h := newHarness(t, "fmt.Pri", testConfig())
	h.setCursor(t, 0, 7)
	h.deliverItems(item(types.NewRange(0, 7, 0, 7), "ntln()"))

	h.doc.SetPopupOpen(true)
	assert.False(t, h.e.handleKey(KeyTab), "popup keeps tab")
	assert.Equal(t, "fmt.Pri", h.doc.Text(), "document untouched")
}

func TestGhost_TabAcceptDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.TabAccept = false
	h := newHarness(t, "x", cfg)
	h.setCursor(t, 0, 1)
	h.deliverItems(item(types.NewRange(0, 1, 0, 1), "yz"))

	assert.False(t, h.e.handleKey(KeyTab), "tab not consumed")
	h.e.handleEvent(Event{Type: EventAccept})
	assert.Equal(t, "xyz", h.doc.Text(), "accept command still works")
}

func TestGhost_TypedPrefixShrinks(t *testing.T) {
	h := newHarness(t, "fmt.Pri", testConfig())
	h.setCursor(t, 0, 7)
	h.deliverItems(item(types.NewRange(0, 7, 0, 7), "ntln()"))

	_, err := h.doc.Type("nt")
	assert.NoError(t, err, "Type")
	h.flush()

	g, ok := h.doc.GhostText()
	assert.True(t, ok, "ghost still shown")
	assert.Equal(t, "ln()", g.Text, "remaining ghost")
	assert.Equal(t, types.Position{Row: 0, Column: 9}, g.Pos, "ghost follows the cursor")
	assert.Nil(t, h.e.requestTimer, "matching typing does not reschedule")

	assert.True(t, h.e.handleKey(KeyTab), "tab consumed")
	h.flush()
	assert.Equal(t, "fmt.Println()", h.doc.Text(), "accepts the remainder")
}

func TestGhost_MismatchedTypingDismisses(t *testing.T) {
	h := newHarness(t, "fmt.Pri", testConfig())
	h.setCursor(t, 0, 7)
	h.deliverItems(item(types.NewRange(0, 7, 0, 7), "ntln()"))

	_, err := h.doc.Type("x")
	assert.NoError(t, err, "Type")
	h.flush()

	_, ok := h.doc.GhostText()
	assert.False(t, ok, "ghost removed")
	assert.Nil(t, h.e.ghost, "ghost slot empty")
	assert.NotNil(t, h.e.requestTimer, "typing schedules a request")
}

func TestGhost_FullyTypedClears(t *testing.T) {
	h := newHarness(t, "a", testConfig())
	h.setCursor(t, 0, 1)
	h.deliverItems(item(types.NewRange(0, 1, 0, 1), "bc"))

	_, err := h.doc.Type("bc")
	assert.NoError(t, err, "Type")
	h.flush()

	assert.Nil(t, h.e.ghost, "ghost slot empty")
	assert.Equal(t, 0, h.doc.LiveArtifacts(), "artifacts")
}

func TestPartialAccept_Cumulative(t *testing.T) {
	h := newHarness(t, "x := ", testConfig())
	h.setCursor(t, 0, 5)
	h.deliverItems(item(types.NewRange(0, 5, 0, 5), "foo.bar"))

	h.e.acceptNextWord()
	h.flush()
	assert.Equal(t, "x := foo", h.doc.Text(), "first word")
	g, ok := h.doc.GhostText()
	assert.True(t, ok, "ghost still shown")
	assert.Equal(t, ".bar", g.Text, "remaining ghost")
	assert.Equal(t, types.Position{Row: 0, Column: 8}, g.Pos, "ghost moved past the word")

	h.e.acceptNextWord()
	h.e.acceptNextWord()
	h.flush()

	assert.Equal(t, "x := foo.bar", h.doc.Text(), "all words")
	lengths := make([]int, 0, len(h.svc.partial))
	for _, p := range h.svc.partial {
		lengths = append(lengths, p.length)
		assert.Equal(t, `{"id":"c1"}`, string(p.completion.Command), "original completion reported")
	}
	assert.Equal(t, []int{3, 4, 7}, lengths, "cumulative lengths")
	assert.Nil(t, h.e.ghost, "ghost slot empty once consumed")
	assert.Equal(t, 0, h.doc.LiveArtifacts(), "artifacts")
}

func TestPartialAccept_SuppressesCursorEvents(t *testing.T) {
	h := newHarness(t, "x := ", testConfig())
	h.setCursor(t, 0, 5)
	h.deliverItems(item(types.NewRange(0, 5, 0, 5), "foo bar"))

	h.e.acceptNextWord()
	h.e.handleCursorMoved()
	assert.Nil(t, h.e.requestTimer, "cursor move inside the window is ignored")

	h.clock.Advance(partialAcceptWindow + time.Millisecond)
	h.setCursor(t, 0, 0)
	h.e.handleCursorMoved()
	assert.NotNil(t, h.e.requestTimer, "cursor move after the window schedules")
}

func TestPartialAccept_NoGhostIsNoop(t *testing.T) {
	h := newHarness(t, "abc", testConfig())
	h.e.acceptNextWord()
	assert.Equal(t, "abc", h.doc.Text(), "document")
	assert.Len(t, 0, h.svc.partial, "no notification")
}

func TestNES_PendingRevealAccept(t *testing.T) {
	h := newHarness(t, "foo bar\nbaz", testConfig())
	h.setCursor(t, 1, 0)

	h.deliverNES(edit(types.NewRange(0, 0, 0, 7), "foo"))
	assert.Equal(t, statePending, h.e.state, "gutter-only without autoshow")
	assert.Len(t, 1, h.doc.GutterMarkers(), "gutter marker")
	assert.Len(t, 0, h.doc.Highlights(), "no inline artifacts")
	shown, _, _ := h.svc.counts()
	assert.Equal(t, 0, shown, "not shown yet")

	assert.True(t, h.e.handleKey(KeyTab), "first tab reveals")
	assert.Equal(t, stateRevealed, h.e.state, "revealed")
	assert.Len(t, 1, h.doc.Highlights(), "deletion highlight")
	shown, _, _ = h.svc.counts()
	assert.Equal(t, 1, shown, "shown on reveal")

	assert.True(t, h.e.handleKey(KeyTab), "second tab accepts")
	h.flush()
	assert.Equal(t, "foo\nbaz", h.doc.Text(), "document")
	assert.Equal(t, types.Position{Row: 0, Column: 3}, h.doc.Cursor(), "cursor")
	assert.Equal(t, stateNone, h.e.state, "back to none")
	assert.Equal(t, 0, h.doc.LiveArtifacts(), "artifacts")
	_, accepted, _ := h.svc.counts()
	assert.Equal(t, 1, accepted, "accepted")
	assert.Equal(t, `{"id":"n1"}`, string(h.svc.accepted[0].Command), "command echoed")

	h.clock.Advance(acceptRetriggerDelay)
	ev := h.next(t)
	assert.Equal(t, EventTrigger, ev.Type, "request rescheduled after accept")
}

func TestNES_AcceptCommandWhilePendingReveals(t *testing.T) {
	h := newHarness(t, "foo bar", testConfig())
	h.deliverNES(edit(types.NewRange(0, 0, 0, 7), "foo"))

	h.e.handleEvent(Event{Type: EventAccept})
	assert.Equal(t, stateRevealed, h.e.state, "reveal substitutes for the first accept")
	assert.Equal(t, "foo bar", h.doc.Text(), "not applied yet")

	h.e.handleEvent(Event{Type: EventAccept})
	assert.Equal(t, "foo", h.doc.Text(), "applied")
}

func TestNES_CtrlClickAccepts(t *testing.T) {
	cfg := testConfig()
	cfg.Source.Autoshow = true
	h := newHarness(t, "foo", cfg)
	h.deliverNES(edit(types.NewRange(0, 0, 0, 3), "bar"))
	assert.Equal(t, types.SuggestionReplacement, h.e.nes.suggestion.Type, "type")

	h.e.handleEvent(Event{Type: EventClick, Data: click{x: 1, y: 0, modifier: ModNone}})
	assert.Equal(t, "foo", h.doc.Text(), "plain click does nothing")

	h.e.handleEvent(Event{Type: EventClick, Data: click{x: 9, y: 0, modifier: ModCtrl}})
	assert.Equal(t, "foo", h.doc.Text(), "click outside hit regions does nothing")

	h.e.handleEvent(Event{Type: EventClick, Data: click{x: 1, y: 0, modifier: ModCmd}})
	assert.Equal(t, "bar", h.doc.Text(), "modifier click accepts")
}

func TestNES_DiffWidgetAppliesAnchoredRange(t *testing.T) {
	cfg := testConfig()
	cfg.Source.Autoshow = true
	h := newHarness(t, "top\na\nb", cfg)
	h.setCursor(t, 0, 0)
	h.deliverNES(edit(types.NewRange(1, 0, 2, 1), "a\nc\nd"))
	assert.Equal(t, types.SuggestionDiff, h.e.nes.suggestion.Type, "type")

	_, err := h.doc.Replace(types.NewRange(0, 0, 0, 0), "new\n")
	assert.NoError(t, err, "Replace")
	h.flush()
	assert.Equal(t, stateRevealed, h.e.state, "edit above keeps the suggestion")

	ws := h.doc.Widgets()
	assert.Len(t, 1, ws, "widget")
	ws[0].Widget.OnApply()
	h.flush()

	assert.Equal(t, "new\ntop\na\nc\nd", h.doc.Text(), "applied at the shifted range")
	assert.Equal(t, stateNone, h.e.state, "state")
}

func TestNES_DiffWidgetDiscard(t *testing.T) {
	cfg := testConfig()
	cfg.Source.Autoshow = true
	h := newHarness(t, "a\nb", cfg)
	h.deliverNES(edit(types.NewRange(0, 0, 1, 1), "a\nc\nd"))

	ws := h.doc.Widgets()
	assert.Len(t, 1, ws, "widget")
	ws[0].Widget.OnDiscard()
	h.flush()

	assert.Equal(t, "a\nb", h.doc.Text(), "document untouched")
	assert.Equal(t, stateNone, h.e.state, "state")
	_, accepted, _ := h.svc.counts()
	assert.Equal(t, 0, accepted, "no accept notification")
}

func TestNES_StaleWidgetIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.Source.Autoshow = true
	h := newHarness(t, "a\nb", cfg)
	h.deliverNES(edit(types.NewRange(0, 0, 1, 1), "a\nc\nd"))

	stale := &render.Suggestion{}
	h.e.handleEvent(Event{Type: EventWidgetApply, Data: widgetAction{suggestion: stale}})
	assert.Equal(t, "a\nb", h.doc.Text(), "document untouched")
	assert.Equal(t, stateRevealed, h.e.state, "still revealed")
}
