package engine

import (
	"nextedit/logger"
)

// state is the lifecycle of the next-edit slot. The ghost slot is either
// empty or active and needs no state of its own.
type state int

const (
	stateNone state = iota
	statePending
	stateRevealed
)

// String returns a human-readable name for the state
func (s state) String() string {
	switch s {
	case stateNone:
		return "None"
	case statePending:
		return "Pending"
	case stateRevealed:
		return "Revealed"
	default:
		return "Unknown"
	}
}

// Transition represents a valid state transition in the engine's state machine
type Transition struct {
	From   state
	Event  EventType
	Action func(*Engine, Event)
}

// transitions lists every event the next-edit slot reacts to.
//
// State Machine Overview:
//
//	stateNone
//	└─[suggestion arrives]──► statePending (autoshow off) / stateRevealed (autoshow on)
//
//	statePending
//	├─[GutterEnter/Tab/Accept]──► stateRevealed
//	├─[WidgetApply]──► accepted ──► stateNone
//	└─[Esc/WidgetDiscard/Dismiss]──► stateNone
//
//	stateRevealed
//	├─[Tab/Accept/Click/WidgetApply]──► accepted ──► stateNone
//	├─[Esc/WidgetDiscard/Dismiss]──► stateNone
//	└─[GutterLeave ... PendingHide]──► statePending
//
// Intersecting document edits and superseding suggestions reset any state
// to stateNone outside this table.
var transitions = []Transition{
	// From statePending
	{statePending, EventGutterEnter, (*Engine).doRevealOnHover},
	{statePending, EventTab, (*Engine).doReveal},
	{statePending, EventAccept, (*Engine).doReveal},
	{statePending, EventWidgetApply, (*Engine).doWidgetApply},
	{statePending, EventEsc, (*Engine).doDismiss},
	{statePending, EventWidgetDiscard, (*Engine).doWidgetDiscard},
	{statePending, EventDismiss, (*Engine).doDismiss},

	// From stateRevealed
	{stateRevealed, EventTab, (*Engine).doAccept},
	{stateRevealed, EventAccept, (*Engine).doAccept},
	{stateRevealed, EventClick, (*Engine).doClick},
	{stateRevealed, EventWidgetApply, (*Engine).doWidgetApply},
	{stateRevealed, EventEsc, (*Engine).doDismiss},
	{stateRevealed, EventWidgetDiscard, (*Engine).doWidgetDiscard},
	{stateRevealed, EventDismiss, (*Engine).doDismiss},
	{stateRevealed, EventGutterEnter, (*Engine).doCancelPendingHide},
	{stateRevealed, EventGutterLeave, (*Engine).doStartPendingHide},
	{stateRevealed, EventPendingHide, (*Engine).doUnreveal},
}

// transitionMap provides O(1) lookup for transitions by (state, event) pair
var transitionMap map[transitionKey]*Transition

type transitionKey struct {
	from  state
	event EventType
}

func init() {
	transitionMap = make(map[transitionKey]*Transition)
	for i := range transitions {
		t := &transitions[i]
		key := transitionKey{from: t.From, event: t.Event}
		transitionMap[key] = t
	}
}

// findTransition looks up a valid transition for the given state and event.
// Returns nil if no valid transition exists.
func findTransition(from state, event EventType) *Transition {
	return transitionMap[transitionKey{from: from, event: event}]
}

// dispatch runs the transition for event from the current state and
// reports whether there was one.
func (e *Engine) dispatch(event Event) bool {
	t := findTransition(e.state, event.Type)
	if t == nil {
		logger.Debug("no handler: state=%s event=%s", e.state, event.Type)
		return false
	}
	if t.Action != nil {
		t.Action(e, event)
	}
	return true
}

// Action functions for state transitions

func (e *Engine) doReveal(event Event) {
	e.reveal(false)
}

func (e *Engine) doRevealOnHover(event Event) {
	row, _ := event.Data.(int)
	if !e.nes.handle.CoversRow(row) {
		return
	}
	e.reveal(true)
}

func (e *Engine) doAccept(event Event) {
	e.acceptSuggestion()
}

func (e *Engine) doClick(event Event) {
	c, ok := event.Data.(click)
	if !ok || c.modifier == ModNone {
		return
	}
	pos := e.surface.ScreenToDocument(c.x, c.y)
	if e.nes.handle.HitTest(pos) {
		e.acceptSuggestion()
	}
}

func (e *Engine) doWidgetApply(event Event) {
	if e.ownsWidget(event) {
		e.acceptSuggestion()
	}
}

func (e *Engine) doWidgetDiscard(event Event) {
	if e.ownsWidget(event) {
		e.dismissSuggestion()
	}
}

func (e *Engine) doDismiss(event Event) {
	e.dismissSuggestion()
}

func (e *Engine) doCancelPendingHide(event Event) {
	e.stopTimer(&e.hideTimer)
}

func (e *Engine) doStartPendingHide(event Event) {
	if !e.nes.revealedByHover {
		return
	}
	e.stopTimer(&e.hideTimer)
	e.hideTimer = e.clock.AfterFunc(pendingHideDelay, func() {
		e.post(Event{Type: EventPendingHide})
	})
}

func (e *Engine) doUnreveal(event Event) {
	e.nes.handle.Unreveal()
	e.state = statePending
	logger.Debug("suggestion back to gutter-only")
}

// ownsWidget reports whether a widget event belongs to the live suggestion.
func (e *Engine) ownsWidget(event Event) bool {
	a, ok := event.Data.(widgetAction)
	return ok && e.nes != nil && e.nes.suggestion == a.suggestion
}
