package engine

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"nextedit/anchor"
	"nextedit/editor"
	"nextedit/logger"
	"nextedit/metrics"
	"nextedit/render"
	"nextedit/types"
)

const maxEventLoopRestarts = 3

// slot holds one live suggestion.
type slot struct {
	// completion is the working copy; its DisplayText and InsertText shrink
	// under partial accept and typed prefixes.
	completion *types.Completion
	// original is the payload as received, echoed back in notifications.
	original   *types.Completion
	suggestion *render.Suggestion
	handle     *render.Handle
	metrics    *metrics.CompletionMetrics

	shown           bool
	revealedByHover bool
	partialAccepted int
	// tabReady is set when the suggestion is drawn and cleared by document
	// changes the engine did not make. Tab acts on the suggestion only while
	// it is set.
	tabReady bool
}

func (s *slot) release() {
	s.handle.Teardown()
	s.suggestion.Anchors.Detach()
}

type Engine struct {
	service  SuggestionService
	surface  editor.Surface
	clock    Clock
	tracker  *metrics.Tracker
	anchors  *anchor.Tracker
	renderer *render.Renderer
	config   EngineConfig

	mu        sync.Mutex
	eventChan chan Event
	done      chan struct{}

	// Main context and cancel for the engine lifecycle
	mainCtx      context.Context
	mainCancel   context.CancelFunc
	started      atomic.Bool
	stopped      atomic.Bool
	stopOnce     sync.Once
	loopRestarts atomic.Int32

	state state
	nes   *slot
	ghost *slot

	requestID      int
	currentCancel  context.CancelFunc
	requestTimer   Timer
	hideTimer      Timer
	ghostHideTimer Timer

	autoEnabled        bool
	disabledInDocument bool
	suppressUntil      time.Time
	ownTicks           map[int]struct{}
}

// NewEngine wires an engine to one editor surface. A nil clock means the
// wall clock and a nil tracker records nothing.
func NewEngine(service SuggestionService, surface editor.Surface, config EngineConfig, clock Clock, tracker *metrics.Tracker) (*Engine, error) {
	if surface == nil {
		return nil, types.ErrNoSurface
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if config.CompletionTimeout <= 0 {
		config.CompletionTimeout = defaultCompletionTimeout
	}
	config.Debounce = ClampDebounce(config.Debounce)

	e := &Engine{
		service:     service,
		surface:     surface,
		clock:       clock,
		tracker:     tracker,
		anchors:     anchor.NewTracker(surface),
		config:      config,
		eventChan:   make(chan Event, 100),
		done:        make(chan struct{}),
		state:       stateNone,
		autoEnabled: config.Source.AutoTrigger,
		ownTicks:    make(map[int]struct{}),
	}
	e.renderer = render.NewRenderer(surface, e.anchors, render.Actions{
		Apply: func(s *render.Suggestion) {
			e.post(Event{Type: EventWidgetApply, Data: widgetAction{suggestion: s}})
		},
		Discard: func(s *render.Suggestion) {
			e.post(Event{Type: EventWidgetDiscard, Data: widgetAction{suggestion: s}})
		},
	})
	return e, nil
}

func (e *Engine) Start(ctx context.Context) {
	if e.stopped.Load() || !e.started.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	e.mainCtx, e.mainCancel = context.WithCancel(ctx)
	loopCtx := e.mainCtx
	e.mu.Unlock()

	go e.eventLoop(loopCtx)
	logger.Info("engine started for %s", e.surface.Document().Path)
}

// Stop shuts the engine down and removes anything it drew.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.stopped.Store(true)
		close(e.done)

		e.mu.Lock()
		defer e.mu.Unlock()

		logger.Info("stopping engine...")
		if e.mainCancel != nil {
			e.mainCancel()
		}
		e.invalidateRequests()
		e.reset(false)
		logger.Info("engine stopped")
	})
}

// context returns the engine lifecycle context, or a background context
// before Start. Only called on the loop.
func (e *Engine) context() context.Context {
	if e.mainCtx != nil {
		return e.mainCtx
	}
	return context.Background()
}

// post queues an event for the loop. It never takes the engine lock, so
// surfaces may report changes synchronously from inside a handler. It never
// blocks either: events posted after Stop or to a full queue are dropped.
func (e *Engine) post(event Event) {
	if e.stopped.Load() {
		return
	}
	select {
	case e.eventChan <- event:
	case <-e.done:
	default:
		logger.Warn("event queue full, dropping %s", event.Type)
	}
}

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			restarts := e.loopRestarts.Add(1)
			logger.Error("event loop panic [%d/%d]: %v\n%s",
				restarts, maxEventLoopRestarts, r, debug.Stack())

			if int(restarts) < maxEventLoopRestarts {
				e.eventLoop(ctx)
			} else {
				logger.Error("max event loop restarts reached, stopping engine")
				go e.Stop()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.eventChan:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("event handler panic recovered for event %v: %v", event.Type, r)
					}
				}()
				e.handleEvent(event)
			}()
		}
	}
}

func (e *Engine) handleEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped.Load() {
		return
	}

	logger.Debug("handle event: %v (state=%s)", event.Type, e.state)
	defer func() {
		logger.Debug("after event: %v (state=%s)", event.Type, e.state)
	}()

	// Layer 1: timers and service results
	if e.handleBackgroundEvent(event) {
		return
	}
	// Layer 2: editor feeds that touch both slots
	if e.handleEditorEvent(event) {
		return
	}
	// Layer 3: next-edit lifecycle
	e.dispatch(event)
}

func (e *Engine) handleBackgroundEvent(event Event) bool {
	switch event.Type {
	case EventTrigger:
		e.requestTimer = nil
		if t, ok := event.Data.(trigger); ok {
			e.handleTrigger(t)
		}
	case EventCompletionResult:
		if r, ok := event.Data.(*completionResult); ok {
			e.handleCompletionResult(r)
		}
	case EventNESResult:
		if r, ok := event.Data.(*nesResult); ok {
			e.handleNESResult(r)
		}
	case EventGhostHide:
		e.ghostHideTimer = nil
		e.handleGhostHide()
	default:
		return false
	}
	return true
}

func (e *Engine) handleEditorEvent(event Event) bool {
	switch event.Type {
	case EventDocumentChanged:
		if c, ok := event.Data.(editor.Change); ok {
			e.handleDocumentChanged(c)
		}
	case EventCursorMoved:
		e.handleCursorMoved()
	case EventKey:
		if k, ok := event.Data.(*keyRequest); ok {
			k.reply <- e.handleKey(k.key)
		}
	case EventTab:
		e.handleKey(KeyTab)
	case EventEsc:
		e.handleKey(KeyEscape)
	case EventAccept:
		switch {
		case e.state != stateNone:
			e.dispatch(event)
		case e.ghost != nil:
			e.acceptGhost()
		default:
			// Nothing to accept: ask for a suggestion instead.
			source := e.config.Source.Primary
			if e.config.Source.NextEditEnabled {
				source = types.SourceNextEdit
			}
			e.requestNowFrom(source)
		}
	case EventAcceptNextWord:
		e.acceptNextWord()
	case EventDismiss:
		if e.state != stateNone {
			e.dispatch(event)
		}
		e.resetGhost(true)
	case EventEditorDismiss:
		e.stopTimer(&e.requestTimer)
		e.reset(true)
	case EventFileTypeChanged:
		e.disabledInDocument = false
		e.invalidateRequests()
		e.reset(true)
	case EventRequest:
		e.requestNow()
	case EventToggle:
		e.toggleAutomatic()
	default:
		return false
	}
	return true
}

// handleKey decides whether the engine consumes a key press.
func (e *Engine) handleKey(key Key) bool {
	switch key {
	case KeyTab:
		if !e.config.TabAccept {
			return false
		}
		if e.state != stateNone && e.canAcceptWithTab() {
			return e.dispatch(Event{Type: EventTab})
		}
		if e.ghost != nil && !e.surface.IsPopupOpen() {
			e.acceptGhost()
			return true
		}
	case KeyEscape:
		handled := e.state != stateNone || e.ghost != nil
		e.invalidateRequests()
		if e.state != stateNone {
			e.dispatch(Event{Type: EventEsc})
		}
		e.resetGhost(true)
		return handled
	}
	return false
}

// canAcceptWithTab is true once the suggestion has been drawn at least in
// the gutter and the document has not changed since.
func (e *Engine) canAcceptWithTab() bool {
	return e.nes != nil && e.nes.handle != nil && e.nes.tabReady
}

func (e *Engine) toggleAutomatic() {
	e.autoEnabled = !e.autoEnabled
	e.stopTimer(&e.requestTimer)
	e.reset(true)
	if e.autoEnabled {
		e.surface.ShowStatus(types.StatusEnabled, "automatic suggestions enabled")
	} else {
		e.surface.ShowStatus(types.StatusDisabled, "automatic suggestions disabled")
	}
}

func (e *Engine) stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// Editor-facing API. Every call only posts an event; the work happens on
// the event loop.

func (e *Engine) OnDocumentChanged(change editor.Change) {
	e.post(Event{Type: EventDocumentChanged, Data: change})
}

func (e *Engine) OnCursorMoved() { e.post(Event{Type: EventCursorMoved}) }

func (e *Engine) OnGutterEnter(row int) { e.post(Event{Type: EventGutterEnter, Data: row}) }

func (e *Engine) OnGutterLeave(row int) { e.post(Event{Type: EventGutterLeave, Data: row}) }

func (e *Engine) OnClick(x, y int, modifier Modifier) {
	e.post(Event{Type: EventClick, Data: click{x: x, y: y, modifier: modifier}})
}

func (e *Engine) OnFileTypeChanged() { e.post(Event{Type: EventFileTypeChanged}) }

func (e *Engine) OnDismiss() { e.post(Event{Type: EventEditorDismiss}) }

func (e *Engine) RequestSuggestion() { e.post(Event{Type: EventRequest}) }

func (e *Engine) AcceptNextWord() { e.post(Event{Type: EventAcceptNextWord}) }

func (e *Engine) ToggleAutomaticSuggestions() { e.post(Event{Type: EventToggle}) }

func (e *Engine) AcceptSuggestion() { e.post(Event{Type: EventAccept}) }

func (e *Engine) DismissSuggestion() { e.post(Event{Type: EventDismiss}) }

// PostNamed posts an editor event by name. Unknown names are ignored.
func (e *Engine) PostNamed(name string) bool {
	t := EventTypeFromString(name)
	if t == "" {
		return false
	}
	e.post(Event{Type: t})
	return true
}

// HandleKey reports whether the engine consumed key, in which case the
// editor should stop propagating it. It waits briefly for the loop and
// answers false when the loop is busy or not running.
func (e *Engine) HandleKey(key Key) bool {
	if !e.started.Load() || e.stopped.Load() {
		return false
	}

	req := &keyRequest{key: key, reply: make(chan bool, 1)}
	e.post(Event{Type: EventKey, Data: req})
	select {
	case handled := <-req.reply:
		return handled
	case <-time.After(keyReplyTimeout):
		logger.Warn("key %s not handled within %s", key, keyReplyTimeout)
		return false
	}
}
