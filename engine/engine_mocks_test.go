package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"nextedit/editor"
	"nextedit/types"
)

// --- Mock implementations ---

type partialCall struct {
	completion *types.Completion
	length     int
}

// mockService implements SuggestionService for testing
type mockService struct {
	mu sync.Mutex

	completionResp *types.CompletionResponse
	completionErr  error
	nesResp        *types.NESResponse
	nesErr         error

	completionRequests []*types.CompletionRequest
	nesRequests        []*types.NESRequest
	shown              []*types.Completion
	accepted           []*types.Completion
	partial            []partialCall
}

func newMockService() *mockService {
	return &mockService{}
}

func (s *mockService) GenerateCompletions(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completionRequests = append(s.completionRequests, req)
	return s.completionResp, s.completionErr
}

func (s *mockService) NextEditSuggestions(ctx context.Context, req *types.NESRequest) (*types.NESResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nesRequests = append(s.nesRequests, req)
	return s.nesResp, s.nesErr
}

func (s *mockService) NotifyShown(c *types.Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, c)
}

func (s *mockService) NotifyAccepted(c *types.Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, c)
}

func (s *mockService) NotifyPartialAccepted(c *types.Completion, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = append(s.partial, partialCall{completion: c, length: length})
}

func (s *mockService) counts() (shown, accepted, partial int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shown), len(s.accepted), len(s.partial)
}

// mockClock implements Clock for testing
type mockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

func newMockClock() *mockClock {
	return &mockClock{
		now: time.Unix(1700000000, 0),
	}
}

func (c *mockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{
		fireTime: c.now.Add(d),
		f:        f,
	}
	c.timers = append(c.timers, t)
	return t
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward and fires every timer that came due.
func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	// Copy timers to avoid holding lock during callback
	var toFire []*mockTimer
	for _, t := range c.timers {
		if !t.fireTime.After(c.now) {
			toFire = append(toFire, t)
		}
	}
	c.mu.Unlock()

	for _, t := range toFire {
		t.fire()
	}
}

// active counts timers that have neither fired nor been stopped.
func (c *mockClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

type mockTimer struct {
	fireTime time.Time
	f        func()
	stopped  bool
	mu       sync.Mutex
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *mockTimer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	f := t.f
	t.mu.Unlock()
	if f != nil {
		f()
	}
}

// --- Helper functions ---

type harness struct {
	e     *Engine
	doc   *editor.Memory
	clock *mockClock
	svc   *mockService
}

func testConfig() EngineConfig {
	return EngineConfig{
		Debounce:          75 * time.Millisecond,
		CompletionTimeout: time.Second,
		TabAccept:         true,
		Source: SuggestionSource{
			Primary:         types.SourceInlineCompletion,
			NextEditEnabled: true,
			AutoTrigger:     true,
		},
	}
}

func newHarness(t *testing.T, text string, config EngineConfig) *harness {
	t.Helper()
	h := &harness{
		doc:   editor.NewMemory(editor.Document{ID: "doc-1", Path: "main.go"}, text),
		clock: newMockClock(),
		svc:   newMockService(),
	}
	e, err := NewEngine(h.svc, h.doc, config, h.clock, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h.e = e
	h.doc.Subscribe(e.OnDocumentChanged)
	return h
}

func (h *harness) setCursor(t *testing.T, row, col int) {
	t.Helper()
	if err := h.doc.SetCursor(types.Position{Row: row, Column: col}); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
}

// flush handles every queued event on the calling goroutine.
func (h *harness) flush() {
	for {
		select {
		case ev := <-h.e.eventChan:
			h.e.handleEvent(ev)
		default:
			return
		}
	}
}

// waitFor handles events until one of type typ was handled.
func (h *harness) waitFor(t *testing.T, typ EventType) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.e.eventChan:
			h.e.handleEvent(ev)
			if ev.Type == typ {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// next returns the next queued event without handling it.
func (h *harness) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-h.e.eventChan:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event queued")
	}
	return Event{}
}

func (h *harness) currentRequest(source types.CompletionSource) requestContext {
	h.e.requestID++
	return requestContext{id: h.e.requestID, cursor: h.doc.Cursor(), source: source}
}

// deliverCompletion feeds a response to the latest request.
func (h *harness) deliverCompletion(resp *types.CompletionResponse, err error) {
	h.e.handleCompletionResult(&completionResult{
		requestContext: h.currentRequest(types.SourceInlineCompletion),
		resp:           resp,
		err:            err,
	})
}

func (h *harness) deliverItems(items ...*types.Completion) {
	h.deliverCompletion(&types.CompletionResponse{
		Result: &types.CompletionResult{Items: items},
	}, nil)
}

func (h *harness) deliverNES(edits ...*types.NESEdit) {
	h.e.handleNESResult(&nesResult{
		requestContext: h.currentRequest(types.SourceNextEdit),
		resp:           &types.NESResponse{Result: &types.NESResult{Edits: edits}},
	})
}

func item(r types.Range, insert string) *types.Completion {
	return &types.Completion{InsertText: insert, Range: r, Command: []byte(`{"id":"c1"}`)}
}

func edit(r types.Range, text string) *types.NESEdit {
	return &types.NESEdit{Text: text, Range: r, Command: []byte(`{"id":"n1"}`)}
}
