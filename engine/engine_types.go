package engine

import (
	"context"
	"time"

	"nextedit/types"
)

// Clock abstracts timers so tests can drive time by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Timer is the part of *time.Timer the engine uses.
type Timer interface {
	Stop() bool
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (SystemClock) Now() time.Time                            { return time.Now() }

// SuggestionService is the remote completion backend. The Notify methods
// are fire-and-forget.
type SuggestionService interface {
	GenerateCompletions(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)
	NextEditSuggestions(ctx context.Context, req *types.NESRequest) (*types.NESResponse, error)
	NotifyShown(c *types.Completion)
	NotifyAccepted(c *types.Completion)
	NotifyPartialAccepted(c *types.Completion, acceptedLength int)
}

// SuggestionSource decides which backend is asked and how results show up.
type SuggestionSource struct {
	Primary types.CompletionSource
	// Fallback asks the other backend when the primary returns nothing.
	Fallback        bool
	NextEditEnabled bool
	// Autoshow renders next-edit suggestions right away instead of
	// gutter-only.
	Autoshow    bool
	AutoTrigger bool
}

// Secondary is the backend used for fallback, if any.
func (s SuggestionSource) Secondary() (types.CompletionSource, bool) {
	if !s.Fallback {
		return 0, false
	}
	if s.Primary == types.SourceNextEdit {
		return types.SourceInlineCompletion, true
	}
	if !s.NextEditEnabled {
		return 0, false
	}
	return types.SourceNextEdit, true
}

// Allows reports whether requests may go to source.
func (s SuggestionSource) Allows(source types.CompletionSource) bool {
	return source != types.SourceNextEdit || s.NextEditEnabled
}

type EngineConfig struct {
	Debounce          time.Duration
	CompletionTimeout time.Duration
	Source            SuggestionSource
	// TabAccept lets Tab reveal and accept suggestions.
	TabAccept bool
}

const (
	minDebounce = 10 * time.Millisecond
	maxDebounce = 5000 * time.Millisecond

	acceptRetriggerDelay = 20 * time.Millisecond
	fallbackDelay        = 10 * time.Millisecond
	pendingHideDelay     = 100 * time.Millisecond
	partialAcceptWindow  = 1200 * time.Millisecond
	keyReplyTimeout      = 50 * time.Millisecond

	defaultCompletionTimeout = 5 * time.Second
)

// ClampDebounce bounds a debounce delay to [10ms, 5s].
func ClampDebounce(d time.Duration) time.Duration {
	return min(max(d, minDebounce), maxDebounce)
}

// Key is a key press the engine may consume.
type Key string

const (
	KeyTab    Key = "Tab"
	KeyEscape Key = "Escape"
)

// Modifier is the modifier held during a click.
type Modifier int

const (
	ModNone Modifier = iota
	ModCtrl
	ModCmd
)
