package engine

import (
	"nextedit/render"
	"nextedit/types"
)

type EventType string

// Event type constants
const (
	EventDocumentChanged  EventType = "document_changed"
	EventCursorMoved      EventType = "cursor_moved"
	EventGutterEnter      EventType = "gutter_enter"
	EventGutterLeave      EventType = "gutter_leave"
	EventClick            EventType = "click"
	EventKey              EventType = "key"
	EventTab              EventType = "tab"
	EventEsc              EventType = "esc"
	EventAccept           EventType = "accept"
	EventAcceptNextWord   EventType = "accept_next_word"
	EventDismiss          EventType = "dismiss"
	EventEditorDismiss    EventType = "editor_dismiss"
	EventFileTypeChanged  EventType = "file_type_changed"
	EventRequest          EventType = "request"
	EventToggle           EventType = "toggle"
	EventTrigger          EventType = "trigger"
	EventPendingHide      EventType = "pending_hide"
	EventGhostHide        EventType = "ghost_hide"
	EventWidgetApply      EventType = "widget_apply"
	EventWidgetDiscard    EventType = "widget_discard"
	EventCompletionResult EventType = "completion_result"
	EventNESResult        EventType = "nes_result"
)

var eventTypeMap map[string]EventType

func init() {
	eventTypeMap = buildEventTypeMap()
}

func buildEventTypeMap() map[string]EventType {
	eventMap := make(map[string]EventType)

	// Only events the editor may send by name.
	allEventTypes := []EventType{
		EventCursorMoved,
		EventTab,
		EventEsc,
		EventAccept,
		EventAcceptNextWord,
		EventDismiss,
		EventEditorDismiss,
		EventFileTypeChanged,
		EventRequest,
		EventToggle,
	}

	for _, eventType := range allEventTypes {
		eventMap[string(eventType)] = eventType
	}

	return eventMap
}

// EventTypeFromString maps an editor event name to its type, or "" when
// the name is unknown.
func EventTypeFromString(s string) EventType {
	if eventType, exists := eventTypeMap[s]; exists {
		return eventType
	}
	return ""
}

type Event struct {
	Type EventType
	Data any
}

type keyRequest struct {
	key   Key
	reply chan bool
}

type click struct {
	x, y     int
	modifier Modifier
}

type trigger struct {
	source      types.CompletionSource
	autoInvoked bool
	fallback    bool
}

// requestContext is what a response is validated against.
type requestContext struct {
	id          int
	cursor      types.Position
	source      types.CompletionSource
	autoInvoked bool
	fallback    bool
}

type completionResult struct {
	requestContext
	resp *types.CompletionResponse
	err  error
}

type nesResult struct {
	requestContext
	resp *types.NESResponse
	err  error
}

type widgetAction struct {
	suggestion *render.Suggestion
}
