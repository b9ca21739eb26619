// Package editor defines the capabilities the suggestion engine needs from
// a host text editor, plus an in-memory implementation of them.
package editor

import (
	"nextedit/types"
)

type (
	AnchorID int
	MarkerID int
	GutterID int
	WidgetID int
)

// HighlightKind selects how a highlight range is painted.
type HighlightKind int

const (
	HighlightText HighlightKind = iota
	HighlightFullLine
)

func (k HighlightKind) String() string {
	if k == HighlightFullLine {
		return "fullLine"
	}
	return "text"
}

// Token is one run of a row's tokenization. Preview tokens are spliced in
// by the renderer and are not part of the document.
type Token struct {
	Text    string
	Class   string
	Preview bool
}

// Widget is a diff view pinned below a row. The host calls OnApply or
// OnDiscard when the user picks an action.
type Widget struct {
	Original  string
	Proposed  string
	OnApply   func()
	OnDiscard func()
}

// Change describes one document edit: the text between Start and OldEnd
// (pre-edit coordinates) was replaced by Text, which now ends at NewEnd.
// Tick is the document version after the edit.
type Change struct {
	Start  types.Position
	OldEnd types.Position
	NewEnd types.Position
	Text   string
	Tick   int
}

// Span is the region the edit occupies after it was applied.
func (c Change) Span() types.Range {
	return types.Range{Start: c.Start, End: c.NewEnd}
}

// IsInsertion reports whether nothing was removed.
func (c Change) IsInsertion() bool {
	return c.Start == c.OldEnd
}

// IsNewlineOnly reports whether the edit only inserted a line break.
func (c Change) IsNewlineOnly() bool {
	return c.IsInsertion() && c.Text == "\n"
}

// Document identifies the buffer behind a surface.
type Document struct {
	ID   string
	Path string
}

func (d Document) IsUntitled() bool { return d.Path == "" }

// Surface is everything the engine reads from or draws into the editor.
// Implementations are driven from a single goroutine.
type Surface interface {
	Document() Document

	Cursor() types.Position
	SetCursor(pos types.Position) error
	HasSelection() bool
	IsPopupOpen() bool

	LineCount() int
	Line(row int) string
	// Replace swaps the text in r for text and reports the resulting change.
	Replace(r types.Range, text string) (Change, error)

	CreateAnchor(pos types.Position, insertRight bool) AnchorID
	AnchorPosition(id AnchorID) types.Position
	MoveAnchor(id AnchorID, pos types.Position)
	DetachAnchor(id AnchorID)

	AddHighlight(r types.Range, class string, kind HighlightKind) MarkerID
	RemoveHighlight(id MarkerID)

	AddGutterMarker(row int, class string) GutterID
	RemoveGutterMarker(id GutterID)

	RowTokens(row int) []Token
	SpliceToken(row, col int, tok Token) error
	InvalidateRow(row int)
	RenderRow(row int)

	AddLineWidget(row int, w *Widget) WidgetID
	RemoveLineWidget(id WidgetID)

	ShowGhostText(pos types.Position, text string)
	ClearGhostText()

	ScreenToDocument(x, y int) types.Position

	ShowStatus(kind types.StatusKind, message string)
}
