package editor

import (
	"fmt"
	"sort"
	"strings"

	"nextedit/types"
)

type memAnchor struct {
	pos         types.Position
	insertRight bool
}

type Highlight struct {
	Range types.Range
	Class string
	Kind  HighlightKind
}

type GutterMarker struct {
	Row   int
	Class string
}

type LineWidget struct {
	Row    int
	Widget *Widget
}

type Ghost struct {
	Pos  types.Position
	Text string
}

type Status struct {
	Kind    types.StatusKind
	Message string
}

// Memory is an in-memory Surface. Rows are stored as plain strings and
// columns are byte offsets.
type Memory struct {
	doc       Document
	lines     []string
	cursor    types.Position
	tick      int
	selection bool
	popup     bool

	nextID     int
	anchors    map[AnchorID]*memAnchor
	highlights map[MarkerID]Highlight
	gutter     map[GutterID]GutterMarker
	widgets    map[WidgetID]LineWidget
	tokens     map[int][]Token
	renders    map[int]int
	ghost      *Ghost
	statuses   []Status

	listeners []func(Change)
}

// NewMemory creates a surface holding text. An empty text is one empty row.
func NewMemory(doc Document, text string) *Memory {
	return &Memory{
		doc:        doc,
		lines:      strings.Split(text, "\n"),
		anchors:    make(map[AnchorID]*memAnchor),
		highlights: make(map[MarkerID]Highlight),
		gutter:     make(map[GutterID]GutterMarker),
		widgets:    make(map[WidgetID]LineWidget),
		tokens:     make(map[int][]Token),
		renders:    make(map[int]int),
	}
}

func (m *Memory) id() int {
	m.nextID++
	return m.nextID
}

// Subscribe registers f to be called after every document change.
func (m *Memory) Subscribe(f func(Change)) {
	m.listeners = append(m.listeners, f)
}

func (m *Memory) Document() Document { return m.doc }

func (m *Memory) Text() string { return strings.Join(m.lines, "\n") }

func (m *Memory) Tick() int { return m.tick }

func (m *Memory) Cursor() types.Position { return m.cursor }

func (m *Memory) SetCursor(pos types.Position) error {
	if !m.valid(pos) {
		return fmt.Errorf("cursor %s outside document", pos)
	}
	m.cursor = pos
	return nil
}

func (m *Memory) SetSelection(active bool) { m.selection = active }
func (m *Memory) HasSelection() bool       { return m.selection }
func (m *Memory) SetPopupOpen(open bool)   { m.popup = open }
func (m *Memory) IsPopupOpen() bool        { return m.popup }

func (m *Memory) LineCount() int { return len(m.lines) }

func (m *Memory) Line(row int) string {
	if row < 0 || row >= len(m.lines) {
		return ""
	}
	return m.lines[row]
}

func (m *Memory) valid(p types.Position) bool {
	return p.Row >= 0 && p.Row < len(m.lines) && p.Column >= 0 && p.Column <= len(m.lines[p.Row])
}

// Replace applies the edit, shifts anchors and the cursor, and notifies
// subscribers.
func (m *Memory) Replace(r types.Range, text string) (Change, error) {
	if !m.valid(r.Start) || !m.valid(r.End) || r.End.Before(r.Start) {
		return Change{}, fmt.Errorf("range %s outside document", r)
	}

	m.lines = SpliceLines(m.lines, r, text)
	m.tick++

	newEnd := EndOf(r.Start, text)
	m.tokens, _ = ShiftRows(m.tokens, r, newEnd)
	for _, a := range m.anchors {
		a.pos = transform(a.pos, r, newEnd, a.insertRight)
	}
	m.cursor = transform(m.cursor, r, newEnd, false)

	change := Change{Start: r.Start, OldEnd: r.End, NewEnd: newEnd, Text: text, Tick: m.tick}
	for _, f := range m.listeners {
		f(change)
	}
	return change, nil
}

// Type inserts text at the cursor the way a keystroke would.
func (m *Memory) Type(text string) (Change, error) {
	return m.Replace(types.Range{Start: m.cursor, End: m.cursor}, text)
}

// transform moves p across a removal of r followed by an insertion that
// ends at newEnd. A point at the insertion position stays put when
// insertRight is set and is pushed past the new text otherwise.
func transform(p types.Position, r types.Range, newEnd types.Position, insertRight bool) types.Position {
	s, e := r.Start, r.End

	switch {
	case p.Compare(s) <= 0:
	case p.Compare(e) >= 0:
		if p.Row == e.Row {
			p = types.Position{Row: s.Row, Column: s.Column + p.Column - e.Column}
		} else {
			p.Row -= e.Row - s.Row
		}
	default:
		p = s
	}

	if newEnd == s {
		return p
	}
	if p.Before(s) || (p == s && insertRight) {
		return p
	}
	if p.Row == s.Row {
		return types.Position{Row: newEnd.Row, Column: newEnd.Column + p.Column - s.Column}
	}
	p.Row += newEnd.Row - s.Row
	return p
}

func (m *Memory) CreateAnchor(pos types.Position, insertRight bool) AnchorID {
	id := AnchorID(m.id())
	m.anchors[id] = &memAnchor{pos: pos, insertRight: insertRight}
	return id
}

func (m *Memory) AnchorPosition(id AnchorID) types.Position {
	if a, ok := m.anchors[id]; ok {
		return a.pos
	}
	return types.Position{}
}

func (m *Memory) MoveAnchor(id AnchorID, pos types.Position) {
	if a, ok := m.anchors[id]; ok {
		a.pos = pos
	}
}

func (m *Memory) DetachAnchor(id AnchorID) { delete(m.anchors, id) }

func (m *Memory) AddHighlight(r types.Range, class string, kind HighlightKind) MarkerID {
	id := MarkerID(m.id())
	m.highlights[id] = Highlight{Range: r, Class: class, Kind: kind}
	return id
}

func (m *Memory) RemoveHighlight(id MarkerID) { delete(m.highlights, id) }

func (m *Memory) AddGutterMarker(row int, class string) GutterID {
	id := GutterID(m.id())
	m.gutter[id] = GutterMarker{Row: row, Class: class}
	return id
}

func (m *Memory) RemoveGutterMarker(id GutterID) { delete(m.gutter, id) }

func (m *Memory) RowTokens(row int) []Token {
	if toks, ok := m.tokens[row]; ok {
		return append([]Token(nil), toks...)
	}
	return []Token{{Text: m.Line(row), Class: "text"}}
}

// SpliceToken inserts tok at col of the row's current tokenization.
func (m *Memory) SpliceToken(row, col int, tok Token) error {
	if row < 0 || row >= len(m.lines) {
		return fmt.Errorf("row %d outside document", row)
	}
	toks, err := SpliceTokens(m.RowTokens(row), col, tok)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	m.tokens[row] = toks
	return nil
}

func (m *Memory) InvalidateRow(row int) { delete(m.tokens, row) }

func (m *Memory) RenderRow(row int) { m.renders[row]++ }

// RenderedRow joins the row's tokens, previews included.
func (m *Memory) RenderedRow(row int) string {
	var b strings.Builder
	for _, t := range m.RowTokens(row) {
		b.WriteString(t.Text)
	}
	return b.String()
}

func (m *Memory) Renders(row int) int { return m.renders[row] }

func (m *Memory) AddLineWidget(row int, w *Widget) WidgetID {
	id := WidgetID(m.id())
	m.widgets[id] = LineWidget{Row: row, Widget: w}
	return id
}

func (m *Memory) RemoveLineWidget(id WidgetID) { delete(m.widgets, id) }

func (m *Memory) ShowGhostText(pos types.Position, text string) {
	m.ghost = &Ghost{Pos: pos, Text: text}
}

func (m *Memory) ClearGhostText() { m.ghost = nil }

// GhostText returns the ghost overlay, if any.
func (m *Memory) GhostText() (Ghost, bool) {
	if m.ghost == nil {
		return Ghost{}, false
	}
	return *m.ghost, true
}

// ScreenToDocument treats the screen as a grid of one cell per byte.
func (m *Memory) ScreenToDocument(x, y int) types.Position {
	return types.Position{Row: y, Column: x}
}

func (m *Memory) ShowStatus(kind types.StatusKind, message string) {
	m.statuses = append(m.statuses, Status{Kind: kind, Message: message})
}

func (m *Memory) Statuses() []Status { return append([]Status(nil), m.statuses...) }

// LastStatus returns the most recent status, or a zero Status.
func (m *Memory) LastStatus() Status {
	if len(m.statuses) == 0 {
		return Status{}
	}
	return m.statuses[len(m.statuses)-1]
}

func (m *Memory) Highlights() []Highlight {
	out := make([]Highlight, 0, len(m.highlights))
	for _, h := range m.highlights {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Range.Start != out[j].Range.Start {
			return out[i].Range.Start.Before(out[j].Range.Start)
		}
		return out[i].Class < out[j].Class
	})
	return out
}

func (m *Memory) GutterMarkers() []GutterMarker {
	out := make([]GutterMarker, 0, len(m.gutter))
	for _, g := range m.gutter {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Class < out[j].Class
	})
	return out
}

func (m *Memory) Widgets() []LineWidget {
	out := make([]LineWidget, 0, len(m.widgets))
	for _, w := range m.widgets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

// SplicedRows lists rows whose tokenization carries previews.
func (m *Memory) SplicedRows() []int {
	rows := make([]int, 0, len(m.tokens))
	for row := range m.tokens {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	return rows
}

func (m *Memory) LiveAnchors() int { return len(m.anchors) }

// LiveArtifacts counts everything a renderer can leave behind.
func (m *Memory) LiveArtifacts() int {
	n := len(m.highlights) + len(m.gutter) + len(m.widgets) + len(m.tokens)
	if m.ghost != nil {
		n++
	}
	return n
}
