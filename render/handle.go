package render

import (
	"nextedit/anchor"
	"nextedit/editor"
	"nextedit/types"
)

// Handle records every artifact drawn for one suggestion so that it can be
// removed exactly. Gutter markers belong to the handle for its whole life;
// the rest are inline artifacts that come and go with reveal.
type Handle struct {
	surface editor.Surface
	tracker *anchor.Tracker

	suggestion *Suggestion

	gutters    []editor.GutterID
	gutterRows []int

	markers  []editor.MarkerID
	rows     []previewRow
	widgets  []editor.WidgetID
	hits     []*anchor.Range
	ghost    bool
	revealed bool
	torn     bool
}

// previewRow is a row carrying preview tokens. at is the preview's hit
// range, which follows the row when edits above it add or remove rows.
type previewRow struct {
	row int
	at  *anchor.Range
}

func (p previewRow) current() int {
	if p.at == nil {
		return p.row
	}
	return p.at.Range().Start.Row
}

func (h *Handle) Suggestion() *Suggestion {
	if h == nil {
		return nil
	}
	return h.suggestion
}

// Revealed reports whether the inline artifacts are on screen.
func (h *Handle) Revealed() bool { return h != nil && h.revealed }

// Live counts the artifacts currently owned by the handle.
func (h *Handle) Live() int {
	if h == nil {
		return 0
	}
	n := len(h.gutters) + len(h.markers) + len(h.rows) + len(h.widgets) + 2*len(h.hits)
	if h.ghost {
		n++
	}
	return n
}

// HitTest reports whether pos falls inside one of the clickable regions.
func (h *Handle) HitTest(pos types.Position) bool {
	if h == nil {
		return false
	}
	for _, r := range h.hits {
		if r.Contains(pos) {
			return true
		}
	}
	return false
}

// CoversRow reports whether the handle has a gutter marker on row.
func (h *Handle) CoversRow(row int) bool {
	if h == nil {
		return false
	}
	for _, r := range h.gutterRows {
		if r == row {
			return true
		}
	}
	return false
}

// SetGhostText redraws the ghost overlay with text at the suggestion's
// anchored start. An empty text clears it.
func (h *Handle) SetGhostText(text string) {
	if h == nil || h.torn || h.suggestion.Type != types.SuggestionGhostText {
		return
	}
	if text == "" {
		if h.ghost {
			h.surface.ClearGhostText()
			h.ghost = false
		}
		return
	}
	h.surface.ShowGhostText(h.suggestion.Anchors.Start.Position(), text)
	h.ghost = true
}

// Unreveal removes the inline artifacts and keeps the gutter markers.
func (h *Handle) Unreveal() {
	if h == nil {
		return
	}
	for _, id := range h.markers {
		h.surface.RemoveHighlight(id)
	}
	h.markers = nil

	for _, p := range h.rows {
		row := p.current()
		h.surface.InvalidateRow(row)
		h.surface.RenderRow(row)
	}
	h.rows = nil

	for _, id := range h.widgets {
		h.surface.RemoveLineWidget(id)
	}
	h.widgets = nil

	for _, r := range h.hits {
		r.Detach()
	}
	h.hits = nil

	if h.ghost {
		h.surface.ClearGhostText()
		h.ghost = false
	}
	h.revealed = false
}

// Teardown removes everything the handle drew. It is safe to call more
// than once and on a nil handle.
func (h *Handle) Teardown() {
	if h == nil || h.torn {
		return
	}
	h.Unreveal()
	for _, id := range h.gutters {
		h.surface.RemoveGutterMarker(id)
	}
	h.gutters = nil
	h.gutterRows = nil
	h.torn = true
}

func (h *Handle) addRow(row int, at *anchor.Range) {
	for _, p := range h.rows {
		if p.row == row {
			return
		}
	}
	h.rows = append(h.rows, previewRow{row: row, at: at})
}
