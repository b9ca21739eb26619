// Package render draws suggestions into an editor surface.
package render

import (
	"sort"

	"nextedit/anchor"
	"nextedit/editor"
	"nextedit/logger"
	"nextedit/text"
	"nextedit/types"
)

// Decoration classes understood by the editor theme.
const (
	ClassDeletion            = "next-edit-suggestion-deletion"
	ClassReplacementDeletion = "replacement_deletion"
	ClassInsertionPreview    = "insertion_preview"
	ClassHighlight           = "next-edit-suggestion-highlight"

	ClassDeletionBounds    = "deletion-bounds"
	ClassInsertionBounds   = "insertion-bounds"
	ClassReplacementBounds = "replacement-bounds"

	GutterDeletion    = "next-edit-gutter-deletion"
	GutterInsertion   = "next-edit-gutter-insertion"
	GutterReplacement = "next-edit-gutter-replacement"
	GutterHighlight   = "next-edit-gutter-highlight"
	GutterBackground  = "background"
)

// Suggestion is everything the renderer needs to draw one proposal.
type Suggestion struct {
	Completion *types.Completion
	Type       types.SuggestionType
	Deltas     *types.EditDeltaSet
	Anchors    *anchor.Range
	// Original is the document text the proposal replaces.
	Original string
}

// Actions are invoked from the DIFF widget.
type Actions struct {
	Apply   func(*Suggestion)
	Discard func(*Suggestion)
}

type Renderer struct {
	surface editor.Surface
	tracker *anchor.Tracker
	actions Actions
}

func NewRenderer(surface editor.Surface, tracker *anchor.Tracker, actions Actions) *Renderer {
	return &Renderer{surface: surface, tracker: tracker, actions: actions}
}

// Render draws s in full.
func (r *Renderer) Render(s *Suggestion) *Handle {
	defer logger.Trace("render.Render")()

	h := r.RenderGutterOnly(s)
	r.Reveal(h)
	return h
}

// RenderGutterOnly registers the gutter markers for s and nothing else.
// Inline completions have no gutter presence.
func (r *Renderer) RenderGutterOnly(s *Suggestion) *Handle {
	h := &Handle{surface: r.surface, tracker: r.tracker, suggestion: s}
	if s.Completion.Source != types.SourceNextEdit {
		return h
	}

	rng := s.Anchors.Range()
	class := GutterClass(s.Type, s.Deltas)
	for row := rng.Start.Row; row <= rng.End.Row; row++ {
		c := GutterBackground
		if row == rng.Start.Row {
			c = class
		}
		h.gutters = append(h.gutters, r.surface.AddGutterMarker(row, c))
		h.gutterRows = append(h.gutterRows, row)
	}
	return h
}

// Reveal adds the inline artifacts to a gutter-only handle.
func (r *Renderer) Reveal(h *Handle) {
	if h == nil || h.torn || h.revealed {
		return
	}
	s := h.suggestion
	base := s.Anchors.Start.Position()

	switch s.Type {
	case types.SuggestionGhostText:
		h.SetGhostText(s.Completion.DisplayText)
	case types.SuggestionDeletion:
		for _, d := range s.Deltas.Deltas {
			r.drawDeletion(h, base, d, ClassDeletion)
		}
	case types.SuggestionInsertion:
		r.drawAdditions(h, base, s.Deltas.Deltas)
	case types.SuggestionReplacement:
		for _, d := range s.Deltas.Deltas {
			if d.Type == types.DeltaDeletion {
				r.drawDeletion(h, base, d, ClassReplacementDeletion)
			}
		}
		r.drawAdditions(h, base, s.Deltas.Deltas)
	case types.SuggestionMixed:
		r.drawMixed(h, base)
	case types.SuggestionDiff:
		r.drawDiff(h)
	}
	h.revealed = true
}

func (r *Renderer) drawDeletion(h *Handle, base types.Position, d *types.EditDelta, class string) {
	rng := text.OffsetRangeToDocument(base, d.Range)
	h.markers = append(h.markers, r.surface.AddHighlight(rng, class, editor.HighlightText))
	h.hits = append(h.hits, r.tracker.CreateRange(rng))
}

type splice struct {
	pos  types.Position
	text string
}

// drawAdditions splices one preview token per addition. Splices on a row
// go right to left so the columns of the remaining ones stay valid.
func (r *Renderer) drawAdditions(h *Handle, base types.Position, deltas []*types.EditDelta) {
	var splices []splice
	for _, d := range deltas {
		if d.Type != types.DeltaAddition {
			continue
		}
		splices = append(splices, splice{pos: text.OffsetRangeToDocument(base, d.Range).Start, text: d.Text})
	}
	sort.SliceStable(splices, func(i, j int) bool {
		if splices[i].pos.Row != splices[j].pos.Row {
			return splices[i].pos.Row < splices[j].pos.Row
		}
		return splices[i].pos.Column > splices[j].pos.Column
	})

	for _, sp := range splices {
		tok := editor.Token{Text: sp.text, Class: ClassInsertionPreview, Preview: true}
		if err := r.surface.SpliceToken(sp.pos.Row, sp.pos.Column, tok); err != nil {
			logger.Warn("splice preview at %s: %v", sp.pos, err)
			continue
		}
		end := types.Position{Row: sp.pos.Row, Column: sp.pos.Column + len(sp.text)}
		hit := r.tracker.CreateRange(types.Range{Start: sp.pos, End: end})
		h.hits = append(h.hits, hit)
		h.addRow(sp.pos.Row, hit)
	}
	for _, p := range h.rows {
		r.surface.RenderRow(p.row)
	}
}

func (r *Renderer) drawMixed(h *Handle, base types.Position) {
	s := h.suggestion
	minRow, maxRow := -1, -1
	for _, d := range s.Deltas.Deltas {
		rng := text.OffsetRangeToDocument(base, d.Range)
		if minRow < 0 || rng.Start.Row < minRow {
			minRow = rng.Start.Row
		}
		if rng.End.Row > maxRow {
			maxRow = rng.End.Row
		}
		if d.Type == types.DeltaDeletion {
			r.drawDeletion(h, base, d, ClassDeletion)
		}
	}
	r.drawAdditions(h, base, s.Deltas.Deltas)

	if minRow < 0 {
		return
	}
	bounds := types.NewRange(minRow, 0, maxRow, 0)
	h.markers = append(h.markers, r.surface.AddHighlight(bounds, BoundsClass(s.Deltas), editor.HighlightFullLine))
}

func (r *Renderer) drawDiff(h *Handle) {
	s := h.suggestion
	rng := s.Anchors.Range()
	h.markers = append(h.markers, r.surface.AddHighlight(rng, ClassHighlight, editor.HighlightText))

	w := &editor.Widget{
		Original: s.Original,
		Proposed: s.Completion.InsertText,
		OnApply: func() {
			if r.actions.Apply != nil {
				r.actions.Apply(s)
			}
		},
		OnDiscard: func() {
			if r.actions.Discard != nil {
				r.actions.Discard(s)
			}
		},
	}
	h.widgets = append(h.widgets, r.surface.AddLineWidget(rng.End.Row, w))
}

// GutterClass picks the gutter marker class for the first suggestion row.
func GutterClass(t types.SuggestionType, set *types.EditDeltaSet) string {
	switch t {
	case types.SuggestionDeletion:
		return GutterDeletion
	case types.SuggestionInsertion:
		return GutterInsertion
	case types.SuggestionReplacement:
		return GutterReplacement
	case types.SuggestionMixed:
		switch {
		case set.HasDeletions && set.HasAdditions:
			return GutterReplacement
		case set.HasDeletions:
			return GutterDeletion
		case set.HasAdditions:
			return GutterInsertion
		}
	}
	return GutterHighlight
}

// BoundsClass picks the full-line bounding class for a MIXED suggestion.
func BoundsClass(set *types.EditDeltaSet) string {
	switch {
	case set.HasDeletions && set.HasAdditions:
		return ClassReplacementBounds
	case set.HasDeletions:
		return ClassDeletionBounds
	default:
		return ClassInsertionBounds
	}
}
