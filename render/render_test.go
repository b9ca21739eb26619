package render

import (
	"testing"

	"nextedit/anchor"
	"nextedit/assert"
	"nextedit/editor"
	"nextedit/text"
	"nextedit/types"
)

type fixture struct {
	surface  *editor.Memory
	tracker  *anchor.Tracker
	renderer *Renderer
	applied  []*Suggestion
	dropped  []*Suggestion
}

func newFixture(doc string) *fixture {
	f := &fixture{surface: editor.NewMemory(editor.Document{ID: "doc", Path: "x.go"}, doc)}
	f.tracker = anchor.NewTracker(f.surface)
	f.renderer = NewRenderer(f.surface, f.tracker, Actions{
		Apply:   func(s *Suggestion) { f.applied = append(f.applied, s) },
		Discard: func(s *Suggestion) { f.dropped = append(f.dropped, s) },
	})
	return f
}

func (f *fixture) suggest(t *testing.T, rng types.Range, proposed string) *Suggestion {
	t.Helper()
	original, err := text.RangeText(f.surface, rng)
	assert.NoError(t, err, "RangeText")
	typ, set := text.Classify(rng, original, proposed)
	return &Suggestion{
		Completion: &types.Completion{
			InsertText:  proposed,
			DisplayText: proposed,
			Range:       rng,
			Source:      types.SourceNextEdit,
		},
		Type:     typ,
		Deltas:   set,
		Anchors:  f.tracker.CreateRange(rng),
		Original: original,
	}
}

func TestRender_Deletion(t *testing.T) {
	f := newFixture("foo bar")
	s := f.suggest(t, types.NewRange(0, 0, 0, 7), "foo")
	assert.Equal(t, types.SuggestionDeletion, s.Type, "type")

	h := f.renderer.Render(s)
	assert.True(t, h.Revealed(), "revealed")

	hl := f.surface.Highlights()
	assert.Len(t, 1, hl, "highlights")
	assert.Equal(t, ClassDeletion, hl[0].Class, "class")
	assert.Equal(t, editor.HighlightText, hl[0].Kind, "kind")
	assert.Equal(t, types.NewRange(0, 3, 0, 7), hl[0].Range, "deleted span")

	gm := f.surface.GutterMarkers()
	assert.Len(t, 1, gm, "gutter markers")
	assert.Equal(t, GutterDeletion, gm[0].Class, "gutter class")

	assert.True(t, h.HitTest(types.Position{Row: 0, Column: 5}), "click on deletion")
	assert.False(t, h.HitTest(types.Position{Row: 0, Column: 1}), "click on kept text")

	h.Teardown()
	assert.Equal(t, 0, h.Live(), "handle live after teardown")
	assert.Equal(t, 0, f.surface.LiveArtifacts(), "surface artifacts after teardown")
	assert.Equal(t, 2, f.tracker.Live(), "only the suggestion's own anchors remain")
}

func TestRender_InsertionSplicesPreview(t *testing.T) {
	f := newFixture("  f()")
	s := f.suggest(t, types.NewRange(0, 2, 0, 5), "f(x, y)")
	assert.Equal(t, types.SuggestionInsertion, s.Type, "type")

	h := f.renderer.Render(s)
	assert.Equal(t, "  f(x, y)", f.surface.RenderedRow(0), "rendered row")
	assert.Equal(t, "  f()", f.surface.Line(0), "document untouched")
	assert.GreaterOrEqual(t, f.surface.Renders(0), 1, "row re-rendered")

	gm := f.surface.GutterMarkers()
	assert.Len(t, 1, gm, "gutter markers")
	assert.Equal(t, GutterInsertion, gm[0].Class, "gutter class")

	h.Teardown()
	assert.Equal(t, "  f()", f.surface.RenderedRow(0), "preview removed")
	assert.Equal(t, 0, f.surface.LiveArtifacts(), "artifacts")
}

func TestRender_InsertionPreviewFollowsRowShift(t *testing.T) {
	f := newFixture("top\n  f()")
	s := f.suggest(t, types.NewRange(1, 2, 1, 5), "f(x, y)")
	h := f.renderer.Render(s)
	assert.Equal(t, "  f(x, y)", f.surface.RenderedRow(1), "rendered row")

	_, err := f.surface.Replace(types.NewRange(0, 0, 0, 0), "new\n")
	assert.NoError(t, err, "Replace")
	assert.Equal(t, "  f(x, y)", f.surface.RenderedRow(2), "preview moved down")

	h.Teardown()
	assert.Equal(t, "  f()", f.surface.RenderedRow(2), "preview removed from the moved row")
	assert.Equal(t, 0, f.surface.LiveArtifacts(), "artifacts")
}

func TestRender_InsertionSeveralOnOneRow(t *testing.T) {
	f := newFixture("(a)")
	s := f.suggest(t, types.NewRange(0, 0, 0, 3), "(x, a, b)")
	assert.Equal(t, types.SuggestionInsertion, s.Type, "type")

	h := f.renderer.Render(s)
	assert.Equal(t, "(x, a, b)", f.surface.RenderedRow(0), "all previews in place")
	h.Teardown()
	assert.Equal(t, "(a)", f.surface.RenderedRow(0), "restored")
}

func TestRender_Replacement(t *testing.T) {
	f := newFixture("foo")
	s := f.suggest(t, types.NewRange(0, 0, 0, 3), "bar")
	assert.Equal(t, types.SuggestionReplacement, s.Type, "type")

	h := f.renderer.Render(s)
	hl := f.surface.Highlights()
	assert.Len(t, 1, hl, "highlights")
	assert.Equal(t, ClassReplacementDeletion, hl[0].Class, "class")
	assert.Equal(t, "foobar", f.surface.RenderedRow(0), "deleted text followed by preview")
	assert.Equal(t, GutterReplacement, f.surface.GutterMarkers()[0].Class, "gutter class")

	h.Teardown()
	assert.Equal(t, 0, f.surface.LiveArtifacts(), "artifacts")
}

func TestRender_MixedBounds(t *testing.T) {
	f := newFixture("a b c")
	s := f.suggest(t, types.NewRange(0, 0, 0, 5), "x b y")
	assert.Equal(t, types.SuggestionMixed, s.Type, "type")

	h := f.renderer.Render(s)

	var bounds []editor.Highlight
	for _, hl := range f.surface.Highlights() {
		if hl.Kind == editor.HighlightFullLine {
			bounds = append(bounds, hl)
		}
	}
	assert.Len(t, 1, bounds, "bounding highlight")
	assert.Equal(t, ClassReplacementBounds, bounds[0].Class, "bounds class")
	assert.Equal(t, types.NewRange(0, 0, 0, 0), bounds[0].Range, "bounds rows")
	assert.Equal(t, GutterReplacement, f.surface.GutterMarkers()[0].Class, "gutter follows delta mix")

	h.Teardown()
	assert.Equal(t, 0, f.surface.LiveArtifacts(), "artifacts")
}

func TestRender_DiffWidget(t *testing.T) {
	f := newFixture("a\nb")
	s := f.suggest(t, types.NewRange(0, 0, 1, 1), "a\nc\nd")
	assert.Equal(t, types.SuggestionDiff, s.Type, "type")

	h := f.renderer.Render(s)
	ws := f.surface.Widgets()
	assert.Len(t, 1, ws, "widgets")
	assert.Equal(t, 1, ws[0].Row, "widget at end row")
	assert.Equal(t, "a\nb", ws[0].Widget.Original, "original pane")
	assert.Equal(t, "a\nc\nd", ws[0].Widget.Proposed, "proposed pane")

	gm := f.surface.GutterMarkers()
	assert.Len(t, 2, gm, "one marker per row")
	assert.Equal(t, GutterHighlight, gm[0].Class, "first row class")
	assert.Equal(t, GutterBackground, gm[1].Class, "other rows")

	ws[0].Widget.OnApply()
	ws[0].Widget.OnDiscard()
	assert.Len(t, 1, f.applied, "apply callback")
	assert.Len(t, 1, f.dropped, "discard callback")

	h.Teardown()
	assert.Equal(t, 0, f.surface.LiveArtifacts(), "artifacts")
}

func TestRender_GutterOnlyThenReveal(t *testing.T) {
	f := newFixture("one\ntwo\nthree")
	s := f.suggest(t, types.NewRange(0, 0, 2, 5), "one\n\nthree")
	assert.Equal(t, types.SuggestionDeletion, s.Type, "type")

	h := f.renderer.RenderGutterOnly(s)
	assert.False(t, h.Revealed(), "not revealed")
	assert.Len(t, 3, f.surface.GutterMarkers(), "gutter markers")
	assert.Len(t, 0, f.surface.Highlights(), "no highlights yet")
	assert.True(t, h.CoversRow(1), "covers middle row")
	assert.False(t, h.CoversRow(3), "past the range")

	f.renderer.Reveal(h)
	assert.True(t, h.Revealed(), "revealed")
	assert.Len(t, 1, f.surface.Highlights(), "deletion highlight")

	h.Unreveal()
	assert.False(t, h.Revealed(), "unrevealed")
	assert.Len(t, 0, f.surface.Highlights(), "highlights removed")
	assert.Len(t, 3, f.surface.GutterMarkers(), "gutter kept")

	h.Teardown()
	h.Teardown()
	assert.Equal(t, 0, f.surface.LiveArtifacts(), "artifacts")
}

func TestRender_GhostText(t *testing.T) {
	f := newFixture("fmt.Pri")
	s := f.suggest(t, types.NewRange(0, 7, 0, 7), "ntln()")
	s.Completion.Source = types.SourceInlineCompletion
	assert.Equal(t, types.SuggestionGhostText, s.Type, "type")

	h := f.renderer.Render(s)
	g, ok := f.surface.GhostText()
	assert.True(t, ok, "ghost shown")
	assert.Equal(t, "ntln()", g.Text, "ghost text")
	assert.Equal(t, types.Position{Row: 0, Column: 7}, g.Pos, "ghost position")
	assert.Len(t, 0, f.surface.GutterMarkers(), "inline completions have no gutter")

	h.SetGhostText("ln()")
	g, _ = f.surface.GhostText()
	assert.Equal(t, "ln()", g.Text, "ghost updated")

	h.Teardown()
	_, ok = f.surface.GhostText()
	assert.False(t, ok, "ghost cleared")
	assert.Equal(t, 0, h.Live(), "live")
}

func TestRender_NilHandle(t *testing.T) {
	var h *Handle
	h.Teardown()
	h.Unreveal()
	assert.Equal(t, 0, h.Live(), "nil live")
	assert.False(t, h.HitTest(types.Position{}), "nil hit test")
}

func TestGutterClass(t *testing.T) {
	tests := []struct {
		name string
		typ  types.SuggestionType
		set  *types.EditDeltaSet
		want string
	}{
		{"deletion", types.SuggestionDeletion, &types.EditDeltaSet{HasDeletions: true}, GutterDeletion},
		{"insertion", types.SuggestionInsertion, &types.EditDeltaSet{HasAdditions: true}, GutterInsertion},
		{"replacement", types.SuggestionReplacement, &types.EditDeltaSet{HasAdditions: true, HasDeletions: true}, GutterReplacement},
		{"mixed deletions", types.SuggestionMixed, &types.EditDeltaSet{HasDeletions: true}, GutterDeletion},
		{"ghost", types.SuggestionGhostText, nil, GutterHighlight},
		{"diff", types.SuggestionDiff, &types.EditDeltaSet{HasAdditions: true, HasDeletions: true}, GutterHighlight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GutterClass(tt.typ, tt.set), "gutter class")
		})
	}
}
