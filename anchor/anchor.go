// Package anchor keeps document positions valid while the document is
// edited around them.
package anchor

import (
	"nextedit/editor"
	"nextedit/types"
)

// Anchor is a tracked document position. After Detach it keeps reporting
// the last position it saw.
type Anchor struct {
	id       editor.AnchorID
	tracker  *Tracker
	last     types.Position
	detached bool
}

// Position returns the anchor's current position.
func (a *Anchor) Position() types.Position {
	if a == nil {
		return types.Position{}
	}
	if a.detached {
		return a.last
	}
	a.last = a.tracker.surface.AnchorPosition(a.id)
	return a.last
}

func (a *Anchor) Detached() bool { return a == nil || a.detached }

// Tracker creates and releases anchors on a surface and counts the live ones.
type Tracker struct {
	surface editor.Surface
	live    int
}

func NewTracker(surface editor.Surface) *Tracker {
	return &Tracker{surface: surface}
}

// CreateAnchor anchors pos. With insertRight set, text inserted exactly at
// the anchor ends up after it and the anchor does not move.
func (t *Tracker) CreateAnchor(pos types.Position, insertRight bool) *Anchor {
	t.live++
	return &Anchor{
		id:      t.surface.CreateAnchor(pos, insertRight),
		tracker: t,
		last:    pos,
	}
}

// Detach releases a. Detaching twice is a no-op.
func (t *Tracker) Detach(a *Anchor) {
	if a == nil || a.detached {
		return
	}
	a.Position()
	t.surface.DetachAnchor(a.id)
	a.detached = true
	t.live--
}

// Move repositions a live anchor.
func (t *Tracker) Move(a *Anchor, pos types.Position) {
	if a == nil || a.detached {
		return
	}
	t.surface.MoveAnchor(a.id, pos)
	a.last = pos
}

// Live is the number of anchors created and not yet detached.
func (t *Tracker) Live() int { return t.live }

// Range is a pair of anchors bounding a span that should grow when text is
// typed at either of its ends.
type Range struct {
	Start *Anchor
	End   *Anchor
}

// CreateRange anchors r: the start anchor keeps its place when text is
// inserted at it and the end anchor is pushed past such text.
func (t *Tracker) CreateRange(r types.Range) *Range {
	return &Range{
		Start: t.CreateAnchor(r.Start, true),
		End:   t.CreateAnchor(r.End, false),
	}
}

// Range reports the live bounds.
func (r *Range) Range() types.Range {
	if r == nil {
		return types.Range{}
	}
	return types.Range{Start: r.Start.Position(), End: r.End.Position()}
}

// Contains reports whether p lies within the anchored bounds.
func (r *Range) Contains(p types.Position) bool {
	if r == nil {
		return false
	}
	return r.Range().Contains(p)
}

// Detach releases both anchors.
func (r *Range) Detach() {
	if r == nil {
		return
	}
	r.Start.tracker.Detach(r.Start)
	r.End.tracker.Detach(r.End)
}

// MoveTo repositions both anchors.
func (r *Range) MoveTo(rng types.Range) {
	if r == nil {
		return
	}
	r.Start.tracker.Move(r.Start, rng.Start)
	r.End.tracker.Move(r.End, rng.End)
}
