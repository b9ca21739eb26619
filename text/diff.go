package text

import (
	"nextedit/editor"
	"nextedit/logger"
	"nextedit/types"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// newDiffer returns a character differ with no time limit, so the same
// input always yields the same minimal edit script.
func newDiffer() *diffmatchpatch.DiffMatchPatch {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return dmp
}

// ComputeDeltas diffs original against proposed character by character.
// Delta ranges are relative to the start of original: deletions cover the
// removed original text, additions are zero-width at the original offset
// where their text goes.
func ComputeDeltas(original, proposed string) *types.EditDeltaSet {
	defer logger.Trace("text.ComputeDeltas")()

	diffs := newDiffer().DiffMain(original, proposed, false)

	set := &types.EditDeltaSet{}
	pos := types.Position{}
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos = editor.EndOf(pos, d.Text)
		case diffmatchpatch.DiffDelete:
			end := editor.EndOf(pos, d.Text)
			set.Deltas = append(set.Deltas, &types.EditDelta{
				Type:  types.DeltaDeletion,
				Range: types.Range{Start: pos, End: end},
				Text:  d.Text,
			})
			set.HasDeletions = true
			pos = end
		case diffmatchpatch.DiffInsert:
			set.Deltas = append(set.Deltas, &types.EditDelta{
				Type:  types.DeltaAddition,
				Range: types.Range{Start: pos, End: pos},
				Text:  d.Text,
			})
			set.HasAdditions = true
		}
	}
	return set
}

// Classify picks the rendering strategy for replacing r (whose current text
// is original) with proposed. The first matching rule wins. The delta set
// is nil for ghost text.
func Classify(r types.Range, original, proposed string) (types.SuggestionType, *types.EditDeltaSet) {
	if r.IsEmpty() {
		return types.SuggestionGhostText, nil
	}

	set := ComputeDeltas(original, proposed)
	return classifyDeltas(set), set
}

func classifyDeltas(set *types.EditDeltaSet) types.SuggestionType {
	allSingleLine := true
	for _, d := range set.Deltas {
		if !d.SingleLine() {
			allSingleLine = false
			break
		}
	}

	if set.HasDeletions && !set.HasAdditions {
		return types.SuggestionDeletion
	}

	if set.HasAdditions && !set.HasDeletions && allSingleLine {
		return types.SuggestionInsertion
	}

	if len(set.Deltas) == 2 && set.Count(types.DeltaDeletion) == 1 && set.Count(types.DeltaAddition) == 1 && allSingleLine {
		return types.SuggestionReplacement
	}

	if allSingleLine {
		return types.SuggestionMixed
	}
	return types.SuggestionDiff
}

// OffsetRangeToDocument maps a delta range relative to base into document
// coordinates. Only positions on the first relative row are shifted by the
// base column.
func OffsetRangeToDocument(base types.Position, rel types.Range) types.Range {
	return types.Range{
		Start: offsetPosition(base, rel.Start),
		End:   offsetPosition(base, rel.End),
	}
}

func offsetPosition(base, rel types.Position) types.Position {
	if rel.Row == 0 {
		return types.Position{Row: base.Row, Column: base.Column + rel.Column}
	}
	return types.Position{Row: base.Row + rel.Row, Column: rel.Column}
}
