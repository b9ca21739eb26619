package editor

import (
	"fmt"
	"strings"

	"nextedit/types"
)

// EndOf is the position just past text when it is inserted at start.
func EndOf(start types.Position, text string) types.Position {
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return types.Position{Row: start.Row + strings.Count(text, "\n"), Column: len(text) - i - 1}
	}
	return types.Position{Row: start.Row, Column: start.Column + len(text)}
}

// SpliceLines returns lines with the text in r replaced. r must lie inside
// lines.
func SpliceLines(lines []string, r types.Range, text string) []string {
	prefix := lines[r.Start.Row][:r.Start.Column]
	suffix := lines[r.End.Row][r.End.Column:]
	inserted := strings.Split(prefix+text+suffix, "\n")

	out := make([]string, 0, len(lines)-(r.End.Row-r.Start.Row)+len(inserted)-1)
	out = append(out, lines[:r.Start.Row]...)
	out = append(out, inserted...)
	out = append(out, lines[r.End.Row+1:]...)
	return out
}

// ShiftRows re-keys row-indexed state across an edit of r whose new text
// ends at newEnd. When the edit changes the row count, entries on the rows
// it spans are returned as dropped and entries below it move with the text.
func ShiftRows[V any](rows map[int]V, r types.Range, newEnd types.Position) (map[int]V, []V) {
	delta := newEnd.Row - r.End.Row
	if delta == 0 {
		return rows, nil
	}
	var dropped []V
	out := make(map[int]V, len(rows))
	for row, v := range rows {
		switch {
		case row < r.Start.Row:
			out[row] = v
		case row > r.End.Row:
			out[row+delta] = v
		default:
			dropped = append(dropped, v)
		}
	}
	return out, dropped
}

// SpliceTokens inserts tok at col, splitting the token that spans col.
// Columns count previously spliced tokens too.
func SpliceTokens(toks []Token, col int, tok Token) ([]Token, error) {
	out := make([]Token, 0, len(toks)+2)
	offset := 0
	placed := false
	for _, t := range toks {
		if !placed && col >= offset && col <= offset+len(t.Text) {
			cut := col - offset
			if cut > 0 {
				out = append(out, Token{Text: t.Text[:cut], Class: t.Class, Preview: t.Preview})
			}
			out = append(out, tok)
			if cut < len(t.Text) {
				out = append(out, Token{Text: t.Text[cut:], Class: t.Class, Preview: t.Preview})
			}
			placed = true
		} else {
			out = append(out, t)
		}
		offset += len(t.Text)
	}
	if !placed {
		return nil, fmt.Errorf("column %d past end of row", col)
	}
	return out, nil
}

// PreviewColumns maps every preview token of a row to the document column
// it is drawn at, skipping the width of earlier previews.
func PreviewColumns(toks []Token) []int {
	var cols []int
	doc := 0
	for _, t := range toks {
		if t.Preview {
			cols = append(cols, doc)
			continue
		}
		doc += len(t.Text)
	}
	return cols
}
