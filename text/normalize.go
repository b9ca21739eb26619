package text

import (
	"fmt"
	"strings"

	"nextedit/types"
)

// LineReader returns the text of a document row.
type LineReader interface {
	LineCount() int
	Line(row int) string
}

func readLine(doc LineReader, row int) (string, error) {
	if row < 0 || row >= doc.LineCount() {
		return "", fmt.Errorf("row %d out of range [0, %d)", row, doc.LineCount())
	}
	return doc.Line(row), nil
}

// PostProcess drops anything from the first closing code fence onwards.
func PostProcess(text string) string {
	if i := strings.Index(text, CodeFence); i >= 0 {
		return text[:i]
	}
	return text
}

// NormalizeCompletion trims the parts of an inline completion that already
// exist in the document: the prefix matching the text at the range start
// and, for single-line ranges, the suffix matching the text before the
// range end. A completion that is entirely present collapses to an empty
// insert at cursor. The input is not modified.
func NormalizeCompletion(c *types.Completion, doc LineReader, cursor types.Position) (*types.Completion, error) {
	startLine, err := readLine(doc, c.Range.Start.Row)
	if err != nil {
		return nil, err
	}
	text := c.InsertText
	col := c.Range.Start.Column
	if col > len(startLine) {
		return nil, fmt.Errorf("column %d past end of row %d", col, c.Range.Start.Row)
	}

	lhs := 0
	for lhs < len(text) && col+lhs < len(startLine) && text[lhs] == startLine[col+lhs] {
		lhs++
	}

	rhs := 0
	if !c.Range.IsMultiLine() {
		endCol := c.Range.End.Column
		if endCol > len(startLine) {
			return nil, fmt.Errorf("column %d past end of row %d", endCol, c.Range.End.Row)
		}
		for rhs < len(text) && endCol-rhs > 0 && text[len(text)-rhs-1] == startLine[endCol-rhs-1] {
			rhs++
		}
	}

	out := c.Clone()
	if lhs >= len(text)-rhs {
		out.InsertText = ""
		out.Range = types.Range{Start: cursor, End: cursor}
	} else {
		out.InsertText = text[lhs : len(text)-rhs]
		out.Range.Start.Column += lhs
		out.Range.End.Column -= rhs
	}
	out.DisplayText = out.InsertText
	return out, nil
}

// NormalizeSuggestion widens a multi-line next-edit range to whole lines
// and drops trailing newlines that would only rewrite a line break the
// document already has.
func NormalizeSuggestion(c *types.Completion, doc LineReader) (*types.Completion, error) {
	out := c.Clone()

	if out.Range.IsMultiLine() {
		startLine, err := readLine(doc, out.Range.Start.Row)
		if err != nil {
			return nil, err
		}
		endLine, err := readLine(doc, out.Range.End.Row)
		if err != nil {
			return nil, err
		}
		if out.Range.Start.Column > len(startLine) || out.Range.End.Column > len(endLine) {
			return nil, fmt.Errorf("range %s outside document", out.Range)
		}

		out.InsertText = startLine[:out.Range.Start.Column] + out.InsertText + endLine[out.Range.End.Column:]
		out.Range.Start.Column = 0
		out.Range.End.Column = len(endLine)
	}

	for out.Range.End.Row > out.Range.Start.Row &&
		out.Range.End.Column == 0 &&
		strings.HasSuffix(out.InsertText, "\n") {
		out.InsertText = out.InsertText[:len(out.InsertText)-1]
		out.Range.End.Row--
		line, err := readLine(doc, out.Range.End.Row)
		if err != nil {
			return nil, err
		}
		out.Range.End.Column = len(line)
	}

	out.DisplayText = out.InsertText
	return out, nil
}

// RangeText returns the document text covered by r.
func RangeText(doc LineReader, r types.Range) (string, error) {
	if r.Start.Row == r.End.Row {
		line, err := readLine(doc, r.Start.Row)
		if err != nil {
			return "", err
		}
		if r.Start.Column > r.End.Column || r.End.Column > len(line) {
			return "", fmt.Errorf("range %s outside document", r)
		}
		return line[r.Start.Column:r.End.Column], nil
	}

	var b strings.Builder
	for row := r.Start.Row; row <= r.End.Row; row++ {
		line, err := readLine(doc, row)
		if err != nil {
			return "", err
		}
		switch row {
		case r.Start.Row:
			if r.Start.Column > len(line) {
				return "", fmt.Errorf("range %s outside document", r)
			}
			b.WriteString(line[r.Start.Column:])
			b.WriteByte('\n')
		case r.End.Row:
			if r.End.Column > len(line) {
				return "", fmt.Errorf("range %s outside document", r)
			}
			b.WriteString(line[:r.End.Column])
		default:
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
