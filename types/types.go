package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Position is a zero-based (row, column) location in a document.
type Position struct {
	Row    int `json:"line"`
	Column int `json:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Compare returns -1, 0 or 1 ordering p against o in document order.
func (p Position) Compare(o Position) int {
	switch {
	case p.Row < o.Row:
		return -1
	case p.Row > o.Row:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	}
	return 0
}

func (p Position) Before(o Position) bool { return p.Compare(o) < 0 }

// Range is a [Start, End] span of a document. It may be zero-width.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func NewRange(startRow, startCol, endRow, endCol int) Range {
	return Range{Start: Position{startRow, startCol}, End: Position{endRow, endCol}}
}

func (r Range) String() string {
	return fmt.Sprintf("[%s-%s]", r.Start, r.End)
}

func (r Range) IsEmpty() bool { return r.Start == r.End }

func (r Range) IsMultiLine() bool { return r.Start.Row != r.End.Row }

// Contains reports whether p lies within r, both ends inclusive.
func (r Range) Contains(p Position) bool {
	return r.Start.Compare(p) <= 0 && p.Compare(r.End) <= 0
}

// ContainsRightExclusive reports whether p lies within [Start, End).
func (r Range) ContainsRightExclusive(p Position) bool {
	return r.Start.Compare(p) <= 0 && p.Compare(r.End) < 0
}

// SuggestionType selects the rendering strategy for a suggestion.
type SuggestionType int

const (
	SuggestionGhostText SuggestionType = iota
	SuggestionDeletion
	SuggestionInsertion
	SuggestionReplacement
	SuggestionMixed
	SuggestionDiff
)

func (t SuggestionType) String() string {
	switch t {
	case SuggestionGhostText:
		return "GHOST_TEXT"
	case SuggestionDeletion:
		return "DELETION"
	case SuggestionInsertion:
		return "INSERTION"
	case SuggestionReplacement:
		return "REPLACEMENT"
	case SuggestionMixed:
		return "MIXED"
	case SuggestionDiff:
		return "DIFF"
	default:
		return "UNKNOWN"
	}
}

type DeltaType int

const (
	DeltaAddition DeltaType = iota
	DeltaDeletion
)

func (d DeltaType) String() string {
	if d == DeltaAddition {
		return "ADDITION"
	}
	return "DELETION"
}

// EditDelta is one addition or deletion. Range is relative to the start of
// the diffed span, in original-text coordinates.
type EditDelta struct {
	Type  DeltaType
	Range Range
	Text  string // inserted text for additions, removed text for deletions
}

// SingleLine reports whether the delta stays on one line.
func (d *EditDelta) SingleLine() bool {
	if d.Type == DeltaDeletion {
		return !d.Range.IsMultiLine()
	}
	return !strings.Contains(d.Text, "\n")
}

// EditDeltaSet is the ordered delta list for one suggestion.
type EditDeltaSet struct {
	Deltas       []*EditDelta
	HasAdditions bool
	HasDeletions bool
}

func (s *EditDeltaSet) Count(t DeltaType) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, d := range s.Deltas {
		if d.Type == t {
			n++
		}
	}
	return n
}

// CompletionSource identifies which backend produced a completion.
type CompletionSource int

const (
	SourceInlineCompletion CompletionSource = iota
	SourceNextEdit
)

func (s CompletionSource) String() string {
	if s == SourceNextEdit {
		return "next_edit"
	}
	return "inline_completion"
}

// Completion is a backend-issued proposal: replace Range with InsertText.
type Completion struct {
	InsertText string          `json:"insertText"`
	Range      Range           `json:"range"`
	Command    json.RawMessage `json:"command,omitempty"`

	// DisplayText is what the ghost slot still shows; it shrinks as words
	// are accepted or typed.
	DisplayText string           `json:"-"`
	Source      CompletionSource `json:"-"`
}

// Clone returns a shallow copy with its own command bytes.
func (c *Completion) Clone() *Completion {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Command != nil {
		cp.Command = append(json.RawMessage(nil), c.Command...)
	}
	return &cp
}

// CompletionRequest asks for inline completions at a cursor.
type CompletionRequest struct {
	DocumentID  string `json:"documentId"`
	Path        string `json:"path"`
	IsUntitled  bool   `json:"isUntitled"`
	AutoInvoked bool   `json:"autoInvoked"`
	Row         int    `json:"row"`
	Col         int    `json:"col"`
}

type CompletionResult struct {
	Items              []*Completion `json:"items"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
}

// CompletionResponse is the answer to a CompletionRequest. A missing
// Enabled means enabled; only an explicit false disables the document.
type CompletionResponse struct {
	Enabled *bool             `json:"enabled,omitempty"`
	Error   *ServiceError     `json:"error,omitempty"`
	Result  *CompletionResult `json:"result,omitempty"`
}

func (r *CompletionResponse) Disabled() bool {
	return r.Enabled != nil && !*r.Enabled
}

// NESRequest asks for next-edit suggestions at a cursor.
type NESRequest struct {
	DocumentID string `json:"documentId"`
	Path       string `json:"path"`
	IsUntitled bool   `json:"isUntitled"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
}

type NESEdit struct {
	Text    string          `json:"text"`
	Range   Range           `json:"range"`
	Command json.RawMessage `json:"command,omitempty"`
}

type NESResult struct {
	Edits []*NESEdit `json:"edits"`
}

type NESResponse struct {
	Result *NESResult `json:"result,omitempty"`
}

// ToCompletion converts an NES edit into the common Completion shape.
func (e *NESEdit) ToCompletion() *Completion {
	return &Completion{
		InsertText:  e.Text,
		DisplayText: e.Text,
		Range:       e.Range,
		Command:     e.Command,
		Source:      SourceNextEdit,
	}
}

// StatusKind is a user-visible engine status signal.
type StatusKind string

const (
	StatusRequested    StatusKind = "completion_requested"
	StatusReceivedNone StatusKind = "received_none"
	StatusReceivedSome StatusKind = "received_some"
	StatusError        StatusKind = "completion_error"
	StatusCancelled    StatusKind = "completion_cancelled"
	StatusEnabled      StatusKind = "completions_enabled"
	StatusDisabled     StatusKind = "completions_disabled"
)

var (
	// ErrDocumentNotFound means the service has not seen the document yet.
	ErrDocumentNotFound = errors.New("document not found")
	ErrCancelled        = errors.New("request cancelled")
	ErrNoSurface        = errors.New("editor surface not attached")
)

const codeDocumentNotFound = "DOCUMENT_NOT_FOUND"

// ServiceError is an error reported in-band by the Suggestion Service.
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrDocumentNotFound && e.Code == codeDocumentNotFound
}
