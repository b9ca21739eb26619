// Package buffer adapts a Neovim buffer to editor.Surface. Anchors,
// highlights, gutter signs, previews and ghost text are extmarks in one
// namespace; document text, cursor and view are cached and refreshed by Sync.
package buffer

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"nextedit/editor"
	"nextedit/logger"
	"nextedit/types"

	"github.com/google/uuid"
	"github.com/neovim/go-client/nvim"
)

var errNoClient = errors.New("nvim client not set")

var _ editor.Surface = (*NvimSurface)(nil)

const (
	ghostGroup       = "NextEditGhost"
	widgetAddGroup   = "NextEditDiffAdd"
	widgetDelGroup   = "NextEditDiffDelete"
	statusPattern    = "NextEditStatus"
	widgetPattern    = "NextEditWidget"
	highlightPrefix  = "NextEdit"
	defaultSignGlyph = "│"
)

// signGlyphs maps gutter classes to sign text.
var signGlyphs = map[string]string{
	"next-edit-gutter-deletion":    "-",
	"next-edit-gutter-insertion":   "+",
	"next-edit-gutter-replacement": "~",
}

type Config struct {
	NsID int
}

// NvimSurface is the editor.Surface of one Neovim buffer.
type NvimSurface struct {
	client *nvim.Nvim
	config Config
	id     nvim.Buffer
	doc    editor.Document

	mu        sync.Mutex
	lines     []string
	cursor    types.Position
	selection bool
	popup     bool
	tick      int
	topline   int // 0-indexed first visible row
	leftcol   int

	insertRight map[editor.AnchorID]bool
	lastPos     map[editor.AnchorID]types.Position
	tokens      map[int][]editor.Token
	previews    map[int][]int
	widgets     map[editor.WidgetID]*editor.Widget
	ghost       int
}

// New creates the surface of buffer id. Buffers without a path get a
// random document id.
func New(client *nvim.Nvim, id nvim.Buffer, path string, config Config) *NvimSurface {
	docID := path
	if path == "" {
		docID = "untitled:" + uuid.NewString()
	}
	return &NvimSurface{
		client:      client,
		config:      config,
		id:          id,
		doc:         editor.Document{ID: docID, Path: path},
		lines:       []string{""},
		insertRight: make(map[editor.AnchorID]bool),
		lastPos:     make(map[editor.AnchorID]types.Position),
		tokens:      make(map[int][]editor.Token),
		previews:    make(map[int][]int),
		widgets:     make(map[editor.WidgetID]*editor.Widget),
	}
}

// Buffer returns the Neovim buffer handle.
func (b *NvimSurface) Buffer() nvim.Buffer { return b.id }

// lua runs code with args in a single round trip.
func (b *NvimSurface) lua(result any, code string, args ...any) error {
	if b.client == nil {
		return errNoClient
	}
	batch := b.client.NewBatch()
	batch.ExecLua(code, result, args...)
	return batch.Execute()
}

const snapshotLua = `
local buf = ...
local win = vim.api.nvim_get_current_win()
local cur = vim.api.nvim_win_get_cursor(win)
local view = vim.fn.winsaveview()
local mode = vim.api.nvim_get_mode().mode
return {
	lines = vim.api.nvim_buf_get_lines(buf, 0, -1, false),
	row = cur[1] - 1,
	col = cur[2],
	tick = vim.api.nvim_buf_get_changedtick(buf),
	selection = mode == "v" or mode == "V" or mode == "\22",
	popup = vim.fn.pumvisible() == 1,
	topline = view.topline - 1,
	leftcol = view.leftcol or 0,
}`

// Sync reads the buffer text, cursor, mode and view from the editor.
func (b *NvimSurface) Sync() error {
	defer logger.Trace("buffer.Sync")()

	var result map[string]any
	if err := b.lua(&result, snapshotLua, int(b.id)); err != nil {
		return fmt.Errorf("sync buffer %d: %w", b.id, err)
	}
	s := parseSnapshot(result)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = s.lines
	b.cursor = s.cursor
	b.tick = s.tick
	b.selection = s.selection
	b.popup = s.popup
	b.topline = s.topline
	b.leftcol = s.leftcol
	return nil
}

type snapshot struct {
	lines     []string
	cursor    types.Position
	tick      int
	selection bool
	popup     bool
	topline   int
	leftcol   int
}

func parseSnapshot(m map[string]any) snapshot {
	s := snapshot{
		cursor:    types.Position{Row: max(getNumber(m, "row"), 0), Column: max(getNumber(m, "col"), 0)},
		tick:      max(getNumber(m, "tick"), 0),
		selection: getBool(m, "selection"),
		popup:     getBool(m, "popup"),
		topline:   max(getNumber(m, "topline"), 0),
		leftcol:   max(getNumber(m, "leftcol"), 0),
	}
	if raw, ok := m["lines"].([]any); ok {
		for _, l := range raw {
			switch v := l.(type) {
			case string:
				s.lines = append(s.lines, v)
			case []byte:
				s.lines = append(s.lines, string(v))
			}
		}
	}
	if len(s.lines) == 0 {
		s.lines = []string{""}
	}
	return s
}

func (b *NvimSurface) Document() editor.Document { return b.doc }

func (b *NvimSurface) Tick() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tick
}

func (b *NvimSurface) Cursor() types.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

func (b *NvimSurface) SetCursor(pos types.Position) error {
	if b.client == nil {
		return errNoClient
	}
	batch := b.client.NewBatch()
	batch.SetWindowCursor(0, [2]int{pos.Row + 1, pos.Column})
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("set cursor %s: %w", pos, err)
	}
	b.mu.Lock()
	b.cursor = pos
	b.mu.Unlock()
	return nil
}

func (b *NvimSurface) HasSelection() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection
}

func (b *NvimSurface) IsPopupOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popup
}

func (b *NvimSurface) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

func (b *NvimSurface) Line(row int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if row < 0 || row >= len(b.lines) {
		return ""
	}
	return b.lines[row]
}

func (b *NvimSurface) valid(p types.Position) bool {
	return p.Row >= 0 && p.Row < len(b.lines) && p.Column >= 0 && p.Column <= len(b.lines[p.Row])
}

const replaceLua = `
local buf, sr, sc, er, ec, lines = ...
vim.api.nvim_buf_set_text(buf, sr, sc, er, ec, lines)
return vim.api.nvim_buf_get_changedtick(buf)`

// Replace edits the buffer and reports the change with the buffer's
// changedtick as its Tick.
func (b *NvimSurface) Replace(r types.Range, text string) (editor.Change, error) {
	b.mu.Lock()
	ok := b.valid(r.Start) && b.valid(r.End) && !r.End.Before(r.Start)
	b.mu.Unlock()
	if !ok {
		return editor.Change{}, fmt.Errorf("range %s outside document", r)
	}

	var tick int
	err := b.lua(&tick, replaceLua, int(b.id),
		r.Start.Row, r.Start.Column, r.End.Row, r.End.Column, strings.Split(text, "\n"))
	if err != nil {
		return editor.Change{}, fmt.Errorf("replace %s: %w", r, err)
	}

	newEnd := editor.EndOf(r.Start, text)
	b.mu.Lock()
	if b.valid(r.Start) && b.valid(r.End) {
		b.lines = editor.SpliceLines(b.lines, r, text)
	}
	b.tick = tick
	b.tokens, _ = editor.ShiftRows(b.tokens, r, newEnd)
	var stale [][]int
	b.previews, stale = editor.ShiftRows(b.previews, r, newEnd)
	b.mu.Unlock()

	for _, ids := range stale {
		for _, id := range ids {
			b.delExtmark(id)
		}
	}
	return editor.Change{
		Start:  r.Start,
		OldEnd: r.End,
		NewEnd: newEnd,
		Text:   text,
		Tick:   tick,
	}, nil
}

// setExtmark places or moves an extmark and returns its id. id 0 creates
// a new one.
func (b *NvimSurface) setExtmark(id int, pos types.Position, opts map[string]any) (int, error) {
	if id != 0 {
		opts["id"] = id
	}
	var out int
	err := b.lua(&out, `local buf, ns, row, col, opts = ...
return vim.api.nvim_buf_set_extmark(buf, ns, row, col, opts)`,
		int(b.id), b.config.NsID, pos.Row, pos.Column, opts)
	return out, err
}

func (b *NvimSurface) delExtmark(id int) {
	if id == 0 {
		return
	}
	err := b.lua(nil, `local buf, ns, id = ...
vim.api.nvim_buf_del_extmark(buf, ns, id)`, int(b.id), b.config.NsID, id)
	if err != nil {
		logger.Warn("delete extmark %d: %v", id, err)
	}
}

// CreateAnchor maps insertRight onto extmark gravity: an anchor that keeps
// its place on insertion has left gravity.
func (b *NvimSurface) CreateAnchor(pos types.Position, insertRight bool) editor.AnchorID {
	id, err := b.setExtmark(0, pos, map[string]any{"right_gravity": !insertRight})
	if err != nil {
		logger.Error("create anchor at %s: %v", pos, err)
		return 0
	}
	aid := editor.AnchorID(id)
	b.mu.Lock()
	b.insertRight[aid] = insertRight
	b.lastPos[aid] = pos
	b.mu.Unlock()
	return aid
}

// AnchorPosition falls back to the last known position when the extmark
// cannot be read.
func (b *NvimSurface) AnchorPosition(id editor.AnchorID) types.Position {
	var pos []int
	err := b.lua(&pos, `local buf, ns, id = ...
return vim.api.nvim_buf_get_extmark_by_id(buf, ns, id, {})`, int(b.id), b.config.NsID, int(id))

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil || len(pos) < 2 {
		if err != nil {
			logger.Warn("anchor %d position: %v", id, err)
		}
		return b.lastPos[id]
	}
	p := types.Position{Row: pos[0], Column: pos[1]}
	b.lastPos[id] = p
	return p
}

func (b *NvimSurface) MoveAnchor(id editor.AnchorID, pos types.Position) {
	b.mu.Lock()
	insertRight := b.insertRight[id]
	b.mu.Unlock()
	if _, err := b.setExtmark(int(id), pos, map[string]any{"right_gravity": !insertRight}); err != nil {
		logger.Error("move anchor %d to %s: %v", id, pos, err)
		return
	}
	b.mu.Lock()
	b.lastPos[id] = pos
	b.mu.Unlock()
}

func (b *NvimSurface) DetachAnchor(id editor.AnchorID) {
	b.delExtmark(int(id))
	b.mu.Lock()
	delete(b.insertRight, id)
	delete(b.lastPos, id)
	b.mu.Unlock()
}

func (b *NvimSurface) AddHighlight(r types.Range, class string, kind editor.HighlightKind) editor.MarkerID {
	opts := map[string]any{"end_row": r.End.Row}
	start := r.Start
	if kind == editor.HighlightFullLine {
		start.Column = 0
		opts["line_hl_group"] = HighlightGroup(class)
	} else {
		opts["end_col"] = r.End.Column
		opts["hl_group"] = HighlightGroup(class)
	}
	id, err := b.setExtmark(0, start, opts)
	if err != nil {
		logger.Error("highlight %s: %v", r, err)
		return 0
	}
	return editor.MarkerID(id)
}

func (b *NvimSurface) RemoveHighlight(id editor.MarkerID) { b.delExtmark(int(id)) }

func (b *NvimSurface) AddGutterMarker(row int, class string) editor.GutterID {
	id, err := b.setExtmark(0, types.Position{Row: row}, map[string]any{
		"sign_text":     SignText(class),
		"sign_hl_group": HighlightGroup(class),
	})
	if err != nil {
		logger.Error("gutter marker on row %d: %v", row, err)
		return 0
	}
	return editor.GutterID(id)
}

func (b *NvimSurface) RemoveGutterMarker(id editor.GutterID) { b.delExtmark(int(id)) }

func (b *NvimSurface) RowTokens(row int) []editor.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if toks, ok := b.tokens[row]; ok {
		return append([]editor.Token(nil), toks...)
	}
	line := ""
	if row >= 0 && row < len(b.lines) {
		line = b.lines[row]
	}
	return []editor.Token{{Text: line, Class: "text"}}
}

func (b *NvimSurface) SpliceToken(row, col int, tok editor.Token) error {
	if row < 0 || row >= b.LineCount() {
		return fmt.Errorf("row %d outside document", row)
	}
	toks, err := editor.SpliceTokens(b.RowTokens(row), col, tok)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	b.mu.Lock()
	b.tokens[row] = toks
	b.mu.Unlock()
	return nil
}

func (b *NvimSurface) InvalidateRow(row int) {
	b.mu.Lock()
	delete(b.tokens, row)
	b.mu.Unlock()
	b.clearPreviews(row)
}

func (b *NvimSurface) clearPreviews(row int) {
	b.mu.Lock()
	ids := b.previews[row]
	delete(b.previews, row)
	b.mu.Unlock()
	for _, id := range ids {
		b.delExtmark(id)
	}
}

// RenderRow draws the row's preview tokens as inline virtual text.
func (b *NvimSurface) RenderRow(row int) {
	b.clearPreviews(row)
	toks := b.RowTokens(row)
	cols := editor.PreviewColumns(toks)

	var ids []int
	i := 0
	for _, t := range toks {
		if !t.Preview {
			continue
		}
		id, err := b.setExtmark(0, types.Position{Row: row, Column: cols[i]}, map[string]any{
			"virt_text":     [][]string{{t.Text, HighlightGroup(t.Class)}},
			"virt_text_pos": "inline",
		})
		i++
		if err != nil {
			logger.Error("render preview on row %d: %v", row, err)
			continue
		}
		ids = append(ids, id)
	}
	b.mu.Lock()
	b.previews[row] = ids
	b.mu.Unlock()
}

// AddLineWidget draws the diff below row and announces it with a User
// autocmd so the plugin can map keys to TriggerWidget.
func (b *NvimSurface) AddLineWidget(row int, w *editor.Widget) editor.WidgetID {
	id, err := b.setExtmark(0, types.Position{Row: row}, map[string]any{
		"virt_lines": WidgetLines(w.Original, w.Proposed),
	})
	if err != nil {
		logger.Error("line widget on row %d: %v", row, err)
		return 0
	}
	wid := editor.WidgetID(id)
	b.mu.Lock()
	b.widgets[wid] = w
	b.mu.Unlock()
	b.emit(widgetPattern, map[string]any{"id": id, "row": row, "buf": int(b.id)})
	return wid
}

func (b *NvimSurface) RemoveLineWidget(id editor.WidgetID) {
	b.delExtmark(int(id))
	b.mu.Lock()
	delete(b.widgets, id)
	b.mu.Unlock()
}

// TriggerWidget runs the apply or discard callback of a live widget and
// reports whether there was one.
func (b *NvimSurface) TriggerWidget(id editor.WidgetID, apply bool) bool {
	b.mu.Lock()
	w := b.widgets[id]
	b.mu.Unlock()
	if w == nil {
		return false
	}
	if apply && w.OnApply != nil {
		w.OnApply()
	} else if !apply && w.OnDiscard != nil {
		w.OnDiscard()
	}
	return true
}

// ShowGhostText draws the first line inline at pos and the rest as
// virtual lines below it.
func (b *NvimSurface) ShowGhostText(pos types.Position, text string) {
	b.ClearGhostText()
	first, rest, _ := strings.Cut(text, "\n")
	opts := map[string]any{
		"virt_text":     [][]string{{first, ghostGroup}},
		"virt_text_pos": "inline",
	}
	if rest != "" {
		var lines [][][]string
		for _, l := range strings.Split(rest, "\n") {
			lines = append(lines, [][]string{{l, ghostGroup}})
		}
		opts["virt_lines"] = lines
	}
	id, err := b.setExtmark(0, pos, opts)
	if err != nil {
		logger.Error("ghost text at %s: %v", pos, err)
		return
	}
	b.mu.Lock()
	b.ghost = id
	b.mu.Unlock()
}

func (b *NvimSurface) ClearGhostText() {
	b.mu.Lock()
	id := b.ghost
	b.ghost = 0
	b.mu.Unlock()
	b.delExtmark(id)
}

// ScreenToDocument converts window cell coordinates using the view cached
// by the last Sync.
func (b *NvimSurface) ScreenToDocument(x, y int) types.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.Position{Row: b.topline + y, Column: b.leftcol + x}
}

func (b *NvimSurface) ShowStatus(kind types.StatusKind, message string) {
	b.emit(statusPattern, map[string]any{"kind": string(kind), "message": message, "buf": int(b.id)})
}

// emit fires a User autocmd carrying data.
func (b *NvimSurface) emit(pattern string, data map[string]any) {
	err := b.lua(nil, `local pattern, data = ...
vim.api.nvim_exec_autocmds("User", { pattern = pattern, data = data, modeline = false })`, pattern, data)
	if err != nil {
		logger.Debug("emit %s: %v", pattern, err)
	}
}

// Clear removes everything drawn in the namespace.
func (b *NvimSurface) Clear() error {
	if b.client == nil {
		return errNoClient
	}
	batch := b.client.NewBatch()
	batch.ClearBufferNamespace(b.id, b.config.NsID, 0, -1)
	if err := batch.Execute(); err != nil {
		return err
	}
	b.mu.Lock()
	b.tokens = make(map[int][]editor.Token)
	b.previews = make(map[int][]int)
	b.widgets = make(map[editor.WidgetID]*editor.Widget)
	b.ghost = 0
	b.mu.Unlock()
	return nil
}

// HighlightGroup turns a CSS-like class into a Neovim highlight group:
// "next-edit-suggestion-deletion" becomes "NextEditSuggestionDeletion" and
// "insertion_preview" becomes "NextEditInsertionPreview".
func HighlightGroup(class string) string {
	parts := strings.FieldsFunc(class, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	group := sb.String()
	if !strings.HasPrefix(group, highlightPrefix) {
		group = highlightPrefix + group
	}
	return group
}

// SignText picks the sign for a gutter class.
func SignText(class string) string {
	if g, ok := signGlyphs[class]; ok {
		return g
	}
	return defaultSignGlyph
}

// WidgetLines renders a diff widget as virt_lines chunks: removed lines
// first, then added ones.
func WidgetLines(original, proposed string) [][][]string {
	var out [][][]string
	for _, l := range strings.Split(original, "\n") {
		out = append(out, [][]string{{"- " + l, widgetDelGroup}})
	}
	for _, l := range strings.Split(proposed, "\n") {
		out = append(out, [][]string{{"+ " + l, widgetAddGroup}})
	}
	return out
}

// ParseChange decodes a document change reported by the plugin. Rows and
// columns are absolute, 0-indexed byte positions.
func ParseChange(m map[string]any) (editor.Change, bool) {
	sr, sc := getNumber(m, "start_row"), getNumber(m, "start_col")
	oer, oec := getNumber(m, "old_end_row"), getNumber(m, "old_end_col")
	ner, nec := getNumber(m, "new_end_row"), getNumber(m, "new_end_col")
	for _, v := range []int{sr, sc, oer, oec, ner, nec} {
		if v < 0 {
			return editor.Change{}, false
		}
	}
	c := editor.Change{
		Start:  types.Position{Row: sr, Column: sc},
		OldEnd: types.Position{Row: oer, Column: oec},
		NewEnd: types.Position{Row: ner, Column: nec},
		Text:   getString(m, "text"),
		Tick:   max(getNumber(m, "tick"), 0),
	}
	if c.OldEnd.Before(c.Start) || c.NewEnd.Before(c.Start) {
		return editor.Change{}, false
	}
	return c, true
}

// RelativePath makes absolutePath relative to workspacePath when it lies
// inside it.
func RelativePath(absolutePath, workspacePath string) string {
	if absolutePath == "" {
		return ""
	}
	absolutePath = filepath.Clean(absolutePath)
	workspacePath = filepath.Clean(workspacePath)

	if relativePath, found := strings.CutPrefix(absolutePath, workspacePath); found && workspacePath != "." {
		return strings.TrimPrefix(relativePath, string(filepath.Separator))
	}
	return absolutePath
}

// SortedWidgetIDs lists live widgets in creation order.
func (b *NvimSurface) SortedWidgetIDs() []editor.WidgetID {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]editor.WidgetID, 0, len(b.widgets))
	for id := range b.widgets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func getString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// Helper function to safely get number from map, handling both int and float64
func getNumber(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return -1
}

func getBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
