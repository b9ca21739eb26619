package main

import (
	"context"
	"strings"
	"sync"

	"nextedit/buffer"
	"nextedit/editor"
	"nextedit/engine"
	"nextedit/logger"
	"nextedit/metrics"

	"github.com/neovim/go-client/nvim"
)

// attachment is one buffer with its engine.
type attachment struct {
	surface *buffer.NvimSurface
	engine  *engine.Engine
}

// session serves one Neovim connection. Notification handlers only queue
// work; a single worker runs it in arrival order so buffer syncs and engine
// events never interleave and never block the RPC read loop.
type session struct {
	ctx     context.Context
	nvim    *nvim.Nvim
	service engine.SuggestionService
	tracker *metrics.Tracker
	config  Config
	nsID    int

	queueMu sync.Mutex
	queue   []func()
	ready   chan struct{}
	done    chan struct{}
	closing sync.Once

	mu      sync.Mutex
	buffers map[nvim.Buffer]*attachment
}

func newSession(ctx context.Context, n *nvim.Nvim, service engine.SuggestionService, tracker *metrics.Tracker, config Config) *session {
	return &session{
		ctx:     ctx,
		nvim:    n,
		service: service,
		tracker: tracker,
		config:  config,
		nsID:    config.NsID,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		buffers: make(map[nvim.Buffer]*attachment),
	}
}

// register installs the RPC handlers and starts the worker. Nothing is
// served until the caller runs Serve on the connection.
func (s *session) register() error {
	handlers := map[string]any{
		"nextedit_attach": func(buf int, path, cwd string) {
			s.enqueue(func() { s.attach(nvim.Buffer(buf), buffer.RelativePath(path, cwd)) })
		},
		"nextedit_detach": func(buf int) {
			s.enqueue(func() { s.detach(nvim.Buffer(buf)) })
		},
		"nextedit_change": func(buf int, change map[string]any) {
			s.enqueue(func() { s.documentChanged(nvim.Buffer(buf), change) })
		},
		"nextedit_cursor": func(buf int) {
			s.enqueue(func() {
				s.withSynced(nvim.Buffer(buf), func(a *attachment) { a.engine.OnCursorMoved() })
			})
		},
		"nextedit_gutter": func(buf, row int, enter bool) {
			s.enqueue(func() { s.gutter(nvim.Buffer(buf), row, enter) })
		},
		"nextedit_click": func(buf, x, y int, modifier string) {
			s.enqueue(func() {
				s.withSynced(nvim.Buffer(buf), func(a *attachment) {
					a.engine.OnClick(x, y, parseModifier(modifier))
				})
			})
		},
		"nextedit_widget": func(buf, id int, apply bool) {
			s.enqueue(func() { s.widget(nvim.Buffer(buf), editor.WidgetID(id), apply) })
		},
		"nextedit_event": func(buf int, name string) {
			s.enqueue(func() { s.namedEvent(nvim.Buffer(buf), name) })
		},
		"nextedit_key": func(buf int, key string) (bool, error) {
			a := s.lookup(nvim.Buffer(buf))
			if a == nil {
				return false, nil
			}
			return a.engine.HandleKey(engine.Key(key)), nil
		},
	}
	for method, fn := range handlers {
		if err := s.nvim.RegisterHandler(method, fn); err != nil {
			return err
		}
	}

	go s.run()
	return nil
}

func (s *session) enqueue(job func()) {
	s.queueMu.Lock()
	s.queue = append(s.queue, job)
	s.queueMu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *session) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ready:
		}

		s.queueMu.Lock()
		jobs := s.queue
		s.queue = nil
		s.queueMu.Unlock()

		for _, job := range jobs {
			select {
			case <-s.done:
				return
			default:
			}
			job()
		}
	}
}

func (s *session) lookup(buf nvim.Buffer) *attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[buf]
}

// namespace returns the extmark namespace, creating it on first use when
// the config does not name one.
func (s *session) namespace() int {
	if s.nsID == 0 {
		id, err := s.nvim.CreateNamespace("nextedit")
		if err != nil {
			logger.Error("create namespace: %v", err)
			return 0
		}
		s.nsID = id
	}
	return s.nsID
}

func (s *session) attach(buf nvim.Buffer, path string) {
	if s.lookup(buf) != nil {
		return
	}

	surface := buffer.New(s.nvim, buf, path, buffer.Config{NsID: s.namespace()})
	if err := surface.Sync(); err != nil {
		logger.Error("attach buffer %d: %v", buf, err)
		return
	}
	eng, err := engine.NewEngine(s.service, surface, s.config.EngineConfig(), nil, s.tracker)
	if err != nil {
		logger.Error("attach buffer %d: %v", buf, err)
		return
	}
	eng.Start(s.ctx)

	s.mu.Lock()
	s.buffers[buf] = &attachment{surface: surface, engine: eng}
	s.mu.Unlock()
	logger.Debug("attached buffer %d as %s", buf, surface.Document().ID)
}

func (s *session) detach(buf nvim.Buffer) {
	s.mu.Lock()
	a := s.buffers[buf]
	delete(s.buffers, buf)
	s.mu.Unlock()

	if a != nil {
		a.engine.Stop()
		logger.Debug("detached buffer %d", buf)
	}
}

// withSynced refreshes the buffer's cached state before handing it to fn.
func (s *session) withSynced(buf nvim.Buffer, fn func(a *attachment)) {
	a := s.lookup(buf)
	if a == nil {
		return
	}
	if err := a.surface.Sync(); err != nil {
		logger.Warn("sync buffer %d: %v", buf, err)
		return
	}
	fn(a)
}

func (s *session) documentChanged(buf nvim.Buffer, payload map[string]any) {
	change, ok := buffer.ParseChange(payload)
	if !ok {
		logger.Warn("malformed change for buffer %d: %v", buf, payload)
		return
	}
	s.withSynced(buf, func(a *attachment) { a.engine.OnDocumentChanged(change) })
}

func (s *session) gutter(buf nvim.Buffer, row int, enter bool) {
	a := s.lookup(buf)
	if a == nil {
		return
	}
	if enter {
		a.engine.OnGutterEnter(row)
	} else {
		a.engine.OnGutterLeave(row)
	}
}

// widget applies or discards a line widget. A non-positive id picks the
// most recent widget of the buffer.
func (s *session) widget(buf nvim.Buffer, id editor.WidgetID, apply bool) {
	a := s.lookup(buf)
	if a == nil {
		return
	}
	if id <= 0 {
		ids := a.surface.SortedWidgetIDs()
		if len(ids) == 0 {
			return
		}
		id = ids[len(ids)-1]
	}
	if !a.surface.TriggerWidget(id, apply) {
		logger.Debug("no widget %d in buffer %d", id, buf)
	}
}

func (s *session) namedEvent(buf nvim.Buffer, name string) {
	switch name {
	case "file_type_changed":
		if a := s.lookup(buf); a != nil {
			a.engine.OnFileTypeChanged()
		}
	case "editor_dismiss":
		if a := s.lookup(buf); a != nil {
			a.engine.OnDismiss()
		}
	default:
		s.withSynced(buf, func(a *attachment) {
			if !a.engine.PostNamed(name) {
				logger.Warn("unknown event %q", name)
			}
		})
	}
}

func (s *session) close() {
	s.closing.Do(func() {
		close(s.done)

		s.mu.Lock()
		buffers := s.buffers
		s.buffers = make(map[nvim.Buffer]*attachment)
		s.mu.Unlock()

		for _, a := range buffers {
			a.engine.Stop()
		}
	})
}

func parseModifier(s string) engine.Modifier {
	switch strings.ToLower(s) {
	case "ctrl", "c":
		return engine.ModCtrl
	case "cmd", "meta", "d", "m":
		return engine.ModCmd
	}
	return engine.ModNone
}
