package canvas

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/canvasd/internal/observability"
)

// Renderer paints a document to its preview and export artifacts.
type Renderer interface {
	Render(ctx context.Context, doc Document) error
}

// CachePurger drops every decoded image held for the current document.
type CachePurger interface {
	Purge()
}

// Manager owns the live document. Each mutation and the render that follows
// it run under one lock, so renders always observe a settled document.
type Manager struct {
	mu  sync.Mutex
	doc Document

	renderer Renderer
	cache    CachePurger
	hub      *Hub
	logger   *slog.Logger
	metrics  *observability.Metrics

	maxDimension int
}

// NewManager creates a manager for an uninitialized document. cache may be nil.
func NewManager(renderer Renderer, cache CachePurger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		doc:      Document{Elements: []Element{}},
		renderer: renderer,
		cache:    cache,
		hub:      NewHub(),
		logger:   logger.With("component", "canvas"),

		maxDimension: DefaultMaxDimension,
	}
}

// Hub returns the realtime hub.
func (m *Manager) Hub() *Hub {
	if m == nil {
		return nil
	}
	return m.hub
}

func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	if m == nil {
		return
	}
	m.metrics = metrics
}

// SetMaxDimension bounds the width and height Init accepts. Zero or less
// restores DefaultMaxDimension.
func (m *Manager) SetMaxDimension(n int) {
	if m == nil {
		return
	}
	if n <= 0 {
		n = DefaultMaxDimension
	}
	m.mu.Lock()
	m.maxDimension = n
	m.mu.Unlock()
}

// Init replaces the document with an empty width x height canvas and renders
// it. Invalid dimensions leave the current document untouched.
func (m *Manager) Init(ctx context.Context, width, height int) (Document, error) {
	if m == nil {
		return Document{}, errors.New("canvas manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkDimensions(width, height, m.maxDimension); err != nil {
		m.metrics.Mutation("init", err, len(m.doc.Elements))
		return m.doc.Clone(), err
	}

	m.doc = Document{Width: width, Height: height, Elements: []Element{}}
	m.purgeCache()
	err := m.renderLocked(ctx)
	m.finish(ctx, "init", EventReset, err)
	return m.doc.Clone(), err
}

// Add validates el, appends it and renders. A render failure is returned but
// the element stays in the document.
func (m *Manager) Add(ctx context.Context, el Element) (Document, error) {
	if m == nil {
		return Document{}, errors.New("canvas manager unavailable")
	}
	el = el.Normalize()
	op := "add_" + string(el.Type)
	if err := el.Validate(); err != nil {
		m.metrics.Mutation(op, err, len(m.State().Elements))
		return m.State(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.doc.Initialized() {
		m.metrics.Mutation(op, ErrNotInitialized, 0)
		return m.doc.Clone(), ErrNotInitialized
	}
	m.doc.Elements = append(m.doc.Elements, el)
	err := m.renderLocked(ctx)
	m.finish(ctx, op, EventUpdate, err)
	return m.doc.Clone(), err
}

// Clear removes every element, keeping the dimensions, and renders the blank
// canvas. Clearing a document that was never initialized only drops cached
// images.
func (m *Manager) Clear(ctx context.Context) (Document, error) {
	if m == nil {
		return Document{}, errors.New("canvas manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.doc.Elements = []Element{}
	m.purgeCache()
	var err error
	if m.doc.Initialized() {
		err = m.renderLocked(ctx)
	}
	m.finish(ctx, "clear", EventReset, err)
	return m.doc.Clone(), err
}

// Rerender renders the current document again without changing it.
func (m *Manager) Rerender(ctx context.Context) error {
	if m == nil {
		return errors.New("canvas manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.doc.Initialized() {
		return ErrNotInitialized
	}
	err := m.renderLocked(ctx)
	m.finish(ctx, "rerender", EventUpdate, err)
	return err
}

// State returns a copy of the current document.
func (m *Manager) State() Document {
	if m == nil {
		return Document{Elements: []Element{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone()
}

// References reports whether the document uses the image at path.
func (m *Manager) References(path string) bool {
	for _, p := range m.State().ImagePaths() {
		if p == path {
			return true
		}
	}
	return false
}

func (m *Manager) renderLocked(ctx context.Context) error {
	if m.renderer == nil {
		return nil
	}
	return m.renderer.Render(ctx, m.doc.Clone())
}

func (m *Manager) purgeCache() {
	if m.cache != nil {
		m.cache.Purge()
	}
}

// finish logs, records and broadcasts the outcome of a mutation. Callers hold m.mu.
func (m *Manager) finish(ctx context.Context, op, eventType string, err error) {
	m.metrics.Mutation(op, err, len(m.doc.Elements))
	msg := StreamMessage{
		Type:      eventType,
		Op:        op,
		Elements:  len(m.doc.Elements),
		Width:     m.doc.Width,
		Height:    m.doc.Height,
		Timestamp: time.Now(),
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "render after mutation failed", "op", op, "elements", len(m.doc.Elements), "error", err)
		msg.Type = EventError
		msg.Error = "render failed"
		if errors.Is(err, ErrNotInitialized) {
			msg.Error = "canvas not initialized"
		}
	} else {
		m.logger.DebugContext(ctx, "document mutated", "op", op, "elements", len(m.doc.Elements))
	}
	m.hub.Broadcast(msg)
}
