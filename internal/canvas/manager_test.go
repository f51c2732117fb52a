package canvas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRenderer struct {
	mu    sync.Mutex
	calls []Document
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, doc Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, doc)
	return f.err
}

func (f *fakeRenderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCache struct{ purges int }

func (f *fakeCache) Purge() { f.purges++ }

func TestManagerInit(t *testing.T) {
	ctx := context.Background()
	renderer := &fakeRenderer{}
	cache := &fakeCache{}
	manager := NewManager(renderer, cache, nil)

	doc, err := manager.Init(ctx, 800, 600)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if doc.Width != 800 || doc.Height != 600 || len(doc.Elements) != 0 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if renderer.count() != 1 {
		t.Errorf("expected 1 render, got %d", renderer.count())
	}
	if cache.purges != 1 {
		t.Errorf("expected 1 purge, got %d", cache.purges)
	}
}

func TestManagerInitInvalidKeepsDocument(t *testing.T) {
	ctx := context.Background()
	renderer := &fakeRenderer{}
	manager := NewManager(renderer, nil, nil)

	if _, err := manager.Init(ctx, 100, 100); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := manager.Add(ctx, Rectangle(0, 0, 10, 10, "red")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tests := []struct{ w, h int }{{0, 100}, {100, 0}, {-1, 5}}
	for _, tt := range tests {
		_, err := manager.Init(ctx, tt.w, tt.h)
		if !errors.Is(err, ErrInvalidDimensions) {
			t.Fatalf("Init(%d,%d) = %v, want ErrInvalidDimensions", tt.w, tt.h, err)
		}
	}

	state := manager.State()
	if state.Width != 100 || len(state.Elements) != 1 {
		t.Fatalf("document changed after invalid init: %+v", state)
	}
	if renderer.count() != 2 {
		t.Errorf("invalid init rendered: %d renders", renderer.count())
	}
}

func TestManagerInitRejectsOversizedCanvas(t *testing.T) {
	ctx := context.Background()
	renderer := &fakeRenderer{}
	manager := NewManager(renderer, nil, nil)
	if _, err := manager.Init(ctx, 50, 40); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tests := []struct {
		name string
		max  int
		w, h int
	}{
		{"beyond default", 0, DefaultMaxDimension + 1, 10},
		{"overflowing int32", 0, 2147483648, 2147483648},
		{"beyond configured", 100, 50, 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager.SetMaxDimension(tt.max)
			if _, err := manager.Init(ctx, tt.w, tt.h); !errors.Is(err, ErrInvalidDimensions) {
				t.Fatalf("Init(%d,%d) = %v, want ErrInvalidDimensions", tt.w, tt.h, err)
			}
		})
	}

	if state := manager.State(); state.Width != 50 || state.Height != 40 {
		t.Fatalf("document changed after oversized init: %+v", state)
	}
	if renderer.count() != 1 {
		t.Errorf("oversized init rendered: %d renders", renderer.count())
	}

	manager.SetMaxDimension(100)
	if _, err := manager.Init(ctx, 100, 100); err != nil {
		t.Fatalf("Init at limit: %v", err)
	}
}

func TestManagerAddCountsElements(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(&fakeRenderer{}, nil, nil)
	if _, err := manager.Init(ctx, 200, 200); err != nil {
		t.Fatalf("Init: %v", err)
	}

	elements := []Element{
		Rectangle(10, 10, 50, 50, "red"),
		Circle(100, 100, 20, "blue"),
		Text(5, 30, "hello", "", 14, "#333"),
		Image(0, 0, 20, 20, "/uploads/a.png", ""),
	}
	for i, el := range elements {
		doc, err := manager.Add(ctx, el)
		if err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
		if len(doc.Elements) != i+1 {
			t.Fatalf("after %d adds got %d elements", i+1, len(doc.Elements))
		}
	}

	state := manager.State()
	if state.Elements[2].Font != DefaultFont {
		t.Errorf("text font = %q, want default", state.Elements[2].Font)
	}
	for i, el := range state.Elements {
		if el.Type != elements[i].Type {
			t.Errorf("element %d type %q, want %q", i, el.Type, elements[i].Type)
		}
	}
}

func TestManagerAddInvalidLeavesDocument(t *testing.T) {
	ctx := context.Background()
	renderer := &fakeRenderer{}
	manager := NewManager(renderer, nil, nil)
	if _, err := manager.Init(ctx, 200, 200); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err := manager.Add(ctx, Rectangle(0, 0, 10, 10, "nope"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Add = %v, want ErrInvalidInput", err)
	}
	if n := len(manager.State().Elements); n != 0 {
		t.Fatalf("invalid add appended element, have %d", n)
	}
	if renderer.count() != 1 {
		t.Errorf("invalid add rendered")
	}
}

func TestManagerAddBeforeInit(t *testing.T) {
	manager := NewManager(&fakeRenderer{}, nil, nil)
	_, err := manager.Add(context.Background(), Rectangle(0, 0, 10, 10, "red"))
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Add = %v, want ErrNotInitialized", err)
	}
	if n := len(manager.State().Elements); n != 0 {
		t.Fatalf("expected empty document, got %d elements", n)
	}
}

func TestManagerRenderFailureKeepsElement(t *testing.T) {
	ctx := context.Background()
	renderer := &fakeRenderer{}
	manager := NewManager(renderer, nil, nil)
	if _, err := manager.Init(ctx, 50, 50); err != nil {
		t.Fatalf("Init: %v", err)
	}

	renderer.err = ErrRenderFailed
	doc, err := manager.Add(ctx, Circle(10, 10, 5, "green"))
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("Add = %v, want ErrRenderFailed", err)
	}
	if len(doc.Elements) != 1 || len(manager.State().Elements) != 1 {
		t.Fatal("element rolled back after render failure")
	}
}

func TestManagerClear(t *testing.T) {
	ctx := context.Background()
	cache := &fakeCache{}
	manager := NewManager(&fakeRenderer{}, cache, nil)
	if _, err := manager.Init(ctx, 50, 40); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := manager.Add(ctx, Rectangle(0, 0, 5, 5, "red")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	doc, err := manager.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if doc.Width != 50 || doc.Height != 40 || len(doc.Elements) != 0 {
		t.Fatalf("unexpected document after clear %+v", doc)
	}
	if cache.purges != 2 {
		t.Errorf("expected purge on init and clear, got %d", cache.purges)
	}
}

func TestManagerStateIsCopy(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(&fakeRenderer{}, nil, nil)
	if _, err := manager.Init(ctx, 50, 50); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := manager.Add(ctx, Rectangle(0, 0, 5, 5, "red")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	state := manager.State()
	state.Elements[0].Color = "blue"
	if manager.State().Elements[0].Color != "red" {
		t.Fatal("State() exposed internal storage")
	}
}

func TestManagerConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(&fakeRenderer{}, nil, nil)
	if _, err := manager.Init(ctx, 100, 100); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := manager.Add(ctx, Rectangle(i, i, 5, 5, "red")); err != nil {
				t.Errorf("Add: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n := len(manager.State().Elements); n != 20 {
		t.Fatalf("expected 20 elements, got %d", n)
	}
}

func TestManagerBroadcasts(t *testing.T) {
	ctx := context.Background()
	renderer := &fakeRenderer{}
	manager := NewManager(renderer, nil, nil)
	stream, cancel := manager.Hub().Subscribe()
	defer cancel()

	if _, err := manager.Init(ctx, 10, 10); err != nil {
		t.Fatalf("Init: %v", err)
	}
	expectMessage(t, stream, EventReset, "init")

	if _, err := manager.Add(ctx, Circle(1, 1, 1, "red")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	msg := expectMessage(t, stream, EventUpdate, "add_circle")
	if msg.Elements != 1 {
		t.Errorf("elements = %d, want 1", msg.Elements)
	}

	renderer.err = errors.New("disk full")
	_, _ = manager.Add(ctx, Circle(1, 1, 1, "red"))
	msg = expectMessage(t, stream, EventError, "add_circle")
	if msg.Error != "render failed" {
		t.Errorf("error = %q, want generic message", msg.Error)
	}
}

func TestHubBroadcastFanout(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe()
	ch2, cancel2 := hub.Subscribe()
	defer cancel1()

	hub.Broadcast(StreamMessage{Type: EventUpdate, Timestamp: time.Now()})
	for i, ch := range []<-chan StreamMessage{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("expected message on subscriber %d", i)
		}
	}

	cancel2()
	cancel2()
	if hub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers())
	}
	if _, ok := <-ch2; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func expectMessage(t *testing.T, stream <-chan StreamMessage, typ, op string) StreamMessage {
	t.Helper()
	select {
	case msg := <-stream:
		if msg.Type != typ || msg.Op != op {
			t.Fatalf("got %s/%s, want %s/%s", msg.Type, msg.Op, typ, op)
		}
		return msg
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected %s message", typ)
	}
	return StreamMessage{}
}
