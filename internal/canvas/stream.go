package canvas

import (
	"sync"
	"time"
)

// Stream event types.
const (
	EventSnapshot = "snapshot"
	EventReset    = "reset"
	EventUpdate   = "update"
	EventError    = "error"
)

// StreamMessage is the envelope sent to live-update subscribers.
type StreamMessage struct {
	Type      string    `json:"type"`
	Op        string    `json:"op"`
	Elements  int       `json:"elements"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Hub fans out document changes to subscribers. Slow subscribers drop
// messages instead of blocking mutations.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan StreamMessage]struct{}
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan StreamMessage]struct{})}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel.
func (h *Hub) Subscribe() (<-chan StreamMessage, func()) {
	ch := make(chan StreamMessage, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers a message to all subscribers.
func (h *Hub) Broadcast(msg StreamMessage) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
