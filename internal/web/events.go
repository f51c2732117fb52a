package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haasonsaas/canvasd/internal/canvas"
)

// apiEvents handles GET /api/canvas/events, a server-sent event stream of
// document changes. The first event is a snapshot of the current state.
func (h *Handler) apiEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	hub := h.config.Manager.Hub()
	messages, cancel := hub.Subscribe()
	defer cancel()
	h.config.Metrics.ViewerConnected()
	defer h.config.Metrics.ViewerDisconnected()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	doc := h.config.Manager.State()
	snapshot := canvas.StreamMessage{
		Type:      canvas.EventSnapshot,
		Elements:  len(doc.Elements),
		Width:     doc.Width,
		Height:    doc.Height,
		Timestamp: time.Now(),
	}
	if err := writeEvent(w, snapshot); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(h.config.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, msg canvas.StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
	return err
}
