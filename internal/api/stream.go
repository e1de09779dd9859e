package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fieldtrack/pkg/events"
)

const writeTimeout = 5 * time.Second

// StreamHandler tails the event bus over a websocket so UI layers can show
// live tracking indicators without polling.
type StreamHandler struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
}

func NewStreamHandler(bus *events.Bus) *StreamHandler {
	return &StreamHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			// The server binds to localhost; browser origin checks do not apply.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Stream: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("Stream: client gone", "error", err)
				return
			}
		}
	}
}
