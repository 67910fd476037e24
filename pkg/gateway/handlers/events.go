package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/voicebridge/pkg/gateway/events"
)

const (
	eventBuffer   = 64
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Events serves GET /call/events: a websocket feed of turn events for
// dashboards and call monitors.
type Events struct {
	Hub      *events.Hub
	Logger   *slog.Logger
	Upgrader websocket.Upgrader
}

func (h *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.Logger.Warn("event feed upgrade", "err", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.Hub.Subscribe(eventBuffer)
	defer cancel()

	// Drain client frames so close handshakes and pongs are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
