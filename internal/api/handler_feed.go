package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ryanbastic/go-pixelgrid/internal/broadcast"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

const (
	feedWriteWait = 10 * time.Second
	feedReadLimit = 512
)

// FeedHandler streams pixel updates to websocket clients.
type FeedHandler struct {
	hub          *broadcast.Hub
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *slog.Logger
}

func NewFeedHandler(hub *broadcast.Hub, allowedOrigins []string, pingInterval time.Duration, logger *slog.Logger) *FeedHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &FeedHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		pingInterval: pingInterval,
		logger:       logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// ServeHTTP upgrades the connection and forwards hub events until either side
// goes away. Clients send nothing but control frames.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer sub.Close()

	reqID := RequestIDFrom(r.Context())
	h.logger.Info("feed subscriber connected", "request_id", reqID, "remote", r.RemoteAddr)

	done := make(chan struct{})
	go h.readPump(conn, done)

	reason := h.writePump(conn, sub, done)
	h.logger.Info("feed subscriber disconnected", "request_id", reqID, "reason", reason)
}

func (h *FeedHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(feedReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *FeedHandler) writePump(conn *websocket.Conn, sub *broadcast.Subscription, done <-chan struct{}) string {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case cell, ok := <-sub.Events():
			if !ok {
				if sub.Lagged() {
					closeWith(conn, websocket.CloseTryAgainLater, "subscriber lagged, refetch the grid")
					return "lagged"
				}
				closeWith(conn, websocket.CloseGoingAway, "server shutting down")
				return "shutdown"
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(pixel.Event{Type: pixel.EventPixelUpdated, Data: cell}); err != nil {
				return "write error"
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return "ping error"
			}
		case <-done:
			return "client closed"
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(feedWriteWait))
}
