package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ryanbastic/go-pixelgrid/internal/broadcast"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/grid/feed"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *broadcast.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers: got %d, want %d", hub.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeed_DeliversPlacements(t *testing.T) {
	env := newTestEnv(t, 50, 30*time.Second)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dialFeed(t, srv)
	waitSubscribers(t, env.hub, 1)

	w := env.do(t, http.MethodPost, "/v1/grid/pixel", env.token(t, "u1"), map[string]any{"x": 3, "y": 4, "color": "#ABCDEF"})
	if w.Code != http.StatusCreated {
		t.Fatalf("place: %d %s", w.Code, w.Body.String())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev pixel.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != pixel.EventPixelUpdated {
		t.Errorf("type: got %q", ev.Type)
	}
	if ev.Data.X != 3 || ev.Data.Y != 4 || ev.Data.Color != "#ABCDEF" || ev.Data.WriterID != "u1" {
		t.Errorf("data: got %+v", ev.Data)
	}
}

func TestFeed_ClientDisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(t, 10, time.Second)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dialFeed(t, srv)
	waitSubscribers(t, env.hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitSubscribers(t, env.hub, 0)
}

func TestFeed_LaggedSubscriberGetsTryAgainLater(t *testing.T) {
	logger := testLogger()
	hub := broadcast.NewHub(1, logger)
	srv := httptest.NewServer(NewFeedHandler(hub, nil, time.Minute, logger))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitSubscribers(t, hub, 1)

	// Without reading on the client, publish until the server-side buffer
	// overflows and the hub evicts the subscription.
	for i := 0; i < 10_000 && hub.Len() > 0; i++ {
		hub.Publish(pixel.Cell{X: 1, Y: 1, Version: int64(i + 1)})
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev pixel.Event
		err := conn.ReadJSON(&ev)
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("read: %v", err)
		}
		if ce.Code != websocket.CloseTryAgainLater {
			t.Errorf("close code: got %d, want %d", ce.Code, websocket.CloseTryAgainLater)
		}
		return
	}
}

func TestFeed_ShutdownClosesGoingAway(t *testing.T) {
	env := newTestEnv(t, 10, time.Second)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := dialFeed(t, srv)
	waitSubscribers(t, env.hub, 1)
	env.hub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("got %v, want close 1001", err)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "http://evil.test", true},
		{"unset allows all", nil, "http://evil.test", true},
		{"listed", []string{"http://a.test"}, "http://a.test", true},
		{"unlisted", []string{"http://a.test"}, "http://b.test", false},
		{"no origin header", []string{"http://a.test"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/grid/feed", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
