package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

func TestGetGrid_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t, 10, time.Second)
	w := env.do(t, http.MethodGet, "/v1/grid", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body: got %q, want []", got)
	}
}

func TestPlacePixel_Success(t *testing.T) {
	env := newTestEnv(t, 50, 30*time.Second)
	sub := env.hub.Subscribe()
	defer sub.Close()

	w := env.do(t, http.MethodPost, "/v1/grid/pixel", env.token(t, "u1"),
		map[string]any{"x": 5, "y": 5, "color": "#1a2b3c"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	cell := decode[pixel.Cell](t, w)
	if cell.X != 5 || cell.Y != 5 || cell.Color != "#1A2B3C" || cell.WriterID != "u1" || cell.Version != 1 {
		t.Errorf("unexpected cell %+v", cell)
	}

	select {
	case got := <-sub.Events():
		if got.Color != "#1A2B3C" {
			t.Errorf("broadcast color %q", got.Color)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}

	grid := decode[[]pixel.Cell](t, env.do(t, http.MethodGet, "/v1/grid", "", nil))
	if len(grid) != 1 || grid[0].Color != "#1A2B3C" {
		t.Errorf("grid: got %+v", grid)
	}
}

func TestPlacePixel_Errors(t *testing.T) {
	env := newTestEnv(t, 50, 30*time.Second)
	valid := env.token(t, "u-err")

	tests := []struct {
		name       string
		token      string
		body       any
		wantStatus int
		wantKind   pixel.Kind
	}{
		{"no token", "", map[string]any{"x": 1, "y": 1, "color": "#000000"}, http.StatusUnauthorized, pixel.KindUnauthenticated},
		{"bad token", "garbage", map[string]any{"x": 1, "y": 1, "color": "#000000"}, http.StatusUnauthorized, pixel.KindUnauthenticated},
		{"no token, malformed body", "", map[string]any{"x": "one"}, http.StatusUnauthorized, pixel.KindUnauthenticated},
		{"bad token, invalid color", "garbage", map[string]any{"x": 1, "y": 1, "color": "red"}, http.StatusUnauthorized, pixel.KindUnauthenticated},
		{"x zero", valid, map[string]any{"x": 0, "y": 1, "color": "#000000"}, http.StatusBadRequest, pixel.KindInvalidArgument},
		{"x past edge", valid, map[string]any{"x": 51, "y": 1, "color": "#000000"}, http.StatusBadRequest, pixel.KindInvalidArgument},
		{"named color", valid, map[string]any{"x": 1, "y": 1, "color": "red"}, http.StatusBadRequest, pixel.KindInvalidArgument},
		{"missing color", valid, map[string]any{"x": 1, "y": 1}, http.StatusUnprocessableEntity, pixel.KindInvalidArgument},
		{"string x", valid, map[string]any{"x": "one", "y": 1, "color": "#000000"}, http.StatusUnprocessableEntity, pixel.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/grid/pixel", tt.token, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d\nbody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode[apiError](t, w)
			if resp.Kind != tt.wantKind || resp.Status != tt.wantStatus {
				t.Errorf("body: got %+v", resp)
			}
		})
	}

	grid := decode[[]pixel.Cell](t, env.do(t, http.MethodGet, "/v1/grid", "", nil))
	if len(grid) != 0 {
		t.Errorf("rejected writes mutated grid: %+v", grid)
	}
}

func TestPlacePixel_RateLimited(t *testing.T) {
	env := newTestEnv(t, 50, 30*time.Second)
	tok := env.token(t, "u1")

	if w := env.do(t, http.MethodPost, "/v1/grid/pixel", tok, map[string]any{"x": 1, "y": 1, "color": "#000000"}); w.Code != http.StatusCreated {
		t.Fatalf("first write: %d %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodPost, "/v1/grid/pixel", tok, map[string]any{"x": 2, "y": 2, "color": "#FFFFFF"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want 429\nbody: %s", w.Code, w.Body.String())
	}
	ra, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || ra < 29 || ra > 30 {
		t.Errorf("Retry-After: got %q", w.Header().Get("Retry-After"))
	}
	resp := decode[apiError](t, w)
	if resp.Kind != pixel.KindRateLimited || resp.RetryAfterSeconds != ra {
		t.Errorf("body: got %+v", resp)
	}

	// Another identity is unaffected.
	if w := env.do(t, http.MethodPost, "/v1/grid/pixel", env.token(t, "u2"), map[string]any{"x": 2, "y": 2, "color": "#FFFFFF"}); w.Code != http.StatusCreated {
		t.Errorf("other identity: %d %s", w.Code, w.Body.String())
	}
}

func TestGetGridConfig(t *testing.T) {
	env := newTestEnv(t, 50, 30*time.Second)
	w := env.do(t, http.MethodGet, "/v1/grid/config", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	cfg := decode[GridConfig](t, w)
	if cfg.Size != 50 || cfg.CooldownSeconds != 30 || cfg.DefaultColor != pixel.DefaultColor {
		t.Errorf("got %+v", cfg)
	}
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t, 50, time.Millisecond)
	for i, id := range []string{"a", "b", "c"} {
		w := env.do(t, http.MethodPost, "/v1/grid/pixel", env.token(t, id), map[string]any{"x": i + 1, "y": 1, "color": "#00FF00"})
		if w.Code != http.StatusCreated {
			t.Fatalf("write %s: %d", id, w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/v1/grid/history?limit=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}
	events := decode[[]pixel.PlacementEvent](t, w)
	if len(events) != 2 || events[0].WriterID != "c" || events[1].WriterID != "b" {
		t.Errorf("got %+v", events)
	}

	if w := env.do(t, http.MethodGet, "/v1/grid/history?limit=0", "", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("limit=0: got %d, want 422", w.Code)
	}
}

func TestGetHistory_LogDown(t *testing.T) {
	env := newTestEnv(t, 50, time.Second)
	env.log.err = errors.New("stream unavailable")

	w := env.do(t, http.MethodGet, "/v1/grid/history", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", w.Code)
	}
}

func TestGetMe(t *testing.T) {
	env := newTestEnv(t, 10, time.Second)

	w := env.do(t, http.MethodGet, "/v1/me", env.token(t, "42"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if id := decode[pixel.Identity](t, w); id.ID != "42" || id.Role != "user" {
		t.Errorf("got %+v", id)
	}

	if w := env.do(t, http.MethodGet, "/v1/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: got %d, want 401", w.Code)
	}
}
