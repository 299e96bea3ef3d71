package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// ServerConfig mirrors GET /v1/grid/config.
type ServerConfig struct {
	Size            int         `json:"size"`
	CooldownSeconds float64     `json:"cooldown_seconds"`
	DefaultColor    pixel.Color `json:"default_color"`
}

type errorBody struct {
	Status            int        `json:"status"`
	Kind              pixel.Kind `json:"kind"`
	Message           string     `json:"message"`
	RetryAfterSeconds int        `json:"retry_after_seconds"`
}

// Client talks to one pixelgrid server and keeps a Reconciler in step with it.
type Client struct {
	base           *url.URL
	http           *http.Client
	dialer         *websocket.Dialer
	token          string
	rec            *Reconciler
	reconnectDelay time.Duration
	logger         *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithToken(token string) Option         { return func(c *Client) { c.token = token } }
func WithLogger(l *slog.Logger) Option      { return func(c *Client) { c.logger = l } }

// WithReconnectDelay sets the pause between feed reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, rec *Reconciler, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme must be http or https, got %q", u.Scheme)
	}
	c := &Client{
		base:           u,
		http:           &http.Client{Timeout: 10 * time.Second},
		dialer:         websocket.DefaultDialer,
		rec:            rec,
		reconnectDelay: 2 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Reconciler() *Reconciler { return c.rec }

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) feedURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/v1/grid/feed"
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) Config(ctx context.Context) (ServerConfig, error) {
	var cfg ServerConfig
	err := c.getJSON(ctx, "/v1/grid/config", &cfg)
	return cfg, err
}

// Grid reads every persisted cell.
func (c *Client) Grid(ctx context.Context) ([]pixel.Cell, error) {
	var cells []pixel.Cell
	if err := c.getJSON(ctx, "/v1/grid", &cells); err != nil {
		return nil, err
	}
	return cells, nil
}

// Place paints (x, y) optimistically, then settles the guess with the
// server's answer. Failures are returned as *PlaceError.
func (c *Client) Place(ctx context.Context, x, y int, color string) (pixel.Cell, error) {
	normalized, err := pixel.ParseColor(color)
	if err != nil {
		return pixel.Cell{}, &PlaceError{Kind: pixel.KindInvalidArgument, Message: err.Error()}
	}

	tok := c.rec.Optimistic(x, y, normalized)
	cell, err := c.post(ctx, x, y, normalized)
	if err != nil {
		c.rec.Reject(tok)
		return pixel.Cell{}, err
	}
	c.rec.Confirm(tok, cell)
	return cell, nil
}

func (c *Client) post(ctx context.Context, x, y int, color pixel.Color) (pixel.Cell, error) {
	payload, err := json.Marshal(map[string]any{"x": x, "y": y, "color": color})
	if err != nil {
		return pixel.Cell{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/grid/pixel"), bytes.NewReader(payload))
	if err != nil {
		return pixel.Cell{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pixel.Cell{}, &PlaceError{Kind: pixel.KindStoreUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var cell pixel.Cell
		if err := json.NewDecoder(resp.Body).Decode(&cell); err != nil {
			return pixel.Cell{}, fmt.Errorf("decode placed cell: %w", err)
		}
		return cell, nil
	}
	return pixel.Cell{}, placeError(resp)
}

func placeError(resp *http.Response) *PlaceError {
	pe := &PlaceError{Status: resp.StatusCode}

	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		pe.Kind = body.Kind
		pe.Message = body.Message
		pe.RetryAfter = time.Duration(body.RetryAfterSeconds) * time.Second
	}
	if pe.RetryAfter == 0 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			pe.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if pe.Kind == "" {
		pe.Kind = kindForStatus(resp.StatusCode)
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}
	return pe
}

func kindForStatus(status int) pixel.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return pixel.KindUnauthenticated
	case status == http.StatusTooManyRequests:
		return pixel.KindRateLimited
	case status == http.StatusServiceUnavailable:
		return pixel.KindStoreUnavailable
	case status >= 400 && status < 500:
		return pixel.KindInvalidArgument
	default:
		return pixel.KindInternal
	}
}

// Run keeps the feed connected until ctx is done, resyncing the reconciler
// on every (re)connect. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("feed disconnected, reconnecting", "error", err, "delay", c.reconnectDelay)

		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ErrFeedLagged is returned by a feed session the server closed for falling behind.
var ErrFeedLagged = errors.New("feed lagged")

func (c *Client) runOnce(ctx context.Context) error {
	c.rec.BeginSync()

	conn, _, err := c.dialer.DialContext(ctx, c.feedURL(), nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readFeed(conn) }()

	cells, err := c.Grid(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	c.rec.LoadSnapshot(cells)
	c.logger.Debug("feed synced", "cells", len(cells))

	return <-readErr
}

func (c *Client) readFeed(conn *websocket.Conn) error {
	for {
		var ev pixel.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
				return ErrFeedLagged
			}
			return err
		}
		if ev.Type == pixel.EventPixelUpdated {
			c.rec.Apply(ev.Data)
		}
	}
}
