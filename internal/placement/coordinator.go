// Package placement applies pixel writes: validate, rate-limit, persist, then
// fan out to the history log and the live feed.
package placement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ryanbastic/go-pixelgrid/internal/metrics"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
	"github.com/ryanbastic/go-pixelgrid/internal/ratelimit"
	"github.com/ryanbastic/go-pixelgrid/internal/storage"
)

// Recorder receives committed placements for the history log. Record must
// not block.
type Recorder interface {
	Record(ev pixel.PlacementEvent)
}

// Publisher receives committed cells for the live feed. Publish must not block.
type Publisher interface {
	Publish(c pixel.Cell)
}

// Coordinator serves pixel writes and grid reads for one size×size grid.
type Coordinator struct {
	grid      storage.GridStore
	limiter   ratelimit.Limiter
	recorder  Recorder
	publisher Publisher
	size      int
	cooldown  time.Duration
	logger    *slog.Logger

	// One lock per coordinate, indexed by pixel.Coord.Index.
	locks []sync.Mutex
}

// New creates a Coordinator. cooldown is informational; enforcement belongs
// to limiter.
func New(
	grid storage.GridStore,
	limiter ratelimit.Limiter,
	recorder Recorder,
	publisher Publisher,
	size int,
	cooldown time.Duration,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		grid:      grid,
		limiter:   limiter,
		recorder:  recorder,
		publisher: publisher,
		size:      size,
		cooldown:  cooldown,
		logger:    logger,
		locks:     make([]sync.Mutex, size*size),
	}
}

func (c *Coordinator) Size() int               { return c.size }
func (c *Coordinator) Cooldown() time.Duration { return c.cooldown }

// PlacePixel writes p on behalf of id and returns the committed cell.
//
// Rejections carry no side effects, except that a store failure after the
// limiter accepted still consumes the caller's cooldown slot.
func (c *Coordinator) PlacePixel(ctx context.Context, p pixel.Placement, id pixel.Identity) (pixel.Cell, error) {
	cell, err := c.place(ctx, p, id)
	metrics.ObservePlacement(result(err))
	return cell, err
}

func (c *Coordinator) place(ctx context.Context, p pixel.Placement, id pixel.Identity) (pixel.Cell, error) {
	if id.ID == "" {
		return pixel.Cell{}, fmt.Errorf("%w: missing identity", pixel.ErrUnauthenticated)
	}

	coord := pixel.Coord{X: p.X, Y: p.Y}
	if !coord.InBounds(c.size) {
		return pixel.Cell{}, fmt.Errorf("%w: coordinates %s outside 1..%d", pixel.ErrInvalidArgument, coord, c.size)
	}
	color, err := pixel.ParseColor(p.Color)
	if err != nil {
		return pixel.Cell{}, err
	}

	dec, err := c.limiter.Reserve(ctx, id.ID)
	if err != nil {
		c.logger.Error("rate limiter unavailable", "writer_id", id.ID, "error", err)
		return pixel.Cell{}, fmt.Errorf("%w: %w", pixel.ErrStoreUnavailable, err)
	}
	if !dec.Allowed {
		return pixel.Cell{}, &pixel.RateLimitedError{RetryAfter: dec.RetryAfter}
	}

	mu := &c.locks[coord.Index(c.size)]
	mu.Lock()
	defer mu.Unlock()

	// Once the statement is sent it may commit; a caller hanging up must not
	// stop the cell from being recorded and published. The store bounds the
	// query with its own timeout.
	cell, err := c.grid.Upsert(context.WithoutCancel(ctx), coord.X, coord.Y, color, id.ID)
	if err != nil {
		c.logger.Error("pixel upsert failed",
			"x", coord.X,
			"y", coord.Y,
			"writer_id", id.ID,
			"error", err,
		)
		return pixel.Cell{}, fmt.Errorf("%w: %w", pixel.ErrStoreUnavailable, err)
	}

	c.recorder.Record(pixel.EventFromCell(cell))
	c.publisher.Publish(cell)

	c.logger.Debug("pixel placed",
		"x", cell.X,
		"y", cell.Y,
		"color", cell.Color,
		"writer_id", cell.WriterID,
		"version", cell.Version,
	)
	return cell, nil
}

// Grid returns every persisted cell. Coordinates never written may be absent.
func (c *Coordinator) Grid(ctx context.Context) ([]pixel.Cell, error) {
	cells, err := c.grid.ReadAll(ctx)
	if err != nil {
		c.logger.Error("grid read failed", "error", err)
		return nil, fmt.Errorf("%w: %w", pixel.ErrStoreUnavailable, err)
	}
	return cells, nil
}

func result(err error) string {
	switch {
	case err == nil:
		return metrics.ResultPlaced
	case errors.Is(err, pixel.ErrUnauthenticated):
		return metrics.ResultUnauthenticated
	case errors.Is(err, pixel.ErrInvalidArgument):
		return metrics.ResultInvalid
	case errors.Is(err, pixel.ErrRateLimited):
		return metrics.ResultRateLimited
	default:
		return metrics.ResultStoreUnavailable
	}
}
