package storage

import (
	"context"

	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// GridStore is the authoritative mapping from coordinate to cell.
type GridStore interface {
	// ReadAll returns every persisted cell. Coordinates never written may be
	// absent; callers treat them as pixel.DefaultColor.
	ReadAll(ctx context.Context) ([]pixel.Cell, error)

	// Upsert creates or overwrites the cell at (x, y) in a single atomic
	// statement and returns the resulting row. Concurrent upserts to the same
	// coordinate resolve by commit order.
	Upsert(ctx context.Context, x, y int, color pixel.Color, writerID string) (pixel.Cell, error)

	// Prefill inserts a default cell for every coordinate of a size×size grid,
	// leaving existing cells untouched.
	Prefill(ctx context.Context, size int) error
}
