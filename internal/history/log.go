// Package history keeps an append-only record of accepted placements.
//
// The log lives outside the grid's transactions. Appends are issued by the
// Recorder after a write has committed, and a failing log never affects
// placement outcomes.
package history

import (
	"context"

	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// Log is an append-only store of placement events.
type Log interface {
	Append(ctx context.Context, ev pixel.PlacementEvent) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]pixel.PlacementEvent, error)
}

// Discard is a Log that keeps nothing.
type Discard struct{}

func (Discard) Append(context.Context, pixel.PlacementEvent) error { return nil }

func (Discard) Recent(context.Context, int) ([]pixel.PlacementEvent, error) {
	return []pixel.PlacementEvent{}, nil
}
