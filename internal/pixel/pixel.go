package pixel

import (
	"fmt"
	"time"
)

// DefaultColor is the color of every cell that has never been written.
const DefaultColor Color = "#FFFFFF"

// Coord addresses one cell. Both axes are 1-based.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// InBounds reports whether c lies inside a square grid of the given side.
func (c Coord) InBounds(size int) bool {
	return c.X >= 1 && c.X <= size && c.Y >= 1 && c.Y <= size
}

// Index maps c to a dense offset in [0, size*size). c must be in bounds.
func (c Coord) Index(size int) int {
	return (c.Y-1)*size + (c.X - 1)
}

// Cell is the current state of one grid position.
type Cell struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Color     Color     `json:"color"`
	WriterID  string    `json:"writer_id,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Cell) Coord() Coord {
	return Coord{X: c.X, Y: c.Y}
}

// Placement is a request to paint one cell.
type Placement struct {
	X     int
	Y     int
	Color string
}

// PlacementEvent is one accepted write as recorded by the history log.
type PlacementEvent struct {
	ID       string    `json:"id"`
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Color    Color     `json:"color"`
	WriterID string    `json:"writer_id"`
	PlacedAt time.Time `json:"placed_at"`
}

// EventFromCell builds the history entry for a freshly upserted cell. The
// caller assigns ID.
func EventFromCell(c Cell) PlacementEvent {
	return PlacementEvent{
		X:        c.X,
		Y:        c.Y,
		Color:    c.Color,
		WriterID: c.WriterID,
		PlacedAt: c.UpdatedAt,
	}
}

// Identity is a verified caller as issued by the auth collaborator.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// EventPixelUpdated is the only event type carried on the live feed.
const EventPixelUpdated = "pixel_updated"

// Event is the live-feed envelope.
type Event struct {
	Type string `json:"type"`
	Data Cell   `json:"data"`
}
