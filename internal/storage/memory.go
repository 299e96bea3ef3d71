package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// MemoryStore is a process-local GridStore. It backs STORE_BACKEND=memory
// and has no durability at all.
type MemoryStore struct {
	mu    sync.RWMutex
	cells map[pixel.Coord]pixel.Cell
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cells: make(map[pixel.Coord]pixel.Cell),
		now:   time.Now,
	}
}

func (s *MemoryStore) ReadAll(ctx context.Context) ([]pixel.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cells := make([]pixel.Cell, 0, len(s.cells))
	for _, c := range s.cells {
		cells = append(cells, c)
	}
	return cells, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, x, y int, color pixel.Color, writerID string) (pixel.Cell, error) {
	if err := ctx.Err(); err != nil {
		return pixel.Cell{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coord := pixel.Coord{X: x, Y: y}
	prev := s.cells[coord]
	c := pixel.Cell{
		X:         x,
		Y:         y,
		Color:     color,
		WriterID:  writerID,
		Version:   prev.Version + 1,
		UpdatedAt: s.now(),
	}
	s.cells[coord] = c
	return c, nil
}

func (s *MemoryStore) Prefill(ctx context.Context, size int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for y := 1; y <= size; y++ {
		for x := 1; x <= size; x++ {
			coord := pixel.Coord{X: x, Y: y}
			if _, ok := s.cells[coord]; ok {
				continue
			}
			s.cells[coord] = pixel.Cell{X: x, Y: y, Color: pixel.DefaultColor, UpdatedAt: now}
		}
	}
	return nil
}
