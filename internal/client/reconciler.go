// Package client is a Go consumer of the pixelgrid API: a REST and feed
// client, and a Reconciler that keeps a local view consistent with the server
// under optimistic writes.
package client

import (
	"sync"

	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// Token identifies one optimistic write. A later guess for the same
// coordinate supersedes earlier tokens.
type Token struct {
	Coord pixel.Coord
	seq   uint64
}

type pendingWrite struct {
	seq uint64
	// rollback is the newest server state seen for the coordinate while the
	// guess is displayed.
	rollback pixel.Cell
}

// Reconciler holds the client's view of the grid. All methods are safe for
// concurrent use. onChange runs after the displayed color of a cell changes,
// outside the reconciler's lock.
type Reconciler struct {
	mu       sync.Mutex
	view     map[pixel.Coord]pixel.Cell
	pending  map[pixel.Coord]*pendingWrite
	seq      uint64
	syncing  bool
	buffered []pixel.Cell

	onChange func(pixel.Cell)
}

func NewReconciler(onChange func(pixel.Cell)) *Reconciler {
	if onChange == nil {
		onChange = func(pixel.Cell) {}
	}
	return &Reconciler{
		view:     make(map[pixel.Coord]pixel.Cell),
		pending:  make(map[pixel.Coord]*pendingWrite),
		onChange: onChange,
	}
}

// Cell returns the displayed cell at (x, y).
func (r *Reconciler) Cell(x, y int) pixel.Cell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cell(pixel.Coord{X: x, Y: y})
}

// Color returns the displayed color at (x, y).
func (r *Reconciler) Color(x, y int) pixel.Color {
	return r.Cell(x, y).Color
}

// Pending reports whether (x, y) shows an unconfirmed guess.
func (r *Reconciler) Pending(x, y int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[pixel.Coord{X: x, Y: y}]
	return ok
}

func (r *Reconciler) cell(c pixel.Coord) pixel.Cell {
	if cell, ok := r.view[c]; ok {
		return cell
	}
	return pixel.Cell{X: c.X, Y: c.Y, Color: pixel.DefaultColor}
}

// Optimistic displays color at (x, y) before the server has answered.
func (r *Reconciler) Optimistic(x, y int, color pixel.Color) Token {
	var changes []pixel.Cell
	defer func() { r.notify(changes) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	coord := pixel.Coord{X: x, Y: y}
	cur := r.cell(coord)
	r.seq++
	if p, ok := r.pending[coord]; ok {
		p.seq = r.seq
	} else {
		r.pending[coord] = &pendingWrite{seq: r.seq, rollback: cur}
	}

	guess := cur
	guess.Color = color
	changes = r.display(guess, changes)
	return Token{Coord: coord, seq: r.seq}
}

// Confirm settles tok with the cell the server committed.
func (r *Reconciler) Confirm(tok Token, committed pixel.Cell) {
	var changes []pixel.Cell
	defer func() { r.notify(changes) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[tok.Coord]
	if !ok {
		changes = r.applyRemote(committed, changes)
		return
	}
	if committed.Version > p.rollback.Version {
		p.rollback = committed
	}
	if p.seq != tok.seq {
		// A newer guess is still on screen.
		return
	}
	delete(r.pending, tok.Coord)
	changes = r.display(p.rollback, changes)
}

// Reject restores the cell guessed under tok, unless a newer guess replaced it.
func (r *Reconciler) Reject(tok Token) {
	var changes []pixel.Cell
	defer func() { r.notify(changes) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[tok.Coord]
	if !ok || p.seq != tok.seq {
		return
	}
	delete(r.pending, tok.Coord)
	changes = r.display(p.rollback, changes)
}

// Apply merges a feed event. While a sync is in progress it is buffered.
func (r *Reconciler) Apply(remote pixel.Cell) {
	var changes []pixel.Cell
	defer func() { r.notify(changes) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.syncing {
		r.buffered = append(r.buffered, remote)
		return
	}
	changes = r.applyRemote(remote, changes)
}

// BeginSync starts buffering feed events until LoadSnapshot.
func (r *Reconciler) BeginSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncing = true
	r.buffered = nil
}

// Syncing reports whether feed events are being buffered.
func (r *Reconciler) Syncing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncing
}

// LoadSnapshot replaces the view with a full grid read, then replays events
// buffered since BeginSync in arrival order. Pending guesses stay displayed.
func (r *Reconciler) LoadSnapshot(cells []pixel.Cell) {
	var changes []pixel.Cell
	defer func() { r.notify(changes) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := make(map[pixel.Coord]pixel.Cell, len(cells))
	for _, c := range cells {
		snap[c.Coord()] = c
	}

	// Cells that disappeared from the server revert to the default color.
	for coord, old := range r.view {
		if _, ok := snap[coord]; ok {
			continue
		}
		if p, ok := r.pending[coord]; ok {
			p.rollback = pixel.Cell{X: coord.X, Y: coord.Y, Color: pixel.DefaultColor}
			continue
		}
		delete(r.view, coord)
		if old.Color != pixel.DefaultColor {
			changes = append(changes, pixel.Cell{X: coord.X, Y: coord.Y, Color: pixel.DefaultColor})
		}
	}
	for coord, c := range snap {
		if p, ok := r.pending[coord]; ok {
			p.rollback = c
			continue
		}
		changes = r.display(c, changes)
	}

	buffered := r.buffered
	r.buffered = nil
	r.syncing = false
	for _, c := range buffered {
		changes = r.applyRemote(c, changes)
	}
}

func (r *Reconciler) applyRemote(c pixel.Cell, changes []pixel.Cell) []pixel.Cell {
	coord := c.Coord()
	if p, ok := r.pending[coord]; ok {
		if c.Version > p.rollback.Version {
			p.rollback = c
		}
		return changes
	}
	if cur, ok := r.view[coord]; ok && c.Version <= cur.Version {
		return changes
	}
	return r.display(c, changes)
}

// display stores c and records it as a change if its color differs from
// what was shown.
func (r *Reconciler) display(c pixel.Cell, changes []pixel.Cell) []pixel.Cell {
	prev := r.cell(c.Coord())
	r.view[c.Coord()] = c
	if prev.Color != c.Color {
		changes = append(changes, c)
	}
	return changes
}

func (r *Reconciler) notify(changes []pixel.Cell) {
	for _, c := range changes {
		r.onChange(c)
	}
}
