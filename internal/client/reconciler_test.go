package client

import (
	"sync"
	"testing"

	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

type renders struct {
	mu    sync.Mutex
	cells []pixel.Cell
}

func (r *renders) record(c pixel.Cell) {
	r.mu.Lock()
	r.cells = append(r.cells, c)
	r.mu.Unlock()
}

func (r *renders) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

func newTestReconciler() (*Reconciler, *renders) {
	rr := &renders{}
	return NewReconciler(rr.record), rr
}

func cellAt(x, y int, color pixel.Color, version int64) pixel.Cell {
	return pixel.Cell{X: x, Y: y, Color: color, Version: version}
}

func TestReconciler_DefaultColor(t *testing.T) {
	r, _ := newTestReconciler()
	if got := r.Color(3, 3); got != pixel.DefaultColor {
		t.Errorf("got %q, want %q", got, pixel.DefaultColor)
	}
}

func TestReconciler_OptimisticThenConfirm(t *testing.T) {
	r, rr := newTestReconciler()

	tok := r.Optimistic(1, 1, "#FF0000")
	if r.Color(1, 1) != "#FF0000" || !r.Pending(1, 1) {
		t.Fatalf("guess not displayed")
	}
	if rr.count() != 1 {
		t.Errorf("renders after guess: got %d, want 1", rr.count())
	}

	r.Confirm(tok, cellAt(1, 1, "#FF0000", 1))
	if r.Pending(1, 1) {
		t.Error("still pending after confirm")
	}
	// Confirmed color equals the guess, so no re-render.
	if rr.count() != 1 {
		t.Errorf("renders after confirm: got %d, want 1", rr.count())
	}

	// The feed echo of our own write is ignored.
	r.Apply(cellAt(1, 1, "#FF0000", 1))
	if rr.count() != 1 {
		t.Errorf("renders after echo: got %d, want 1", rr.count())
	}
	if r.Cell(1, 1).Version != 1 {
		t.Errorf("version: got %d", r.Cell(1, 1).Version)
	}
}

func TestReconciler_RejectRestoresRollback(t *testing.T) {
	r, rr := newTestReconciler()
	r.Apply(cellAt(2, 2, "#00FF00", 4))

	tok := r.Optimistic(2, 2, "#FF0000")
	r.Reject(tok)

	if got := r.Cell(2, 2); got.Color != "#00FF00" || got.Version != 4 {
		t.Errorf("after reject: got %+v", got)
	}
	if r.Pending(2, 2) {
		t.Error("still pending after reject")
	}
	if rr.count() != 3 {
		t.Errorf("renders: got %d, want 3 (apply, guess, rollback)", rr.count())
	}
}

func TestReconciler_RemoteDuringPendingOnlyUpdatesRollback(t *testing.T) {
	r, _ := newTestReconciler()

	tok := r.Optimistic(5, 5, "#FF0000")
	r.Apply(cellAt(5, 5, "#0000FF", 7))

	if r.Color(5, 5) != "#FF0000" {
		t.Errorf("guess should stay displayed, got %q", r.Color(5, 5))
	}

	r.Reject(tok)
	if got := r.Cell(5, 5); got.Color != "#0000FF" || got.Version != 7 {
		t.Errorf("rollback should be the newer remote cell, got %+v", got)
	}
}

func TestReconciler_ConfirmOlderThanRemoteKeepsNewest(t *testing.T) {
	r, _ := newTestReconciler()

	tok := r.Optimistic(5, 5, "#FF0000")
	// Someone else committed after us and the feed delivered it first.
	r.Apply(cellAt(5, 5, "#0000FF", 9))
	r.Confirm(tok, cellAt(5, 5, "#FF0000", 8))

	if got := r.Cell(5, 5); got.Color != "#0000FF" || got.Version != 9 {
		t.Errorf("got %+v, want the v9 cell", got)
	}
}

func TestReconciler_SupersededGuess(t *testing.T) {
	r, _ := newTestReconciler()

	first := r.Optimistic(1, 1, "#111111")
	second := r.Optimistic(1, 1, "#222222")

	// Settling the older token leaves the newer guess on screen.
	r.Reject(first)
	if r.Color(1, 1) != "#222222" || !r.Pending(1, 1) {
		t.Fatalf("newer guess lost after stale reject")
	}
	r.Confirm(second, cellAt(1, 1, "#222222", 1))
	if r.Color(1, 1) != "#222222" || r.Pending(1, 1) {
		t.Errorf("got %q pending=%v", r.Color(1, 1), r.Pending(1, 1))
	}

	// Rejecting after a supersede rolls back to the original server state.
	third := r.Optimistic(1, 1, "#333333")
	fourth := r.Optimistic(1, 1, "#444444")
	r.Confirm(third, cellAt(1, 1, "#333333", 2))
	r.Reject(fourth)
	if got := r.Cell(1, 1); got.Color != "#333333" || got.Version != 2 {
		t.Errorf("got %+v, want confirmed v2", got)
	}
}

func TestReconciler_StaleRemoteIgnored(t *testing.T) {
	r, rr := newTestReconciler()
	r.Apply(cellAt(1, 1, "#AAAAAA", 3))
	r.Apply(cellAt(1, 1, "#BBBBBB", 2))

	if r.Color(1, 1) != "#AAAAAA" {
		t.Errorf("stale event applied: %q", r.Color(1, 1))
	}
	if rr.count() != 1 {
		t.Errorf("renders: got %d, want 1", rr.count())
	}
}

func TestReconciler_SyncBuffersUntilSnapshot(t *testing.T) {
	r, _ := newTestReconciler()
	r.BeginSync()

	r.Apply(cellAt(1, 1, "#000001", 5))
	r.Apply(cellAt(2, 2, "#000002", 1))
	if r.Color(1, 1) != pixel.DefaultColor {
		t.Fatal("event applied during sync")
	}

	r.LoadSnapshot([]pixel.Cell{
		cellAt(1, 1, "#00000A", 4),
		cellAt(2, 2, "#00000B", 3),
		cellAt(3, 3, "#00000C", 1),
	})

	if r.Syncing() {
		t.Error("still syncing after snapshot")
	}
	// (1,1): buffered v5 is newer than snapshot v4.
	if r.Color(1, 1) != "#000001" {
		t.Errorf("(1,1): got %q", r.Color(1, 1))
	}
	// (2,2): buffered v1 predates snapshot v3.
	if r.Color(2, 2) != "#00000B" {
		t.Errorf("(2,2): got %q", r.Color(2, 2))
	}
	if r.Color(3, 3) != "#00000C" {
		t.Errorf("(3,3): got %q", r.Color(3, 3))
	}
}

func TestReconciler_SnapshotKeepsPendingGuess(t *testing.T) {
	r, _ := newTestReconciler()
	r.Apply(cellAt(4, 4, "#123456", 1))

	tok := r.Optimistic(4, 4, "#FF0000")
	r.BeginSync()
	r.LoadSnapshot([]pixel.Cell{cellAt(4, 4, "#654321", 2)})

	if r.Color(4, 4) != "#FF0000" {
		t.Errorf("guess replaced by snapshot: %q", r.Color(4, 4))
	}
	r.Reject(tok)
	if r.Color(4, 4) != "#654321" {
		t.Errorf("rollback should come from snapshot, got %q", r.Color(4, 4))
	}
}

func TestReconciler_SnapshotClearsVanishedCells(t *testing.T) {
	r, rr := newTestReconciler()
	r.Apply(cellAt(9, 9, "#ABCDEF", 1))

	r.BeginSync()
	r.LoadSnapshot(nil)

	if r.Color(9, 9) != pixel.DefaultColor {
		t.Errorf("got %q, want default", r.Color(9, 9))
	}
	if rr.count() != 2 {
		t.Errorf("renders: got %d, want 2", rr.count())
	}
}

func TestReconciler_OnChangeRunsWithoutLock(t *testing.T) {
	var r *Reconciler
	r = NewReconciler(func(c pixel.Cell) {
		// Re-entering would deadlock if the lock were held.
		_ = r.Color(c.X, c.Y)
	})
	r.Apply(cellAt(1, 1, "#000000", 1))
}
