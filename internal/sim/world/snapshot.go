package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"bonsai.sim/internal/sim/voxel"
)

// CellView is the presentation-facing part of a cell.
type CellView struct {
	ID      uint64
	P       mgl64.Vec3
	Epsilon uint8
}

// Snapshot is an immutable copy of the world taken between ticks. Grid points at the world's
// grid, which never changes after construction; consumers remesh when GridDigest changes.
type Snapshot struct {
	WorldID    string
	Tick       uint64
	Size       voxel.Vec3i
	Stats      TickStats
	Cells      []CellView
	GridDigest [32]byte
	Grid       *voxel.Grid
}

// Snapshot copies the cell table. The tick is the number of completed steps.
func (w *World) Snapshot() Snapshot {
	cells := make([]CellView, len(w.cells))
	for i := range w.cells {
		c := &w.cells[i]
		cells[i] = CellView{ID: c.ID, P: c.P, Epsilon: c.Epsilon}
	}
	return Snapshot{
		WorldID:    w.cfg.ID,
		Tick:       w.tick.Load(),
		Size:       w.cfg.Size,
		Stats:      w.last,
		Cells:      cells,
		GridDigest: w.grid.Digest(),
		Grid:       w.grid,
	}
}
