package world

import (
	"fmt"

	"bonsai.sim/internal/sim/cell"
	"bonsai.sim/internal/sim/voxel"
)

// Validate checks the global invariants and returns the first violation. It is a consistency
// oracle for tests and debug runs, not part of the tick.
func (w *World) Validate() error {
	size := w.cfg.Size
	if w.grid.Size != size || len(w.grid.Blocks) != size.X*size.Y*size.Z {
		return fmt.Errorf("grid is %v with %d blocks, config says %v", w.grid.Size, len(w.grid.Blocks), size)
	}

	next := w.ids.Next()
	ids := make(map[uint64]struct{}, len(w.cells))
	claimed := make(map[voxel.Vec3i]uint64, len(w.cells))
	for i := range w.cells {
		c := &w.cells[i]
		if c.ID >= next {
			return fmt.Errorf("cell %d: id not below next id %d", c.ID, next)
		}
		if _, dup := ids[c.ID]; dup {
			return fmt.Errorf("cell %d: duplicate id", c.ID)
		}
		ids[c.ID] = struct{}{}

		for a := 0; a < 3; a++ {
			if !finite(c.P[a]) || !finite(c.DP[a]) {
				return fmt.Errorf("cell %d: non-finite state p=%v dp=%v", c.ID, c.P, c.DP)
			}
		}
		if fl := cell.Floor(c.P); fl != c.PI {
			return fmt.Errorf("cell %d: pi %v != floor(p) %v (p=%v)", c.ID, c.PI, fl, c.P)
		}
		if !w.grid.InBounds(c.PI) {
			return fmt.Errorf("cell %d: pi %v outside world %v", c.ID, c.PI, size)
		}
		if c.IP > cell.IPMask {
			return fmt.Errorf("cell %d: ip %d outside bank0", c.ID, c.IP)
		}
		if other, ok := claimed[c.PI]; ok {
			return fmt.Errorf("cells %d and %d share voxel %v", other, c.ID, c.PI)
		}
		claimed[c.PI] = c.ID
		if w.grid.At(c.PI).Exclusive() {
			return fmt.Errorf("cell %d shares voxel %v with %s", c.ID, c.PI, w.grid.At(c.PI))
		}
	}
	return nil
}

// MustValidate panics on the first invariant violation.
func (w *World) MustValidate() {
	if err := w.Validate(); err != nil {
		panic("world invariant violated: " + err.Error())
	}
}
