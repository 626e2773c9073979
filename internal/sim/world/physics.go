package world

import (
	"math"

	"bonsai.sim/internal/sim/cell"
	"bonsai.sim/internal/sim/voxel"
)

// integrate applies gravity, soil sticking and drag, then moves P by DP.
func (w *World) integrate(c *cell.Cell) {
	c.DP[2] -= w.cfg.Gravity

	if w.grid.At(c.PI) == voxel.Soil {
		for a := 0; a < 3; a++ {
			f := c.P[a] - math.Floor(c.P[a])
			if f >= 0.5 {
				c.DP[a] += w.cfg.Stick
			} else {
				c.DP[a] -= w.cfg.Stick
			}
		}
	}

	c.DP = c.DP.Mul(w.cfg.Dissipation)
	for a := 0; a < 3; a++ {
		c.DP[a] = clampSpeed(c.DP[a], w.cfg.MaxSpeed)
	}
	c.P = c.P.Add(c.DP)
}

func clampSpeed(v, max float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > max:
		return max
	case v < -max:
		return -max
	default:
		return v
	}
}

// resolve turns the integrated position into an occupancy-respecting one. Axes are handled x, y,
// z in turn; each candidate voxel differs from the running PI on a single axis, so the voxel a
// cell ends up in has always been checked against the occupancy index.
func (w *World) resolve(c *cell.Cell) {
	next := cell.Floor(c.P)
	from := c.PI
	cur := from
	for a := 0; a < 3; a++ {
		want := next.Axis(a)
		have := cur.Axis(a)
		if want == have {
			continue
		}
		cand := cur.WithAxis(a, want)
		if w.occ.Has(cand) {
			if want < have {
				c.P[a] = float64(have)
			} else {
				c.P[a] = math.Nextafter(float64(have+1), math.Inf(-1))
			}
			c.DP[a] = 0
			continue
		}
		cur = cand
	}
	if cur != from {
		w.occ.Set(cur)
		w.occ.Clear(from)
		c.PI = cur
	}
}
