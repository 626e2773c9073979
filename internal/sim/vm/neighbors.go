package vm

import "bonsai.sim/internal/sim/voxel"

// NeighborOffsets is the 26-neighbourhood in scan order: x ascending, then y, then z.
var NeighborOffsets = buildNeighborOffsets()

func buildNeighborOffsets() [26]voxel.Vec3i {
	var out [26]voxel.Vec3i
	n := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out[n] = voxel.Vec3i{X: dx, Y: dy, Z: dz}
				n++
			}
		}
	}
	return out
}

// Scan returns the first in-bounds neighbour of center accepted by match.
func Scan(env Env, center voxel.Vec3i, match func(voxel.Vec3i) bool) (voxel.Vec3i, bool) {
	for _, off := range NeighborOffsets {
		p := center.Add(off)
		if !env.InBounds(p) {
			continue
		}
		if match(p) {
			return p, true
		}
	}
	return voxel.Vec3i{}, false
}
