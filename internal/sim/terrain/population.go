package terrain

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl64"

	"bonsai.sim/internal/sim/cell"
	"bonsai.sim/internal/sim/tuning"
	"bonsai.sim/internal/sim/voxel"
	"bonsai.sim/internal/sim/world"
	"bonsai.sim/internal/sim/world/logic/mathx"
)

// maxPlacementTries bounds the retries for one cell before it is skipped.
const maxPlacementTries = 8

// Populate scatters up to n cells with random bank0 programs and full energy. Cells never land on
// an exclusive block or on top of each other; ids come from ids in placement order.
func Populate(g *voxel.Grid, n int, seed int64, ids *cell.IDIssuer) []cell.Cell {
	taken := make(map[voxel.Vec3i]struct{}, n)
	out := make([]cell.Cell, 0, n)
	var bank [cell.BankSize]byte

	for i := 0; i < n; i++ {
		for try := 0; try < maxPlacementTries; try++ {
			k := i*maxPlacementTries + try
			p := mgl64.Vec3{
				mathx.Unit(mathx.Hash3(seed, k, 0, 11)) * float64(g.Size.X),
				mathx.Unit(mathx.Hash3(seed, k, 1, 11)) * float64(g.Size.Y),
				mathx.Unit(mathx.Hash3(seed, k, 2, 11)) * float64(g.Size.Z),
			}
			at := cell.Floor(p)
			if !g.InBounds(at) || g.At(at).Exclusive() {
				continue
			}
			if _, ok := taken[at]; ok {
				continue
			}
			taken[at] = struct{}{}

			for j := 0; j < cell.BankSize; j += 8 {
				binary.LittleEndian.PutUint64(bank[j:], mathx.Hash3(seed, k, j, 23))
			}
			out = append(out, cell.New(ids.Issue(), p, bank[:], cell.MaxEpsilon))
			break
		}
	}
	return out
}

// NewWorld generates terrain and population from a tuning file and builds the world.
func NewWorld(id string, t tuning.Tuning) (*world.World, error) {
	size := voxel.Vec3i{X: t.WorldSize[0], Y: t.WorldSize[1], Z: t.WorldSize[2]}
	g, err := Generate(t.Terrain.Preset, size, t.Terrain.Seed)
	if err != nil {
		return nil, err
	}
	var ids cell.IDIssuer
	cells := Populate(g, t.Terrain.Cells, t.Terrain.Seed, &ids)
	return world.New(world.ConfigFromTuning(id, t), g, cells)
}
