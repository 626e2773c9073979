// Package terrain builds block grids and initial populations. Everything is a pure function of
// the preset, the world size and the seed, so a world can be regenerated for replays.
package terrain

import (
	"fmt"
	"math"

	"bonsai.sim/internal/sim/voxel"
	"bonsai.sim/internal/sim/world/logic/mathx"
)

const (
	PresetFlat     = "flat"
	PresetValley   = "valley"
	PresetCreek    = "creek"
	PresetIslands  = "islands"
	PresetCellLoad = "cellload"
)

// Presets lists the known preset names.
func Presets() []string {
	return []string{PresetFlat, PresetValley, PresetCreek, PresetIslands, PresetCellLoad}
}

// Generate returns the grid for a preset.
func Generate(preset string, size voxel.Vec3i, seed int64) (*voxel.Grid, error) {
	g, err := voxel.NewGrid(size, voxel.Air)
	if err != nil {
		return nil, err
	}
	switch preset {
	case PresetFlat:
		bedrockFloor(g)
	case PresetValley:
		valley(g, seed)
	case PresetCreek:
		valley(g, seed)
		flood(g, int(float64(size.Z)*0.32))
	case PresetIslands:
		bedrockFloor(g)
		islands(g, seed)
	case PresetCellLoad:
		// Air only.
	default:
		return nil, fmt.Errorf("unknown terrain preset %q", preset)
	}
	return g, nil
}

func bedrockFloor(g *voxel.Grid) {
	for y := 0; y < g.Size.Y; y++ {
		for x := 0; x < g.Size.X; x++ {
			g.Set(voxel.Vec3i{X: x, Y: y, Z: 0}, voxel.Bedrock)
		}
	}
}

// valley lays soil under a height field centred on 30% of the world height.
func valley(g *voxel.Grid, seed int64) {
	avg := float64(g.Size.Z) * 0.3
	field := heightField(seed, g.Size.X, g.Size.Y)
	for y := 0; y < g.Size.Y; y++ {
		for x := 0; x < g.Size.X; x++ {
			h := field[x+y*g.Size.X]*0.3 + avg
			for z := 0; z < g.Size.Z; z++ {
				p := voxel.Vec3i{X: x, Y: y, Z: z}
				switch {
				case z == 0:
					g.Set(p, voxel.Bedrock)
				case float64(z) < h:
					g.Set(p, voxel.Soil)
				}
			}
		}
	}
}

// flood turns air below the sea level into water.
func flood(g *voxel.Grid, sea int) {
	for z := 1; z < sea && z < g.Size.Z; z++ {
		for y := 0; y < g.Size.Y; y++ {
			for x := 0; x < g.Size.X; x++ {
				p := voxel.Vec3i{X: x, Y: y, Z: z}
				if g.At(p) == voxel.Air {
					g.Set(p, voxel.Water)
				}
			}
		}
	}
}

var octaves = [...]int{2, 4, 8, 16, 32}

// heightField sums value noise over several octaves; each octave's amplitude equals its scale.
// The expected value of every sample is 0.
func heightField(seed int64, sx, sy int) []float64 {
	out := make([]float64, sx*sy)
	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			out[x+y*sx] = mathx.Signed(mathx.Hash2(seed, x, y)) * 0.1
		}
	}
	for i, scale := range octaves {
		s := seed + int64(i+1)*7919
		amp := float64(scale)
		for y := 0; y < sy; y++ {
			iy, ty := y/scale, float64(y%scale)/float64(scale)
			for x := 0; x < sx; x++ {
				ix, tx := x/scale, float64(x%scale)/float64(scale)
				v00 := mathx.Signed(mathx.Hash2(s, ix, iy))
				v10 := mathx.Signed(mathx.Hash2(s, ix+1, iy))
				v01 := mathx.Signed(mathx.Hash2(s, ix, iy+1))
				v11 := mathx.Signed(mathx.Hash2(s, ix+1, iy+1))
				v := mathx.Lerp(mathx.Lerp(v00, v10, tx), mathx.Lerp(v01, v11, tx), ty)
				out[x+y*sx] += v * amp
			}
		}
	}
	return out
}

// islands scatters soil blobs in the upper half of the world.
func islands(g *voxel.Grid, seed int64) {
	const scale = 8
	lo := g.Size.Z / 2
	for z := lo; z < g.Size.Z; z++ {
		// Fade out towards the band edges so blobs float.
		band := float64(z-lo) / math.Max(1, float64(g.Size.Z-lo))
		edge := 1 - math.Abs(band*2-1)
		for y := 0; y < g.Size.Y; y++ {
			for x := 0; x < g.Size.X; x++ {
				if noise3(seed, x, y, z, scale)*edge > 0.35 {
					g.Set(voxel.Vec3i{X: x, Y: y, Z: z}, voxel.Soil)
				}
			}
		}
	}
}

// noise3 is trilinear value noise in [-1, 1).
func noise3(seed int64, x, y, z, scale int) float64 {
	ix, iy, iz := x/scale, y/scale, z/scale
	tx := float64(x%scale) / float64(scale)
	ty := float64(y%scale) / float64(scale)
	tz := float64(z%scale) / float64(scale)
	at := func(dx, dy, dz int) float64 {
		return mathx.Signed(mathx.Hash3(seed, ix+dx, iy+dy, iz+dz))
	}
	lerpX := func(dy, dz int) float64 { return mathx.Lerp(at(0, dy, dz), at(1, dy, dz), tx) }
	return mathx.Lerp(
		mathx.Lerp(lerpX(0, 0), lerpX(1, 0), ty),
		mathx.Lerp(lerpX(0, 1), lerpX(1, 1), ty),
		tz,
	)
}
