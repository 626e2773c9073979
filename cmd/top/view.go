package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"bonsai.sim/internal/observerproto"
	"bonsai.sim/internal/sim/voxel"
)

// view is a top-down projection of the world: one screen cell per (x, y) column, terrain by
// its highest solid block and cells by column density.
type view struct {
	ox, oy int

	frame observerproto.FrameMsg
	grid  *voxel.Grid
	tops  []voxel.Block

	statsOnly bool
	status    string
}

func (v *view) setGrid(g *voxel.Grid) {
	if g == nil || g == v.grid {
		return
	}
	v.grid = g
	v.tops = make([]voxel.Block, g.Size.X*g.Size.Y)
	for y := 0; y < g.Size.Y; y++ {
		for x := 0; x < g.Size.X; x++ {
			top := voxel.Air
			for z := g.Size.Z - 1; z >= 0; z-- {
				if b := g.At(voxel.Vec3i{X: x, Y: y, Z: z}); b != voxel.Air {
					top = b
					break
				}
			}
			v.tops[x+y*g.Size.X] = top
		}
	}
}

func (v *view) pan(dx, dy int) {
	v.ox += dx
	v.oy += dy
	if v.ox < 0 {
		v.ox = 0
	}
	if v.oy < 0 {
		v.oy = 0
	}
	if v.grid != nil {
		v.ox = min(v.ox, max(0, v.grid.Size.X-1))
		v.oy = min(v.oy, max(0, v.grid.Size.Y-1))
	}
}

var terrainStyle = map[voxel.Block]tcell.Style{
	voxel.Bedrock: tcell.StyleDefault.Background(tcell.ColorDimGray),
	voxel.Soil:    tcell.StyleDefault.Background(tcell.ColorSaddleBrown),
	voxel.Water:   tcell.StyleDefault.Background(tcell.ColorNavy),
	voxel.Air:     tcell.StyleDefault,
}

// densityGlyph maps a column's cell count to a glyph.
func densityGlyph(n int) rune {
	switch {
	case n <= 0:
		return ' '
	case n == 1:
		return '·'
	case n < 4:
		return '∘'
	case n < 8:
		return '○'
	default:
		return '●'
	}
}

func (v *view) draw(s tcell.Screen) {
	s.Clear()
	w, h := s.Size()

	st := v.frame.Stats
	header := fmt.Sprintf("tick %d  pop %d  born %d  starved %d  fused %d  fell %d",
		v.frame.Tick, st.Population, st.Born, st.Starved, st.Fused, st.Fell)
	if v.frame.Truncated {
		header += "  (truncated)"
	}
	drawText(s, 0, 0, w, header, tcell.StyleDefault.Bold(true))
	footer := "q quit  arrows pan  s stats-only"
	if v.status != "" {
		footer = v.status
	}
	drawText(s, 0, h-1, w, footer, tcell.StyleDefault.Foreground(tcell.ColorGray))

	if v.grid == nil || v.statsOnly {
		return
	}
	rows := h - 2
	cols := w
	size := v.grid.Size

	density := make([]int, cols*rows)
	for _, c := range v.frame.Cells {
		sx := int(c.P[0]) - v.ox
		sy := int(c.P[1]) - v.oy
		if sx < 0 || sy < 0 || sx >= cols || sy >= rows {
			continue
		}
		density[sx+sy*cols]++
	}

	for sy := 0; sy < rows; sy++ {
		y := v.oy + sy
		if y >= size.Y {
			break
		}
		for sx := 0; sx < cols; sx++ {
			x := v.ox + sx
			if x >= size.X {
				break
			}
			style := terrainStyle[v.tops[x+y*size.X]].Foreground(tcell.ColorLightGreen)
			s.SetContent(sx, sy+1, densityGlyph(density[sx+sy*cols]), nil, style)
		}
	}
}

func drawText(s tcell.Screen, x, y, maxW int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= maxW {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
