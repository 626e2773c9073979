package voxel

import (
	"crypto/sha256"
	"fmt"
)

// Block is a terrain kind. The numeric value doubles as the block selected by a 2-bit register
// index in cell programs, so the order is fixed.
type Block uint8

const (
	Bedrock Block = iota
	Soil
	Water
	Air
)

// BlockFromIndex maps a 2-bit register index to the block it keys.
func BlockFromIndex(i uint8) Block { return Block(i & 3) }

func (b Block) String() string {
	switch b {
	case Bedrock:
		return "BEDROCK"
	case Soil:
		return "SOIL"
	case Water:
		return "WATER"
	case Air:
		return "AIR"
	default:
		return fmt.Sprintf("BLOCK(%d)", uint8(b))
	}
}

// Exclusive blocks claim their voxel permanently.
func (b Block) Exclusive() bool { return b == Bedrock }

func (b Block) Opaque() bool { return b == Bedrock || b == Soil }

// Palette lists block names by id.
func Palette() []string {
	return []string{Bedrock.String(), Soil.String(), Water.String(), Air.String()}
}

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) Sub(o Vec3i) Vec3i { return Vec3i{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Axis returns the component for axis 0 (x), 1 (y) or 2 (z).
func (v Vec3i) Axis(a int) int {
	switch a {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// WithAxis returns v with one component replaced.
func (v Vec3i) WithAxis(a, val int) Vec3i {
	switch a {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
	return v
}

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

// Grid is a dense block array stored x-fastest.
type Grid struct {
	Size   Vec3i
	Blocks []Block

	digest      [32]byte
	digestValid bool
}

// NewGrid returns a grid of the given size filled with fill.
func NewGrid(size Vec3i, fill Block) (*Grid, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("grid size must be positive: %v", size)
	}
	blocks := make([]Block, size.X*size.Y*size.Z)
	for i := range blocks {
		blocks[i] = fill
	}
	return &Grid{Size: size, Blocks: blocks}, nil
}

// FromBlocks wraps an existing block slice.
func FromBlocks(size Vec3i, blocks []Block) (*Grid, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("grid size must be positive: %v", size)
	}
	if len(blocks) != size.X*size.Y*size.Z {
		return nil, fmt.Errorf("grid blocks: got %d want %d", len(blocks), size.X*size.Y*size.Z)
	}
	for i, b := range blocks {
		if b > Air {
			return nil, fmt.Errorf("grid blocks: bad block %d at %d", b, i)
		}
	}
	return &Grid{Size: size, Blocks: blocks}, nil
}

func (g *Grid) InBounds(p Vec3i) bool {
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 && p.X < g.Size.X && p.Y < g.Size.Y && p.Z < g.Size.Z
}

func (g *Grid) index(p Vec3i) int {
	return p.X + p.Y*g.Size.X + p.Z*g.Size.X*g.Size.Y
}

// At returns the block at p. Coordinates outside the grid read as Air.
func (g *Grid) At(p Vec3i) Block {
	if !g.InBounds(p) {
		return Air
	}
	return g.Blocks[g.index(p)]
}

// Set is for generators; blocks are immutable once a world owns the grid.
func (g *Grid) Set(p Vec3i, b Block) {
	if !g.InBounds(p) {
		return
	}
	g.Blocks[g.index(p)] = b
	g.digestValid = false
}

// ExclusiveSet lists every voxel claimed by terrain, in index order.
func (g *Grid) ExclusiveSet() []Vec3i {
	var out []Vec3i
	for z := 0; z < g.Size.Z; z++ {
		for y := 0; y < g.Size.Y; y++ {
			for x := 0; x < g.Size.X; x++ {
				p := Vec3i{X: x, Y: y, Z: z}
				if g.Blocks[g.index(p)].Exclusive() {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// ClearAbove reports whether every voxel strictly above p transmits light.
func (g *Grid) ClearAbove(p Vec3i) bool {
	for z := p.Z + 1; z < g.Size.Z; z++ {
		if g.At(Vec3i{X: p.X, Y: p.Y, Z: z}).Opaque() {
			return false
		}
	}
	return true
}

func (g *Grid) Digest() [32]byte {
	if !g.digestValid {
		h := sha256.New()
		raw := make([]byte, len(g.Blocks))
		for i, b := range g.Blocks {
			raw[i] = byte(b)
		}
		h.Write(raw)
		copy(g.digest[:], h.Sum(nil))
		g.digestValid = true
	}
	return g.digest
}

// Count returns how many voxels hold b.
func (g *Grid) Count(b Block) int {
	n := 0
	for _, v := range g.Blocks {
		if v == b {
			n++
		}
	}
	return n
}
