package cell

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"bonsai.sim/internal/sim/voxel"
	"bonsai.sim/internal/sim/world/logic/mathx"
)

const (
	ProgramSize = 256
	BankSize    = 128
	NumRegs     = 4

	// IPMask keeps the instruction pointer inside bank0.
	IPMask = BankSize - 1

	MaxEpsilon = 0xff
	MaxDecay   = 0xff
)

// Cell is a single agent. P/DP are continuous; PI is the voxel it claims.
type Cell struct {
	ID uint64

	P  mgl64.Vec3
	DP mgl64.Vec3
	PI voxel.Vec3i

	Program [ProgramSize]byte
	Regs    [NumRegs]uint8
	IP      uint8

	Epsilon uint8
	Decay   uint8

	Ext    bool
	Result bool
}

// New places a fresh cell at p with the given bank0 program.
func New(id uint64, p mgl64.Vec3, bank0 []byte, epsilon uint8) Cell {
	c := Cell{
		ID:      id,
		P:       p,
		PI:      Floor(p),
		Epsilon: epsilon,
	}
	copy(c.Program[:BankSize], bank0)
	return c
}

// Floor is the element-wise floor of p.
func Floor(p mgl64.Vec3) voxel.Vec3i {
	return voxel.Vec3i{X: mathx.FloorToInt(p[0]), Y: mathx.FloorToInt(p[1]), Z: mathx.FloorToInt(p[2])}
}

// Center is the continuous centre of voxel v.
func Center(v voxel.Vec3i) mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X) + 0.5, float64(v.Y) + 0.5, float64(v.Z) + 0.5}
}

func (c *Cell) Bank0() []byte { return c.Program[:BankSize] }
func (c *Cell) Bank1() []byte { return c.Program[BankSize:] }

// CloneBank copies bank0 into bank1.
func (c *Cell) CloneBank() { copy(c.Program[BankSize:], c.Program[:BankSize]) }

// ClearBank1 zeroes the reserve bank.
func (c *Cell) ClearBank1() {
	clear(c.Program[BankSize:])
}

// Finite reports whether every position and velocity component is finite.
func (c *Cell) Finite() bool {
	for a := 0; a < 3; a++ {
		if math.IsNaN(c.P[a]) || math.IsInf(c.P[a], 0) || math.IsNaN(c.DP[a]) || math.IsInf(c.DP[a], 0) {
			return false
		}
	}
	return true
}

// Tag is the value neighbours use to address this cell.
func (c *Cell) Tag() uint8 { return c.Regs[0] }

// AddEpsilon adds d saturating at MaxEpsilon and returns the amount actually added.
func (c *Cell) AddEpsilon(d uint8) uint8 {
	room := MaxEpsilon - c.Epsilon
	if d > room {
		d = room
	}
	c.Epsilon += d
	return d
}

// SubEpsilon subtracts d saturating at 0 and returns the amount actually removed.
func (c *Cell) SubEpsilon(d uint8) uint8 {
	if d > c.Epsilon {
		d = c.Epsilon
	}
	c.Epsilon -= d
	return d
}
