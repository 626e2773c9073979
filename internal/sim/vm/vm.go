// Package vm executes cell programs, one instruction per cell per tick.
//
// The VM only sees the world through Env. It mutates the executing cell directly and reports
// anything that touches another cell or the world as an Effect, which the world applies after the
// whole population has run.
package vm

import (
	"bonsai.sim/internal/sim/cell"
	"bonsai.sim/internal/sim/voxel"
)

const (
	// AlphaGain is the energy collected by get-alpha while standing in water.
	AlphaGain = 16
)

// Tag identifies a cell through the per-tick tag index.
type Tag struct {
	Value uint8
	ID    uint64
	Slot  int
}

// Env is the read view a cell program has of the world during a tick.
type Env interface {
	InBounds(p voxel.Vec3i) bool
	BlockAt(p voxel.Vec3i) voxel.Block
	Occupied(p voxel.Vec3i) bool
	TagAt(p voxel.Vec3i) (Tag, bool)
	// Claim marks p occupied for the rest of the tick.
	Claim(p voxel.Vec3i)
}

type EffectKind uint8

const (
	EffectNone EffectKind = iota
	EffectDeath
	EffectBirth
	EffectShare
	EffectForce
	EffectFuse
	EffectLight
)

func (k EffectKind) String() string {
	switch k {
	case EffectNone:
		return "none"
	case EffectDeath:
		return "death"
	case EffectBirth:
		return "birth"
	case EffectShare:
		return "share"
	case EffectForce:
		return "force"
	case EffectFuse:
		return "fuse"
	case EffectLight:
		return "light"
	default:
		return "unknown"
	}
}

// Effect is the single side effect a cell produced this tick.
type Effect struct {
	Kind EffectKind

	// Target is the addressed neighbour (share, force, fuse).
	Target Tag
	// Variant is push for share and attract for force.
	Variant bool

	// Child is set for EffectBirth; its ID is assigned by the world.
	Child *cell.Cell
}

// Step runs one tick of c's program.
func Step(c *cell.Cell, env Env) Effect {
	if c.Epsilon == 0 {
		if c.Decay < cell.MaxDecay {
			c.Decay++
		}
		if c.Decay >= cell.MaxDecay {
			return Effect{Kind: EffectDeath}
		}
		return Effect{}
	}

	before := c.Epsilon
	c.Decay = 0
	if c.Ext {
		c.SubEpsilon(2)
	} else {
		c.SubEpsilon(1)
	}

	inst := c.Program[c.IP&cell.IPMask]
	dst, src := Operands(inst)
	var eff Effect

	switch Decode(inst) {
	case OpDivide:
		eff = divide(c, env, dst, before)
	case OpCheck:
		c.Result = env.BlockAt(c.PI) == voxel.BlockFromIndex(dst)
	case OpShare:
		// src is constant across 0x08..0x0b; the ext flag picks the direction.
		eff = lookupTagged(c, env, dst, EffectShare, c.Ext)
	case OpForce:
		eff = lookupTagged(c, env, dst, EffectForce, src&1 == 1)
	case OpFuse:
		eff = lookupTagged(c, env, dst, EffectFuse, false)
		if eff.Kind == EffectFuse {
			c.Ext = true
		}
	case OpDrain:
		c.Epsilon = 0
	case OpClone:
		c.CloneBank()
		c.Ext = true
	case OpReduce:
		c.ClearBank1()
		c.Ext = false
	case OpFlip:
		c.Result = !c.Result
	case OpGetAlpha:
		if env.BlockAt(c.PI) == voxel.Water {
			c.AddEpsilon(AlphaGain)
			c.Result = true
		} else {
			c.Result = false
		}
	case OpGetPhi:
		eff = Effect{Kind: EffectLight}
	case OpJmpc:
		if src&1 == 0 || c.Result {
			jumpToMatch(c, c.Regs[dst])
			return eff
		}
	case OpJmpa:
		if src&1 == 0 || c.Result {
			c.IP = c.Regs[dst] & cell.IPMask
			return eff
		}
	case OpJmpr:
		if src&1 == 0 || c.Result {
			c.IP = (c.IP + c.Regs[dst]) & cell.IPMask
			return eff
		}
	case OpMovi:
		c.Regs[dst] = (inst >> 2) & 0xf
	case OpInspect:
		c.Regs[dst] = c.Epsilon
	case OpNot:
		c.Regs[dst] = ^c.Regs[dst]
	case OpSwap:
		v := c.Regs[dst]
		c.Regs[dst] = v<<4 | v>>4
	case OpAnd:
		c.Regs[dst] &= c.Regs[src]
	case OpOr:
		c.Regs[dst] |= c.Regs[src]
	case OpAdd:
		sum := uint16(c.Regs[dst]) + uint16(c.Regs[src])
		c.Regs[dst] = uint8(sum)
		c.Result = sum&0x100 != 0
	case OpMov:
		c.Regs[dst] = c.Regs[src]
	case OpSt:
		c.Program[address(c, c.Regs[dst])] = c.Regs[src]
	case OpLd:
		c.Regs[dst] = c.Program[address(c, c.Regs[src])]
	case OpNearby:
		nearby(c, env, dst, src)
	default:
		// Reserved ranges.
	}

	c.IP = (c.IP + 1) & cell.IPMask
	return eff
}

// address is a 7-bit bank0 address unless ext widens it to the whole program.
func address(c *cell.Cell, r uint8) int {
	if c.Ext {
		return int(r)
	}
	return int(r & cell.IPMask)
}

func jumpToMatch(c *cell.Cell, want uint8) {
	for i := uint8(1); i < cell.BankSize; i++ {
		addr := (c.IP + i) & cell.IPMask
		if c.Program[addr] == want {
			c.IP = addr
			c.Result = true
			return
		}
	}
	c.Result = false
}

func divide(c *cell.Cell, env Env, dst uint8, before uint8) Effect {
	if !c.Ext {
		c.Result = false
		return Effect{}
	}
	c.Ext = false

	want := voxel.BlockFromIndex(dst)
	at, ok := Scan(env, c.PI, func(p voxel.Vec3i) bool {
		return !env.Occupied(p) && env.BlockAt(p) == want
	})
	if !ok {
		c.Result = false
		return Effect{}
	}

	// The split is taken from the energy held before this tick's cost.
	childShare := before - before/2
	cost := before - c.Epsilon
	c.Epsilon = before / 2
	c.SubEpsilon(cost)

	child := &cell.Cell{
		P:       cell.Center(at),
		DP:      c.DP,
		PI:      at,
		Epsilon: childShare,
	}
	copy(child.Program[:cell.BankSize], c.Bank1())
	c.ClearBank1()

	env.Claim(at)
	c.Result = true
	return Effect{Kind: EffectBirth, Child: child}
}

func lookupTagged(c *cell.Cell, env Env, dst uint8, kind EffectKind, variant bool) Effect {
	want := c.Regs[dst]
	var found Tag
	_, ok := Scan(env, c.PI, func(p voxel.Vec3i) bool {
		t, ok := env.TagAt(p)
		if ok && t.Value == want {
			found = t
			return true
		}
		return false
	})
	c.Result = ok
	if !ok {
		return Effect{}
	}
	return Effect{Kind: kind, Target: found, Variant: variant}
}

func nearby(c *cell.Cell, env Env, dst, src uint8) {
	skip := voxel.BlockFromIndex(src)
	var found Tag
	_, ok := Scan(env, c.PI, func(p voxel.Vec3i) bool {
		if env.BlockAt(p) == skip {
			return false
		}
		t, ok := env.TagAt(p)
		if ok {
			found = t
		}
		return ok
	})
	c.Result = ok
	if ok {
		c.Regs[dst] = found.Value
	}
}
