package world

import (
	"bonsai.sim/internal/sim/cell"
	"bonsai.sim/internal/sim/vm"
	"bonsai.sim/internal/sim/voxel"
)

type deathCause uint8

const (
	causeStarved deathCause = iota + 1
	causeFused
	causeFell
)

// tickEnv is the view of the world handed to cell programs during the VM pass.
type tickEnv struct{ w *World }

func (e tickEnv) InBounds(p voxel.Vec3i) bool        { return e.w.grid.InBounds(p) }
func (e tickEnv) BlockAt(p voxel.Vec3i) voxel.Block  { return e.w.grid.At(p) }
func (e tickEnv) Occupied(p voxel.Vec3i) bool        { return e.w.occ.Has(p) }
func (e tickEnv) TagAt(p voxel.Vec3i) (vm.Tag, bool) { return e.w.tags.At(p) }
func (e tickEnv) Claim(p voxel.Vec3i)                { e.w.occ.Set(p) }

// kill frees the cell's voxel and tag entry for the rest of the tick.
func (w *World) kill(slot int, cause deathCause, stats *TickStats) {
	if w.dead[slot] {
		return
	}
	c := &w.cells[slot]
	w.dead[slot] = true
	w.occ.Clear(c.PI)
	w.tags.Remove(c.PI, slot)
	switch cause {
	case causeStarved:
		stats.Starved++
	case causeFused:
		stats.Fused++
	case causeFell:
		stats.Fell++
	}
}

// target resolves an effect's addressee, or nil if it is gone.
func (w *World) target(t vm.Tag) *cell.Cell {
	if t.Slot < 0 || t.Slot >= len(w.cells) || w.dead[t.Slot] {
		return nil
	}
	c := &w.cells[t.Slot]
	if c.ID != t.ID {
		return nil
	}
	return c
}

func (w *World) applyEffect(slot int, eff vm.Effect, stats *TickStats) {
	switch eff.Kind {
	case vm.EffectDeath:
		w.kill(slot, causeStarved, stats)
		return
	case vm.EffectBirth:
		w.births = append(w.births, eff.Child)
		return
	}

	if w.dead[slot] {
		return
	}
	self := &w.cells[slot]

	switch eff.Kind {
	case vm.EffectShare:
		other := w.target(eff.Target)
		if other == nil {
			return
		}
		from, to := other, self
		if eff.Variant {
			from, to = self, other
		}
		transferEnergy(from, to, w.cfg.ShareQuantum)

	case vm.EffectForce:
		other := w.target(eff.Target)
		if other == nil {
			return
		}
		dir := cell.Center(other.PI).Sub(cell.Center(self.PI))
		if dir.Len() == 0 {
			return
		}
		impulse := dir.Normalize().Mul(w.cfg.ForceImpulse)
		if eff.Variant {
			impulse = impulse.Mul(-1)
		}
		// Repel pushes other along dir and self against it; attract reverses both.
		other.DP = other.DP.Add(impulse)
		self.DP = self.DP.Sub(impulse)

	case vm.EffectFuse:
		other := w.target(eff.Target)
		if other == nil {
			return
		}
		self.AddEpsilon(other.Epsilon)
		copy(self.Bank1(), other.Bank0())
		w.kill(eff.Target.Slot, causeFused, stats)

	case vm.EffectLight:
		if w.grid.ClearAbove(self.PI) {
			self.AddEpsilon(w.cfg.PhiGain)
			self.Result = true
		} else {
			self.Result = false
		}
	}
}

// transferEnergy moves up to quantum epsilon without overflowing the receiver.
func transferEnergy(from, to *cell.Cell, quantum uint8) {
	amount := quantum
	if from.Epsilon < amount {
		amount = from.Epsilon
	}
	if room := cell.MaxEpsilon - to.Epsilon; room < amount {
		amount = room
	}
	from.Epsilon -= amount
	to.Epsilon += amount
}
