package worldtest

import (
	"testing"

	"bonsai.sim/internal/sim/terrain"
	"bonsai.sim/internal/sim/tuning"
	world "bonsai.sim/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Step()/StepFor() advance the world and validate every global invariant after each tick
// - Digests collects the state digest of every stepped tick
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	Digests []string
	Stats   []world.TickStats
}

// SmallTuning is a world small enough for tests but crowded enough that cells interact.
func SmallTuning(preset string, seed int64, cells int) tuning.Tuning {
	t := tuning.Defaults()
	t.WorldSize = [3]int{24, 24, 16}
	t.Terrain = tuning.Terrain{Preset: preset, Seed: seed, Cells: cells}
	return t
}

func NewHarness(t *testing.T, tu tuning.Tuning) *Harness {
	t.Helper()

	w, err := terrain.NewWorld("test", tu)
	if err != nil {
		t.Fatalf("terrain.NewWorld: %v", err)
	}
	return NewHarnessWithWorld(t, w)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
func NewHarnessWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("initial world invalid: %v", err)
	}
	return &Harness{T: t, W: w}
}

// Step advances one tick and fails the test on any invariant violation.
func (h *Harness) Step() world.TickStats {
	h.T.Helper()
	before := h.W.NextID()
	tick, digest := h.W.StepOnce()
	if err := h.W.Validate(); err != nil {
		h.T.Fatalf("tick %d: %v", tick, err)
	}
	if h.W.NextID() < before {
		h.T.Fatalf("tick %d: next id went backwards %d -> %d", tick, before, h.W.NextID())
	}
	st := h.W.LastStats()
	if st.Tick != tick {
		h.T.Fatalf("stats tick %d for stepped tick %d", st.Tick, tick)
	}
	h.Digests = append(h.Digests, digest)
	h.Stats = append(h.Stats, st)
	return st
}

// StepFor steps n ticks.
func (h *Harness) StepFor(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
}
