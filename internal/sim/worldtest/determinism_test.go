package worldtest

import (
	"testing"

	"bonsai.sim/internal/sim/terrain"
)

func TestDeterminism_SameSeedSameDigest(t *testing.T) {
	tu := SmallTuning(terrain.PresetValley, 42, 2000)
	h1 := NewHarness(t, tu)
	h2 := NewHarness(t, tu)

	if d1, d2 := h1.W.StateDigest(), h2.W.StateDigest(); d1 != d2 {
		t.Fatalf("initial digest mismatch: %s vs %s", d1, d2)
	}

	for i := 0; i < 100; i++ {
		h1.Step()
		h2.Step()
		if h1.Digests[i] != h2.Digests[i] {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", i, h1.Digests[i], h2.Digests[i])
		}
		if h1.Stats[i] != h2.Stats[i] {
			t.Fatalf("stats mismatch at tick %d: %+v vs %+v", i, h1.Stats[i], h2.Stats[i])
		}
	}
}

func TestDeterminism_DifferentSeedsDiverge(t *testing.T) {
	h1 := NewHarness(t, SmallTuning(terrain.PresetValley, 1, 500))
	h2 := NewHarness(t, SmallTuning(terrain.PresetValley, 2, 500))
	if h1.W.StateDigest() == h2.W.StateDigest() {
		t.Fatalf("different seeds produced identical worlds")
	}
}
