package voxel

import "testing"

func TestGridAtOutOfBoundsIsAir(t *testing.T) {
	g, err := NewGrid(Vec3i{X: 2, Y: 3, Z: 4}, Soil)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if got := g.At(Vec3i{X: 1, Y: 2, Z: 3}); got != Soil {
		t.Fatalf("in-bounds block: got %v", got)
	}
	for _, p := range []Vec3i{{X: -1}, {X: 2}, {Y: 3}, {Z: -1}, {Z: 4}} {
		if got := g.At(p); got != Air {
			t.Fatalf("At(%v)=%v want AIR", p, got)
		}
	}
}

func TestGridSetAndExclusiveSet(t *testing.T) {
	g, _ := NewGrid(Vec3i{X: 3, Y: 3, Z: 3}, Air)
	before := g.Digest()
	g.Set(Vec3i{X: 2, Y: 0, Z: 0}, Bedrock)
	g.Set(Vec3i{X: 0, Y: 1, Z: 2}, Bedrock)
	g.Set(Vec3i{X: 9, Y: 9, Z: 9}, Bedrock)
	if g.Digest() == before {
		t.Fatalf("digest did not change after Set")
	}
	set := g.ExclusiveSet()
	if len(set) != 2 {
		t.Fatalf("ExclusiveSet: got %d want 2", len(set))
	}
	if set[0] != (Vec3i{X: 2}) || set[1] != (Vec3i{X: 0, Y: 1, Z: 2}) {
		t.Fatalf("ExclusiveSet order: %v", set)
	}
}

func TestGridClearAbove(t *testing.T) {
	g, _ := NewGrid(Vec3i{X: 1, Y: 1, Z: 5}, Air)
	g.Set(Vec3i{Z: 1}, Water)
	if !g.ClearAbove(Vec3i{}) {
		t.Fatalf("water should transmit light")
	}
	g.Set(Vec3i{Z: 3}, Soil)
	if g.ClearAbove(Vec3i{}) {
		t.Fatalf("soil should block light")
	}
	if !g.ClearAbove(Vec3i{Z: 3}) {
		t.Fatalf("nothing above the soil voxel")
	}
}

func TestFromBlocksRejectsBadShape(t *testing.T) {
	if _, err := FromBlocks(Vec3i{X: 2, Y: 2, Z: 2}, make([]Block, 7)); err == nil {
		t.Fatalf("expected shape error")
	}
	if _, err := FromBlocks(Vec3i{X: 1, Y: 1, Z: 1}, []Block{9}); err == nil {
		t.Fatalf("expected bad block error")
	}
}

func TestBlockFromIndex(t *testing.T) {
	want := []Block{Bedrock, Soil, Water, Air}
	for i, b := range want {
		if got := BlockFromIndex(uint8(i)); got != b {
			t.Fatalf("BlockFromIndex(%d)=%v want %v", i, got, b)
		}
	}
}
