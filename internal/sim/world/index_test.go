package world

import (
	"testing"

	"bonsai.sim/internal/sim/voxel"
)

func TestOccupancy(t *testing.T) {
	o := NewOccupancy(voxel.Vec3i{X: 5, Y: 4, Z: 3})
	p := voxel.Vec3i{X: 4, Y: 3, Z: 2}
	if o.Has(p) {
		t.Fatalf("fresh occupancy should be empty")
	}
	o.Set(p)
	o.Set(voxel.Vec3i{X: 0, Y: 0, Z: 0})
	o.Set(voxel.Vec3i{X: -1, Y: 0, Z: 0})
	if !o.Has(p) || o.Count() != 2 {
		t.Fatalf("has=%v count=%d", o.Has(p), o.Count())
	}
	if o.Has(voxel.Vec3i{X: 5, Y: 0, Z: 0}) {
		t.Fatalf("out of bounds reads as occupied")
	}
	o.Clear(p)
	if o.Has(p) || o.Count() != 1 {
		t.Fatalf("clear failed")
	}
	o.Reset()
	if o.Count() != 0 {
		t.Fatalf("reset left %d bits", o.Count())
	}
}

func TestTagIndexFirstWriterWins(t *testing.T) {
	ti := NewTagIndex(voxel.Vec3i{X: 4, Y: 4, Z: 4})
	p := voxel.Vec3i{X: 1, Y: 2, Z: 3}
	if !ti.Put(p, 0, 10, 7) {
		t.Fatalf("first put should succeed")
	}
	if ti.Put(p, 1, 11, 8) {
		t.Fatalf("second put should lose")
	}
	tag, ok := ti.At(p)
	if !ok || tag.Value != 7 || tag.ID != 10 || tag.Slot != 0 {
		t.Fatalf("tag: %+v ok=%v", tag, ok)
	}

	ti.Remove(p, 1)
	if _, ok := ti.At(p); !ok {
		t.Fatalf("remove by a non-owner must not clear the entry")
	}
	ti.Remove(p, 0)
	if _, ok := ti.At(p); ok {
		t.Fatalf("entry should be gone")
	}

	ti.Put(p, 2, 12, 1)
	ti.Reset()
	if _, ok := ti.At(p); ok {
		t.Fatalf("reset should clear touched entries")
	}
	if ti.Put(voxel.Vec3i{X: 4, Y: 0, Z: 0}, 0, 1, 1) {
		t.Fatalf("out of bounds put should fail")
	}
}
