package world

import (
	"bonsai.sim/internal/sim/vm"
	"bonsai.sim/internal/sim/voxel"
)

// Occupancy is the set of voxels exclusively claimed by bedrock or a cell. It is a dense bitset
// over the world volume; coordinates outside the world are never occupied.
type Occupancy struct {
	size voxel.Vec3i
	bits []uint64
}

func NewOccupancy(size voxel.Vec3i) *Occupancy {
	n := size.X * size.Y * size.Z
	return &Occupancy{size: size, bits: make([]uint64, (n+63)/64)}
}

func volumeIndex(size, p voxel.Vec3i) (int, bool) {
	if p.X < 0 || p.Y < 0 || p.Z < 0 || p.X >= size.X || p.Y >= size.Y || p.Z >= size.Z {
		return 0, false
	}
	return p.X + p.Y*size.X + p.Z*size.X*size.Y, true
}

func (o *Occupancy) Has(p voxel.Vec3i) bool {
	i, ok := volumeIndex(o.size, p)
	if !ok {
		return false
	}
	return o.bits[i>>6]&(1<<(uint(i)&63)) != 0
}

func (o *Occupancy) Set(p voxel.Vec3i) {
	if i, ok := volumeIndex(o.size, p); ok {
		o.bits[i>>6] |= 1 << (uint(i) & 63)
	}
}

func (o *Occupancy) Clear(p voxel.Vec3i) {
	if i, ok := volumeIndex(o.size, p); ok {
		o.bits[i>>6] &^= 1 << (uint(i) & 63)
	}
}

func (o *Occupancy) Reset() { clear(o.bits) }

// Count returns the number of claimed voxels.
func (o *Occupancy) Count() int {
	n := 0
	for _, w := range o.bits {
		for w != 0 {
			w &= w - 1
			n++
		}
	}
	return n
}

// TagIndex maps a voxel to the cell standing in it and the tag it published at the start of the
// tick. Entries are addressed by table slot; slot+1 is stored so zero means empty.
type TagIndex struct {
	size    voxel.Vec3i
	slots   []int32
	values  []uint8
	ids     []uint64
	touched []int
}

func NewTagIndex(size voxel.Vec3i) *TagIndex {
	n := size.X * size.Y * size.Z
	return &TagIndex{
		size:   size,
		slots:  make([]int32, n),
		values: make([]uint8, n),
		ids:    make([]uint64, n),
	}
}

// Reset clears every entry written since the last reset.
func (t *TagIndex) Reset() {
	for _, i := range t.touched {
		t.slots[i] = 0
	}
	t.touched = t.touched[:0]
}

// Put records a cell at p. The first writer of a voxel keeps it.
func (t *TagIndex) Put(p voxel.Vec3i, slot int, id uint64, value uint8) bool {
	i, ok := volumeIndex(t.size, p)
	if !ok || t.slots[i] != 0 {
		return false
	}
	t.slots[i] = int32(slot + 1)
	t.values[i] = value
	t.ids[i] = id
	t.touched = append(t.touched, i)
	return true
}

func (t *TagIndex) At(p voxel.Vec3i) (vm.Tag, bool) {
	i, ok := volumeIndex(t.size, p)
	if !ok || t.slots[i] == 0 {
		return vm.Tag{}, false
	}
	return vm.Tag{Value: t.values[i], ID: t.ids[i], Slot: int(t.slots[i] - 1)}, true
}

// Remove drops the entry at p if it belongs to slot.
func (t *TagIndex) Remove(p voxel.Vec3i, slot int) {
	i, ok := volumeIndex(t.size, p)
	if !ok || t.slots[i] != int32(slot+1) {
		return
	}
	t.slots[i] = 0
}
