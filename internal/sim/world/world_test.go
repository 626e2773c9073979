package world

import (
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"bonsai.sim/internal/sim/cell"
	"bonsai.sim/internal/sim/voxel"
)

func testGrid(t *testing.T, edit func(g *voxel.Grid)) *voxel.Grid {
	t.Helper()
	g, err := voxel.NewGrid(voxel.Vec3i{X: 8, Y: 8, Z: 8}, voxel.Air)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	if edit != nil {
		edit(g)
	}
	return g
}

func newTestWorld(t *testing.T, g *voxel.Grid, cells ...cell.Cell) *World {
	t.Helper()
	w, err := New(DefaultConfig(g.Size), g, cells)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func mustCell(t *testing.T, w *World, id uint64) cell.Cell {
	t.Helper()
	c, ok := w.Cell(id)
	if !ok {
		t.Fatalf("cell %d missing", id)
	}
	return c
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestGravityAndDrag(t *testing.T) {
	w := newTestWorld(t, testGrid(t, nil), cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, nil, 0))
	w.Step()

	c := mustCell(t, w, 1)
	if !near(c.DP[2], -0.009) {
		t.Fatalf("dp.z: got %v want -0.009", c.DP[2])
	}
	if !near(c.P[2], 4.491) {
		t.Fatalf("p.z: got %v want 4.491", c.P[2])
	}
	if c.DP[0] != 0 || c.DP[1] != 0 {
		t.Fatalf("horizontal dp changed: %v", c.DP)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSoilSticksTowardVoxelCentre(t *testing.T) {
	g := testGrid(t, func(g *voxel.Grid) { g.Set(voxel.Vec3i{X: 4, Y: 4, Z: 4}, voxel.Soil) })
	w := newTestWorld(t, g, cell.New(1, mgl64.Vec3{4.25, 4.75, 4.5}, nil, 0))
	w.Step()

	c := mustCell(t, w, 1)
	if !near(c.DP[0], -0.002*0.9) {
		t.Fatalf("dp.x: got %v", c.DP[0])
	}
	if !near(c.DP[1], 0.002*0.9) {
		t.Fatalf("dp.y: got %v", c.DP[1])
	}
	if !near(c.DP[2], (-0.01+0.002)*0.9) {
		t.Fatalf("dp.z: got %v", c.DP[2])
	}
}

func TestBedrockClampsApproachingAxis(t *testing.T) {
	g := testGrid(t, func(g *voxel.Grid) { g.Set(voxel.Vec3i{X: 5, Y: 4, Z: 4}, voxel.Bedrock) })
	c := cell.New(1, mgl64.Vec3{4.9, 4.5, 4.5}, nil, 0)
	c.DP = mgl64.Vec3{0.5, 0, 0}
	w := newTestWorld(t, g, c)
	w.Step()

	got := mustCell(t, w, 1)
	if got.PI != (voxel.Vec3i{X: 4, Y: 4, Z: 4}) {
		t.Fatalf("pi: got %v", got.PI)
	}
	if got.P[0] >= 5 || got.P[0] < 4.999999 {
		t.Fatalf("p.x should sit on the voxel edge, got %v", got.P[0])
	}
	if got.DP[0] != 0 {
		t.Fatalf("dp.x should be zeroed, got %v", got.DP[0])
	}
	if !near(got.DP[2], -0.009) || !near(got.P[2], 4.491) {
		t.Fatalf("z should integrate normally: p=%v dp=%v", got.P, got.DP)
	}
}

func TestBedrockClampsNegativeApproach(t *testing.T) {
	g := testGrid(t, func(g *voxel.Grid) { g.Set(voxel.Vec3i{X: 4, Y: 4, Z: 4}, voxel.Bedrock) })
	c := cell.New(1, mgl64.Vec3{5.1, 4.5, 4.5}, nil, 0)
	c.DP = mgl64.Vec3{-0.5, 0, 0}
	w := newTestWorld(t, g, c)
	w.Step()

	got := mustCell(t, w, 1)
	if got.P[0] != 5 || got.DP[0] != 0 || got.PI.X != 5 {
		t.Fatalf("clamp: p=%v dp=%v pi=%v", got.P, got.DP, got.PI)
	}
}

func TestSpeedIsCappedPerAxis(t *testing.T) {
	c := cell.New(1, mgl64.Vec3{1.5, 4.5, 4.5}, nil, 0)
	c.DP = mgl64.Vec3{50, 0, 0}
	w := newTestWorld(t, testGrid(t, nil), c)
	w.Step()

	got := mustCell(t, w, 1)
	if got.DP[0] != 0.99 {
		t.Fatalf("dp.x: got %v want 0.99", got.DP[0])
	}
	if !near(got.P[0], 2.49) || got.PI.X != 2 {
		t.Fatalf("x should advance by one voxel: p=%v pi=%v", got.P, got.PI)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNaNVelocityIsZeroed(t *testing.T) {
	w := newTestWorld(t, testGrid(t, nil), cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, nil, 0))
	w.DebugMutateCell(1, func(c *cell.Cell) { c.DP[1] = math.NaN() })
	w.Step()

	got := mustCell(t, w, 1)
	if got.DP[1] != 0 || got.P[1] != 4.5 {
		t.Fatalf("nan axis: p=%v dp=%v", got.P, got.DP)
	}
	if !near(got.DP[2], -0.009) {
		t.Fatalf("other axes should integrate normally: dp=%v", got.DP)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

// A diagonal move whose single-axis candidates are both free can still end in an occupied
// corner; the y candidate is taken from the voxel the x move already reached.
func TestDiagonalMoveIntoOccupiedCorner(t *testing.T) {
	g := testGrid(t, func(g *voxel.Grid) { g.Set(voxel.Vec3i{X: 5, Y: 5, Z: 4}, voxel.Bedrock) })
	c := cell.New(1, mgl64.Vec3{4.9, 4.9, 4.5}, nil, 0)
	c.DP = mgl64.Vec3{0.3, 0.3, 0}
	w := newTestWorld(t, g, c)
	w.Step()

	got := mustCell(t, w, 1)
	if got.PI != (voxel.Vec3i{X: 5, Y: 4, Z: 4}) {
		t.Fatalf("pi: got %v want (5,4,4)", got.PI)
	}
	if got.P[1] >= 5 || got.P[1] < 4.999999 || got.DP[1] != 0 {
		t.Fatalf("y should be clamped to the voxel edge: p=%v dp=%v", got.P, got.DP)
	}
	if !near(got.DP[0], 0.27) {
		t.Fatalf("x should move freely: dp=%v", got.DP)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCellsExcludeEachOther(t *testing.T) {
	below := cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, nil, 0)
	above := cell.New(2, mgl64.Vec3{4.5, 4.5, 5.5}, nil, 0)
	above.DP = mgl64.Vec3{0, 0, -0.9}
	w := newTestWorld(t, testGrid(t, nil), below, above)
	w.Step()

	got := mustCell(t, w, 2)
	if got.PI.Z != 5 || got.P[2] != 5 || got.DP[2] != 0 {
		t.Fatalf("falling cell not stopped: p=%v dp=%v pi=%v", got.P, got.DP, got.PI)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFallingThroughFloorRetiresCell(t *testing.T) {
	w := newTestWorld(t, testGrid(t, nil), cell.New(1, mgl64.Vec3{4.5, 4.5, 0.005}, nil, 0))
	w.Step()

	if w.Population() != 0 {
		t.Fatalf("population: got %d want 0", w.Population())
	}
	if st := w.LastStats(); st.Fell != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestStarvedCellDiesWhenDecaySaturates(t *testing.T) {
	g := testGrid(t, func(g *voxel.Grid) { g.Set(voxel.Vec3i{X: 4, Y: 4, Z: 3}, voxel.Bedrock) })
	w := newTestWorld(t, g, cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, nil, 0))
	for i := 0; i < 254; i++ {
		w.Step()
	}
	c := mustCell(t, w, 1)
	if c.Decay != 254 {
		t.Fatalf("decay: got %d want 254", c.Decay)
	}

	w.Step()
	if _, ok := w.Cell(1); ok {
		t.Fatalf("cell should be removed on the tick decay saturates")
	}
	if st := w.LastStats(); st.Starved != 1 || st.Population != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestInitiallySaturatedDecayDies(t *testing.T) {
	c := cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, nil, 0)
	c.Decay = cell.MaxDecay
	w := newTestWorld(t, testGrid(t, nil), c)
	w.Step()

	if _, ok := w.Cell(1); ok {
		t.Fatalf("cell with saturated decay should die on its first tick")
	}
	if st := w.LastStats(); st.Starved != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestDivideThroughStep(t *testing.T) {
	parent := cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, []byte{0x03}, 10) // divide into air
	parent.Ext = true
	for i := range parent.Bank1() {
		parent.Program[cell.BankSize+i] = byte(i + 1)
	}
	w := newTestWorld(t, testGrid(t, nil), parent)
	w.Step()

	if w.Population() != 2 {
		t.Fatalf("population: got %d want 2", w.Population())
	}
	p := mustCell(t, w, 1)
	if p.Epsilon != 3 || !p.Result || p.Ext {
		t.Fatalf("parent: eps=%d result=%v ext=%v", p.Epsilon, p.Result, p.Ext)
	}
	for i, b := range p.Bank1() {
		if b != 0 {
			t.Fatalf("parent bank1[%d] = %d, want zeroed", i, b)
		}
	}

	child := mustCell(t, w, 2)
	if child.Epsilon != 5 {
		t.Fatalf("child epsilon: got %d want 5", child.Epsilon)
	}
	if child.PI != (voxel.Vec3i{X: 3, Y: 3, Z: 3}) || child.P != (mgl64.Vec3{3.5, 3.5, 3.5}) {
		t.Fatalf("child placement: p=%v pi=%v", child.P, child.PI)
	}
	for i, b := range child.Bank0() {
		if b != byte(i+1) {
			t.Fatalf("child bank0[%d] = %d want %d", i, b, i+1)
		}
	}
	if st := w.LastStats(); st.Born != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if w.NextID() != 3 {
		t.Fatalf("next id: got %d want 3", w.NextID())
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConcurrentDividersNeverShareAVoxel(t *testing.T) {
	// Both parents see the same single free air voxel; only the first claims it.
	g := testGrid(t, func(g *voxel.Grid) {
		for i := range g.Blocks {
			g.Blocks[i] = voxel.Soil
		}
		g.Set(voxel.Vec3i{X: 4, Y: 5, Z: 4}, voxel.Air)
	})
	a := cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, []byte{0x03}, 10)
	a.Ext = true
	b := cell.New(2, mgl64.Vec3{4.5, 6.5, 4.5}, []byte{0x03}, 10)
	b.Ext = true
	w := newTestWorld(t, g, a, b)
	w.Step()

	if w.Population() != 3 {
		t.Fatalf("population: got %d want 3", w.Population())
	}
	if got := mustCell(t, w, 2); got.Result {
		t.Fatalf("second divider should have failed")
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func tagged(id uint64, p mgl64.Vec3, inst byte, tag uint8) cell.Cell {
	c := cell.New(id, p, []byte{inst}, 50)
	c.Regs[0] = tag
	return c
}

func TestShareMovesEnergy(t *testing.T) {
	a := tagged(1, mgl64.Vec3{4.5, 4.5, 4.5}, 0x08, 7) // share r0, pull
	b := tagged(2, mgl64.Vec3{5.5, 4.5, 4.5}, 0x00, 7)
	w := newTestWorld(t, testGrid(t, nil), a, b)
	w.Step()

	if got := mustCell(t, w, 1).Epsilon; got != 49+8 {
		t.Fatalf("receiver epsilon: got %d", got)
	}
	if got := mustCell(t, w, 2).Epsilon; got != 49-8 {
		t.Fatalf("donor epsilon: got %d", got)
	}
}

func TestSharePushWithExt(t *testing.T) {
	a := tagged(1, mgl64.Vec3{4.5, 4.5, 4.5}, 0x08, 7)
	a.Ext = true
	b := tagged(2, mgl64.Vec3{5.5, 4.5, 4.5}, 0x00, 7)
	b.Epsilon = 250
	w := newTestWorld(t, testGrid(t, nil), a, b)
	w.Step()

	// b has room for 6 after paying its own instruction.
	if got := mustCell(t, w, 2).Epsilon; got != cell.MaxEpsilon {
		t.Fatalf("receiver epsilon: got %d", got)
	}
	if got := mustCell(t, w, 1).Epsilon; got != 48-6 {
		t.Fatalf("donor epsilon: got %d", got)
	}
}

func TestForceRepelsAndAttracts(t *testing.T) {
	for _, tc := range []struct {
		name string
		inst byte
		sign float64
	}{
		{"repel", 0x10, 1},
		{"attract", 0x0c, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := tagged(1, mgl64.Vec3{4.5, 4.5, 4.5}, tc.inst, 3)
			b := tagged(2, mgl64.Vec3{5.5, 4.5, 4.5}, 0x00, 3)
			w := newTestWorld(t, testGrid(t, nil), a, b)
			w.Step()

			want := tc.sign * 0.05 * 0.9
			if got := mustCell(t, w, 2).DP[0]; !near(got, want) {
				t.Fatalf("target dp.x: got %v want %v", got, want)
			}
			if got := mustCell(t, w, 1).DP[0]; !near(got, -want) {
				t.Fatalf("source dp.x: got %v want %v", got, -want)
			}
		})
	}
}

func TestFuseAbsorbsNeighbour(t *testing.T) {
	a := tagged(1, mgl64.Vec3{4.5, 4.5, 4.5}, 0x14, 9)
	b := tagged(2, mgl64.Vec3{4.5, 5.5, 4.5}, 0x00, 9)
	for i := range b.Bank0() {
		b.Program[i] = 0xaa
	}
	w := newTestWorld(t, testGrid(t, nil), a, b)
	w.Step()

	if w.Population() != 1 {
		t.Fatalf("population: got %d want 1", w.Population())
	}
	got := mustCell(t, w, 1)
	if got.Epsilon != 49+49 || !got.Ext || !got.Result {
		t.Fatalf("fuser: eps=%d ext=%v result=%v", got.Epsilon, got.Ext, got.Result)
	}
	for i, v := range got.Bank1() {
		if v != 0xaa {
			t.Fatalf("bank1[%d] = %#x want 0xaa", i, v)
		}
	}
	if st := w.LastStats(); st.Fused != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestFusedCellCannotActLater(t *testing.T) {
	// b would share with a, but a fuses b first.
	a := tagged(1, mgl64.Vec3{4.5, 4.5, 4.5}, 0x14, 9)
	b := tagged(2, mgl64.Vec3{4.5, 5.5, 4.5}, 0x08, 9)
	w := newTestWorld(t, testGrid(t, nil), a, b)
	w.Step()

	if got := mustCell(t, w, 1).Epsilon; got != 98 {
		t.Fatalf("epsilon: got %d want 98", got)
	}
}

func TestGetPhiNeedsClearSky(t *testing.T) {
	open := newTestWorld(t, testGrid(t, nil), cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, []byte{0x25}, 50))
	open.Step()
	if c := mustCell(t, open, 1); c.Epsilon != 49+4 || !c.Result {
		t.Fatalf("open sky: eps=%d result=%v", c.Epsilon, c.Result)
	}

	g := testGrid(t, func(g *voxel.Grid) { g.Set(voxel.Vec3i{X: 4, Y: 4, Z: 7}, voxel.Soil) })
	shaded := newTestWorld(t, g, cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, []byte{0x25}, 50))
	shaded.Step()
	if c := mustCell(t, shaded, 1); c.Epsilon != 49 || c.Result {
		t.Fatalf("shaded: eps=%d result=%v", c.Epsilon, c.Result)
	}
}

func TestNewRejectsBadPopulations(t *testing.T) {
	g := testGrid(t, func(g *voxel.Grid) { g.Set(voxel.Vec3i{X: 1, Y: 1, Z: 1}, voxel.Bedrock) })
	cases := []struct {
		name  string
		cells []cell.Cell
		want  string
	}{
		{"duplicate id", []cell.Cell{cell.New(1, mgl64.Vec3{2.5, 2.5, 2.5}, nil, 1), cell.New(1, mgl64.Vec3{3.5, 3.5, 3.5}, nil, 1)}, "duplicate"},
		{"overlap", []cell.Cell{cell.New(1, mgl64.Vec3{2.5, 2.5, 2.5}, nil, 1), cell.New(2, mgl64.Vec3{2.1, 2.9, 2.2}, nil, 1)}, "overlaps"},
		{"bedrock", []cell.Cell{cell.New(1, mgl64.Vec3{1.5, 1.5, 1.5}, nil, 1)}, "overlaps"},
		{"outside", []cell.Cell{cell.New(1, mgl64.Vec3{8.5, 1.5, 1.5}, nil, 1)}, "outside"},
		{"nan", []cell.Cell{cell.New(1, mgl64.Vec3{math.NaN(), 1.5, 1.5}, nil, 1)}, "non-finite"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(DefaultConfig(g.Size), g, tc.cells)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err: got %v want %q", err, tc.want)
			}
		})
	}

	if _, err := New(DefaultConfig(voxel.Vec3i{X: 4, Y: 4, Z: 4}), g, nil); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	w := newTestWorld(t, testGrid(t, nil),
		cell.New(1, mgl64.Vec3{2.5, 2.5, 2.5}, nil, 1),
		cell.New(2, mgl64.Vec3{3.5, 3.5, 3.5}, nil, 1),
	)
	if err := w.Validate(); err != nil {
		t.Fatalf("fresh world: %v", err)
	}

	w.DebugMutateCell(2, func(c *cell.Cell) { c.P = mgl64.Vec3{2.5, 2.5, 2.5}; c.PI = cell.Floor(c.P) })
	if err := w.Validate(); err == nil || !strings.Contains(err.Error(), "share voxel") {
		t.Fatalf("expected shared voxel error, got %v", err)
	}

	w.DebugMutateCell(2, func(c *cell.Cell) { c.P = mgl64.Vec3{3.5, 3.5, 3.5} })
	if err := w.Validate(); err == nil || !strings.Contains(err.Error(), "floor") {
		t.Fatalf("expected floor error, got %v", err)
	}
}

func TestSnapshotSinkKeepsLatest(t *testing.T) {
	w := newTestWorld(t, testGrid(t, nil), cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, nil, 9))
	ch := make(chan Snapshot, 1)
	w.SetSnapshotSink(ch)
	for i := 0; i < 3; i++ {
		w.Step()
	}

	snap := <-ch
	if snap.Tick != 3 || snap.Stats.Tick != 2 {
		t.Fatalf("snapshot tick=%d stats.tick=%d", snap.Tick, snap.Stats.Tick)
	}
	if len(snap.Cells) != 1 || snap.Cells[0].ID != 1 || snap.Cells[0].Epsilon != 6 {
		t.Fatalf("cells: %+v", snap.Cells)
	}
	if snap.GridDigest != w.Grid().Digest() {
		t.Fatalf("grid digest mismatch")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected queued snapshot %d", extra.Tick)
	default:
	}
}

type recordingSink struct{ entries []TickLogEntry }

func (r *recordingSink) RecordTick(e TickLogEntry) { r.entries = append(r.entries, e) }

func (r *recordingSink) WriteTick(e TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestSinksSeeEveryTickAndPeriodicDigest(t *testing.T) {
	g := testGrid(t, nil)
	cfg := DefaultConfig(g.Size)
	cfg.DigestEveryTicks = 2
	w, err := New(cfg, g, []cell.Cell{cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, nil, 9)})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	stats := &recordingSink{}
	logs := &recordingSink{}
	w.SetStatsSink(stats)
	w.SetTickLogger(logs)

	var digests []string
	for i := 0; i < 4; i++ {
		_, d := w.StepOnce()
		digests = append(digests, d)
	}
	if len(stats.entries) != 4 || len(logs.entries) != 4 {
		t.Fatalf("entries: stats=%d logs=%d", len(stats.entries), len(logs.entries))
	}
	for i, e := range stats.entries {
		if e.Tick != uint64(i) {
			t.Fatalf("entry %d tick %d", i, e.Tick)
		}
		if (i%2 == 0) != (e.Digest != "") {
			t.Fatalf("entry %d digest %q", i, e.Digest)
		}
		if e.Digest != "" && e.Digest != digests[i] {
			t.Fatalf("entry %d digest mismatch", i)
		}
	}
}

func TestStateDigestTracksState(t *testing.T) {
	mk := func() *World {
		return newTestWorld(t, testGrid(t, nil), cell.New(1, mgl64.Vec3{4.5, 4.5, 4.5}, []byte{0x45, 0x21}, 50))
	}
	a, b := mk(), mk()
	if a.StateDigest() != b.StateDigest() {
		t.Fatalf("equal worlds digest differently")
	}
	for i := 0; i < 10; i++ {
		ta, da := a.StepOnce()
		tb, db := b.StepOnce()
		if ta != tb || da != db {
			t.Fatalf("tick %d: %s vs %s", ta, da, db)
		}
	}
	b.DebugMutateCell(1, func(c *cell.Cell) { c.Regs[3]++ })
	if a.StateDigest() == b.StateDigest() {
		t.Fatalf("digest ignores registers")
	}
}
