package world

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"bonsai.sim/internal/sim/cell"
	"bonsai.sim/internal/sim/tuning"
	"bonsai.sim/internal/sim/vm"
	"bonsai.sim/internal/sim/voxel"
)

type Config struct {
	ID         string
	Size       voxel.Vec3i
	TickRateHz int

	Gravity     float64
	Dissipation float64
	Stick       float64
	// MaxSpeed caps |DP| per axis so a cell never skips a voxel in one tick.
	MaxSpeed float64

	ShareQuantum uint8
	ForceImpulse float64
	PhiGain      uint8

	SnapshotEveryTicks int
	DigestEveryTicks   int
	// ValidateEveryTicks > 0 runs the invariant checker after every Nth tick and panics on a
	// violation.
	ValidateEveryTicks int
}

// DefaultConfig returns the reference constants for a world of the given size.
func DefaultConfig(size voxel.Vec3i) Config {
	return Config{
		ID:                 "world_1",
		Size:               size,
		TickRateHz:         20,
		Gravity:            0.01,
		Dissipation:        0.9,
		Stick:              0.002,
		MaxSpeed:           0.99,
		ShareQuantum:       8,
		ForceImpulse:       0.05,
		PhiGain:            4,
		SnapshotEveryTicks: 1,
	}
}

// ConfigFromTuning maps a tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) Config {
	cfg := DefaultConfig(voxel.Vec3i{X: t.WorldSize[0], Y: t.WorldSize[1], Z: t.WorldSize[2]})
	cfg.ID = id
	cfg.TickRateHz = t.TickRateHz
	cfg.Gravity = t.Physics.Gravity
	cfg.Dissipation = t.Physics.Dissipation
	cfg.Stick = t.Physics.Stick
	cfg.ShareQuantum = uint8(t.Interactions.ShareQuantum)
	cfg.ForceImpulse = t.Interactions.ForceImpulse
	cfg.PhiGain = uint8(t.Interactions.PhiGain)
	cfg.SnapshotEveryTicks = t.SnapshotEveryTicks
	cfg.DigestEveryTicks = t.DigestEveryTicks
	cfg.ValidateEveryTicks = t.ValidateEveryTicks
	return cfg
}

// TickStats counts lifecycle events of one tick.
type TickStats struct {
	Tick       uint64 `json:"tick"`
	Population int    `json:"population"`
	Born       int    `json:"born"`
	Starved    int    `json:"starved"`
	Fused      int    `json:"fused"`
	Fell       int    `json:"fell"`
}

type TickLogEntry struct {
	TickStats
	Digest string `json:"digest,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// World is a single-threaded simulation.
// All state must be accessed only from the goroutine calling Step (or Run).
type World struct {
	cfg     Config
	grid    *voxel.Grid
	bedrock []voxel.Vec3i

	cells []cell.Cell
	ids   cell.IDIssuer

	tick       atomic.Uint64
	population atomic.Int64
	stepNanos  atomic.Int64

	occ  *Occupancy
	tags *TagIndex

	// per-tick scratch
	pending []pendingEffect
	dead    []bool
	births  []*cell.Cell

	last TickStats

	// Optional logger (may be nil). Implemented in internal/persistence/*.
	tickLogger TickLogger
	// Optional stats sink (may be nil), e.g. the sqlite index.
	statsSink StatsSink

	// Optional snapshot sink (may be nil). Publishing never blocks.
	snapshotSink chan Snapshot

	stop chan struct{}
}

type StatsSink interface {
	RecordTick(entry TickLogEntry)
}

type pendingEffect struct {
	slot int
	eff  vm.Effect
}

// New builds a world from a generated grid and initial population. Cell ids must be unique;
// PI is derived from P. The id counter resumes after the largest id.
func New(cfg Config, grid *voxel.Grid, cells []cell.Cell) (*World, error) {
	if grid == nil {
		return nil, fmt.Errorf("world: nil grid")
	}
	if grid.Size != cfg.Size {
		return nil, fmt.Errorf("world: grid size %v does not match config size %v", grid.Size, cfg.Size)
	}
	if cfg.Dissipation <= 0 || cfg.Dissipation > 1 {
		return nil, fmt.Errorf("world: dissipation must be in (0, 1], got %v", cfg.Dissipation)
	}
	if cfg.MaxSpeed <= 0 || cfg.MaxSpeed >= 1 {
		return nil, fmt.Errorf("world: max speed must be in (0, 1), got %v", cfg.MaxSpeed)
	}

	// Warm the digest cache so snapshot consumers only ever read it.
	grid.Digest()

	w := &World{
		cfg:     cfg,
		grid:    grid,
		bedrock: grid.ExclusiveSet(),
		cells:   make([]cell.Cell, 0, len(cells)),
		occ:     NewOccupancy(cfg.Size),
		tags:    NewTagIndex(cfg.Size),
		stop:    make(chan struct{}),
	}
	for _, p := range w.bedrock {
		w.occ.Set(p)
	}

	seen := make(map[uint64]struct{}, len(cells))
	var maxID uint64
	for i, c := range cells {
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("world: duplicate cell id %d", c.ID)
		}
		seen[c.ID] = struct{}{}
		if !c.Finite() {
			return nil, fmt.Errorf("world: cell %d has non-finite state", c.ID)
		}
		c.PI = cell.Floor(c.P)
		c.IP &= cell.IPMask
		if !grid.InBounds(c.PI) {
			return nil, fmt.Errorf("world: cell %d at %v is outside %v", c.ID, c.PI, cfg.Size)
		}
		if w.occ.Has(c.PI) {
			return nil, fmt.Errorf("world: cell %d (#%d) at %v overlaps another entity", c.ID, i, c.PI)
		}
		w.occ.Set(c.PI)
		w.cells = append(w.cells, c)
		if c.ID >= maxID {
			maxID = c.ID
		}
	}
	if len(cells) > 0 {
		w.ids.Resume(maxID + 1)
	}
	w.population.Store(int64(len(w.cells)))
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)       { w.tickLogger = l }
func (w *World) SetStatsSink(s StatsSink)         { w.statsSink = s }
func (w *World) SetSnapshotSink(ch chan Snapshot) { w.snapshotSink = ch }
func (w *World) Config() Config                   { return w.cfg }
func (w *World) CurrentTick() uint64              { return w.tick.Load() }
func (w *World) Population() int                  { return int(w.population.Load()) }
func (w *World) StepDuration() time.Duration      { return time.Duration(w.stepNanos.Load()) }
func (w *World) LastStats() TickStats             { return w.last }
func (w *World) Grid() *voxel.Grid                { return w.grid }
func (w *World) NextID() uint64                   { return w.ids.Next() }

// IssueID hands out the next cell id. Ids are never reused.
func (w *World) IssueID() uint64 { return w.ids.Issue() }

// Cells returns a copy of the cell table in table order.
func (w *World) Cells() []cell.Cell {
	out := make([]cell.Cell, len(w.cells))
	copy(out, w.cells)
	return out
}

// Cell returns a copy of the cell with the given id.
func (w *World) Cell(id uint64) (cell.Cell, bool) {
	for i := range w.cells {
		if w.cells[i].ID == id {
			return w.cells[i], true
		}
	}
	return cell.Cell{}, false
}

// DebugMutateCell edits a live cell in place; tests use it to set up scenarios.
func (w *World) DebugMutateCell(id uint64, fn func(c *cell.Cell)) bool {
	for i := range w.cells {
		if w.cells[i].ID == id {
			fn(&w.cells[i])
			return true
		}
	}
	return false
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
