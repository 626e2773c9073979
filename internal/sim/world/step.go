package world

import (
	"context"
	"time"

	"bonsai.sim/internal/sim/vm"
)

// Step advances the world by exactly one tick.
func (w *World) Step() {
	w.step()
}

// StepOnce advances the world by a single tick and returns the tick that ran together with the
// state digest after it. It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step()
	return tick, w.StateDigest()
}

func (w *World) step() {
	start := time.Now()
	nowTick := w.tick.Load()
	stats := TickStats{Tick: nowTick}

	w.rebuildIndexes()
	n := len(w.cells)
	w.resetScratch(n)

	// Cells run in table order; a voxel claimed by an earlier cell is visible to later ones.
	env := tickEnv{w: w}
	for i := 0; i < n; i++ {
		eff := vm.Step(&w.cells[i], env)
		if eff.Kind != vm.EffectNone {
			w.pending = append(w.pending, pendingEffect{slot: i, eff: eff})
		}
	}

	for _, p := range w.pending {
		w.applyEffect(p.slot, p.eff, &stats)
	}

	for i := 0; i < n; i++ {
		if w.dead[i] {
			continue
		}
		c := &w.cells[i]
		w.integrate(c)
		w.resolve(c)
	}

	for i := 0; i < n; i++ {
		if !w.dead[i] && !w.grid.InBounds(w.cells[i].PI) {
			w.kill(i, causeFell, &stats)
		}
	}

	w.compact()
	for _, child := range w.births {
		child.ID = w.ids.Issue()
		w.cells = append(w.cells, *child)
	}
	stats.Born = len(w.births)
	stats.Population = len(w.cells)

	w.last = stats
	w.population.Store(int64(len(w.cells)))
	w.tick.Add(1)

	if every := w.cfg.ValidateEveryTicks; every > 0 && nowTick%uint64(every) == 0 {
		w.MustValidate()
	}
	w.stepNanos.Store(int64(time.Since(start)))

	w.publish(stats)
}

func (w *World) rebuildIndexes() {
	w.occ.Reset()
	for _, p := range w.bedrock {
		w.occ.Set(p)
	}
	w.tags.Reset()
	for i := range w.cells {
		c := &w.cells[i]
		w.occ.Set(c.PI)
		w.tags.Put(c.PI, i, c.ID, c.Tag())
	}
}

func (w *World) resetScratch(n int) {
	w.pending = w.pending[:0]
	w.births = w.births[:0]
	if cap(w.dead) < n {
		w.dead = make([]bool, n)
	} else {
		w.dead = w.dead[:n]
		clear(w.dead)
	}
}

// compact drops dead cells while keeping table order.
func (w *World) compact() {
	out := w.cells[:0]
	for i := range w.cells {
		if !w.dead[i] {
			out = append(out, w.cells[i])
		}
	}
	w.cells = out
}

// publish hands the tick's results to the optional sinks. Nothing here may block the loop.
func (w *World) publish(stats TickStats) {
	entry := TickLogEntry{TickStats: stats}
	if every := w.cfg.DigestEveryTicks; every > 0 && stats.Tick%uint64(every) == 0 {
		entry.Digest = w.StateDigest()
	}
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(entry)
	}
	if w.statsSink != nil {
		w.statsSink.RecordTick(entry)
	}
	if w.snapshotSink != nil {
		every := w.cfg.SnapshotEveryTicks
		if every <= 0 {
			every = 1
		}
		if stats.Tick%uint64(every) == 0 {
			sendLatest(w.snapshotSink, w.Snapshot())
		}
	}
}

// Run steps the world at the configured tick rate until ctx is done or Stop is called.
// A non-positive tick rate runs as fast as possible.
func (w *World) Run(ctx context.Context) error {
	if w.cfg.TickRateHz <= 0 {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.stop:
				return nil
			default:
			}
			w.step()
		}
	}

	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// sendLatest delivers v without blocking, evicting the oldest queued value when the channel is full.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
