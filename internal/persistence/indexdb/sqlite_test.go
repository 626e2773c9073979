package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"bonsai.sim/internal/sim/tuning"
	"bonsai.sim/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan world.TickLogEntry, 1)}
	s.ch <- world.TickLogEntry{TickStats: world.TickStats{Tick: 1}}

	s.RecordTick(world.TickLogEntry{TickStats: world.TickStats{Tick: 2}})
	s.RecordTick(world.TickLogEntry{TickStats: world.TickStats{Tick: 3}})

	st := s.Stats()
	if st.DropTickTotal != 2 {
		t.Fatalf("DropTickTotal=%d want=2", st.DropTickTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_TicksAndSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.RecordRun("world_1", tuning.Defaults()); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	for i := 0; i < 10; i++ {
		e := world.TickLogEntry{TickStats: world.TickStats{
			Tick:       uint64(i),
			Population: 100 + i,
			Born:       2,
			Starved:    1,
			Fell:       i % 2,
		}}
		if i == 5 {
			e.Digest = "abc"
		}
		idx.RecordTick(e)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := idx.Stats(); st.WrittenTotal != 10 || st.DropTickTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
	idx.RecordTick(world.TickLogEntry{}) // after close: ignored

	// Reopen to read what was committed.
	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	rows, err := idx.Ticks(ctx, 3, 6)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if len(rows) != 4 || rows[0].Tick != 3 || rows[3].Tick != 6 {
		t.Fatalf("rows: %+v", rows)
	}
	if rows[2].Digest != "abc" || rows[1].Digest != "" {
		t.Fatalf("digests: %+v", rows)
	}

	sum, err := idx.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := Summary{Ticks: 10, LastTick: 9, MaxPopulation: 109, Born: 20, Starved: 10, Fell: 5}
	if sum != want {
		t.Fatalf("summary: got %+v want %+v", sum, want)
	}

	var worldID string
	if err := idx.db.QueryRow(`SELECT world_id FROM runs`).Scan(&worldID); err != nil && err != sql.ErrNoRows {
		t.Fatalf("runs: %v", err)
	}
	if worldID != "world_1" {
		t.Fatalf("run world id %q", worldID)
	}
}
