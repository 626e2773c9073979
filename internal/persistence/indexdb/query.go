package indexdb

import (
	"context"
	"database/sql"

	"bonsai.sim/internal/sim/world"
)

// Ticks returns the indexed rows with from <= tick <= to, in tick order.
func (s *SQLiteIndex) Ticks(ctx context.Context, from, to uint64) ([]world.TickLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick,population,born,starved,fused,fell,digest FROM ticks WHERE tick >= ? AND tick <= ? ORDER BY tick`,
		int64(from), int64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.TickLogEntry
	for rows.Next() {
		var (
			e      world.TickLogEntry
			tick   int64
			digest sql.NullString
		)
		if err := rows.Scan(&tick, &e.Population, &e.Born, &e.Starved, &e.Fused, &e.Fell, &digest); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		e.Digest = digest.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type Summary struct {
	Ticks         int    `json:"ticks"`
	LastTick      uint64 `json:"last_tick"`
	MaxPopulation int    `json:"max_population"`
	Born          int    `json:"born"`
	Starved       int    `json:"starved"`
	Fused         int    `json:"fused"`
	Fell          int    `json:"fell"`
}

// Summary aggregates every indexed tick.
func (s *SQLiteIndex) Summary(ctx context.Context) (Summary, error) {
	var (
		out  Summary
		last sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(tick), COALESCE(MAX(population),0), COALESCE(SUM(born),0), COALESCE(SUM(starved),0), COALESCE(SUM(fused),0), COALESCE(SUM(fell),0) FROM ticks`,
	).Scan(&out.Ticks, &last, &out.MaxPopulation, &out.Born, &out.Starved, &out.Fused, &out.Fell)
	if err != nil {
		return Summary{}, err
	}
	out.LastTick = uint64(last.Int64)
	return out, nil
}
