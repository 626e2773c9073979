// Profiling:
// go build ./cmd/bench
// ./bench -ticks 500 -profile cpu
// go tool pprof -http=":8000" ./bench cpu.pprof

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/pkg/profile"

	"bonsai.sim/internal/sim/terrain"
	"bonsai.sim/internal/sim/tuning"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (optional)")
		preset     = flag.String("preset", "", "terrain preset override")
		seed       = flag.Int64("seed", 0, "terrain seed override")
		cells      = flag.Int("cells", -1, "initial population override")
		ticks      = flag.Int("ticks", 200, "ticks to step")
		validate   = flag.Bool("validate", false, "check invariants after every tick")
		prof       = flag.String("profile", "", "cpu|mem (writes *.pprof in the current dir)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bench] ", log.LstdFlags|log.Lmicroseconds)

	tune := tuning.Defaults()
	if *tuningPath != "" {
		t, err := tuning.Load(*tuningPath)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = t
	}
	if *preset != "" {
		tune.Terrain.Preset = *preset
	}
	if *seed != 0 {
		tune.Terrain.Seed = *seed
	}
	if *cells >= 0 {
		tune.Terrain.Cells = *cells
	}
	tune.ValidateEveryTicks = 0

	start := time.Now()
	w, err := terrain.NewWorld("bench", tune)
	if err != nil {
		logger.Fatalf("build world: %v", err)
	}
	logger.Printf("generated %s %v with %d cells in %s",
		tune.Terrain.Preset, tune.WorldSize, w.Population(), time.Since(start).Round(time.Millisecond))

	var p interface{ Stop() }
	switch *prof {
	case "":
	case "cpu":
		p = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	case "mem":
		p = profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	default:
		logger.Fatalf("unknown -profile %q (cpu|mem)", *prof)
	}

	durs := make([]time.Duration, 0, *ticks)
	var born, starved, fused, fell int
	for i := 0; i < *ticks; i++ {
		w.Step()
		durs = append(durs, w.StepDuration())
		st := w.LastStats()
		born += st.Born
		starved += st.Starved
		fused += st.Fused
		fell += st.Fell
		if *validate {
			if err := w.Validate(); err != nil {
				logger.Fatalf("tick %d: %v", st.Tick, err)
			}
		}
	}
	if p != nil {
		p.Stop()
	}

	if len(durs) == 0 {
		return
	}
	var total time.Duration
	for _, d := range durs {
		total += d
	}
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
	pct := func(q float64) time.Duration { return durs[int(q*float64(len(durs)-1))] }

	fmt.Printf("ticks=%d population=%d born=%d starved=%d fused=%d fell=%d\n",
		len(durs), w.Population(), born, starved, fused, fell)
	fmt.Printf("step mean=%s p50=%s p95=%s max=%s\n",
		(total / time.Duration(len(durs))).Round(time.Microsecond), pct(0.5).Round(time.Microsecond),
		pct(0.95).Round(time.Microsecond), durs[len(durs)-1].Round(time.Microsecond))
	fmt.Printf("digest=%s\n", w.StateDigest())
}
