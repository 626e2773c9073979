package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"bonsai.sim/internal/observerproto"
	"bonsai.sim/internal/transport/observer"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/observe", "observer ws url")
		encoding  = flag.String("encoding", observerproto.EncodingMsgpack, "frame encoding (json|msgpack)")
		every     = flag.Int("every", 20, "receive every Nth tick")
		statsOnly = flag.Bool("stats_only", true, "skip per-cell state")
		maxCells  = flag.Int("max_cells", 0, "cap cells per frame (0 = server default)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cl, err := observer.Dial(ctx, *url, observerproto.SubscribeMsg{
		Encoding:   *encoding,
		EveryTicks: *every,
		MaxCells:   *maxCells,
		StatsOnly:  *statsOnly,
	})
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	go func() {
		<-ctx.Done()
		_ = cl.Close()
	}()

	var lastGrid string
	for {
		f, err := cl.Next()
		if err != nil {
			if ctx.Err() == nil {
				logger.Printf("read: %v", err)
			}
			return
		}
		if f.Grid != nil && f.GridDigest != lastGrid {
			lastGrid = f.GridDigest
			logger.Printf("grid size=%v digest=%.12s", f.Grid.Size, f.GridDigest)
		}
		st := f.Stats
		line := "tick=%d population=%d born=%d starved=%d fused=%d fell=%d"
		if f.Cells != nil {
			logger.Printf(line+" cells=%d truncated=%v", f.Tick, st.Population, st.Born, st.Starved, st.Fused, st.Fell, len(f.Cells), f.Truncated)
			continue
		}
		logger.Printf(line, f.Tick, st.Population, st.Born, st.Starved, st.Fused, st.Fell)
	}
}
