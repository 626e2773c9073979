package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bonsai.sim/internal/persistence/indexdb"
	persistlog "bonsai.sim/internal/persistence/log"
	"bonsai.sim/internal/sim/terrain"
	"bonsai.sim/internal/sim/tuning"
	"bonsai.sim/internal/sim/world"
	"bonsai.sim/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick index")

		allowRemote = flag.Bool("allow_remote_observers", false, "serve the observer stream to non-loopback clients")

		preset  = flag.String("preset", "", "terrain preset override ("+strings.Join(terrain.Presets(), "|")+")")
		seed    = flag.Int64("seed", 0, "terrain seed override (0 keeps the tuning value)")
		cells   = flag.Int("cells", -1, "initial population override (-1 keeps the tuning value)")
		rate    = flag.Int("tick_rate", -1, "tick rate override in Hz; 0 runs unthrottled")
		valEvry = flag.Int("validate_every", -1, "run the invariant checker every N ticks (-1 keeps the tuning value)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
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
	if *rate >= 0 {
		tune.TickRateHz = *rate
	}
	if *valEvry >= 0 {
		tune.ValidateEveryTicks = *valEvry
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)

	// A new run must not append to another run's history.
	eventsDir := filepath.Join(worldDir, "events")
	if ents, err := os.ReadDir(eventsDir); err == nil && len(ents) > 0 {
		aside := eventsDir + "." + strconv.FormatInt(time.Now().Unix(), 10)
		if err := os.Rename(eventsDir, aside); err != nil {
			logger.Fatalf("move aside %s: %v", eventsDir, err)
		}
		logger.Printf("moved previous run's events to %s", filepath.Base(aside))
	}
	if err := persistlog.WriteHeader(worldDir, persistlog.Header{WorldID: *worldID, Tuning: tune}); err != nil {
		logger.Fatalf("write world header: %v", err)
	}

	start := time.Now()
	w, err := terrain.NewWorld(*worldID, tune)
	if err != nil {
		logger.Fatalf("build world: %v", err)
	}
	logger.Printf("world %s ready: preset=%s seed=%d size=%v population=%d (%s)",
		*worldID, tune.Terrain.Preset, tune.Terrain.Seed, tune.WorldSize, w.Population(), time.Since(start).Round(time.Millisecond))

	tickLogger := persistlog.NewTickLogger(worldDir)
	defer tickLogger.Close()
	w.SetTickLogger(tickLogger)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.RecordRun(*worldID, tune); err != nil {
			logger.Printf("index: record run: %v", err)
		}
		w.SetStatsSink(idx)
	}

	ctx, cancel := signalContext()
	defer cancel()

	snaps := make(chan world.Snapshot, 1)
	w.SetSnapshotSink(snaps)

	obsSrv := observer.NewServer(w.Config(), logger)
	obsSrv.AllowRemote = *allowRemote
	go obsSrv.Run(ctx, snaps)

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP bonsai_world_tick Completed world ticks.\n")
		fmt.Fprintf(rw, "# TYPE bonsai_world_tick gauge\n")
		fmt.Fprintf(rw, "bonsai_world_tick{world=%q} %d\n", *worldID, w.CurrentTick())

		fmt.Fprintf(rw, "# HELP bonsai_world_population Live cells.\n")
		fmt.Fprintf(rw, "# TYPE bonsai_world_population gauge\n")
		fmt.Fprintf(rw, "bonsai_world_population{world=%q} %d\n", *worldID, w.Population())

		fmt.Fprintf(rw, "# HELP bonsai_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE bonsai_world_step_ms gauge\n")
		fmt.Fprintf(rw, "bonsai_world_step_ms{world=%q} %.3f\n", *worldID, float64(w.StepDuration().Microseconds())/1000)

		fmt.Fprintf(rw, "# HELP bonsai_observer_sessions Connected observers.\n")
		fmt.Fprintf(rw, "# TYPE bonsai_observer_sessions gauge\n")
		fmt.Fprintf(rw, "bonsai_observer_sessions{world=%q} %d\n", *worldID, obsSrv.Sessions())

		if snap, ok := obsSrv.Latest(); ok {
			fmt.Fprintf(rw, "# HELP bonsai_world_events Lifecycle events in the last published tick.\n")
			fmt.Fprintf(rw, "# TYPE bonsai_world_events gauge\n")
			fmt.Fprintf(rw, "bonsai_world_events{world=%q,event=%q} %d\n", *worldID, "born", snap.Stats.Born)
			fmt.Fprintf(rw, "bonsai_world_events{world=%q,event=%q} %d\n", *worldID, "starved", snap.Stats.Starved)
			fmt.Fprintf(rw, "bonsai_world_events{world=%q,event=%q} %d\n", *worldID, "fused", snap.Stats.Fused)
			fmt.Fprintf(rw, "bonsai_world_events{world=%q,event=%q} %d\n", *worldID, "fell", snap.Stats.Fell)
		}

		writeIndexMetrics(rw, *worldID, idx)
	})
	mux.HandleFunc("/v1/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observe", obsSrv.WSHandler())

	enableAdminHTTP := envBool("VC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("VC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			resp := struct {
				WorldID    string           `json:"world_id"`
				Tick       uint64           `json:"tick"`
				Population int              `json:"population"`
				StepMS     float64          `json:"step_ms"`
				Observers  int              `json:"observers"`
				LastStats  *world.TickStats `json:"last_stats,omitempty"`
				Tuning     tuning.Tuning    `json:"tuning"`
			}{
				WorldID:    *worldID,
				Tick:       w.CurrentTick(),
				Population: w.Population(),
				StepMS:     float64(w.StepDuration().Microseconds()) / 1000,
				Observers:  obsSrv.Sessions(),
				Tuning:     tune,
			}
			if snap, ok := obsSrv.Latest(); ok {
				resp.LastStats = &snap.Stats
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		if idx != nil {
			mux.HandleFunc("/admin/v1/ticks", func(rw http.ResponseWriter, r *http.Request) {
				if !isLoopbackRemote(r.RemoteAddr) {
					http.Error(rw, "forbidden", http.StatusForbidden)
					return
				}
				q := r.URL.Query()
				from, _ := strconv.ParseUint(q.Get("from"), 10, 64)
				to, err := strconv.ParseUint(q.Get("to"), 10, 64)
				if err != nil {
					to = w.CurrentTick()
				}
				ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
				defer cancel2()
				ticks, err := idx.Ticks(ctx2, from, to)
				if err != nil {
					http.Error(rw, err.Error(), http.StatusInternalServerError)
					return
				}
				sum, err := idx.Summary(ctx2)
				if err != nil {
					http.Error(rw, err.Error(), http.StatusInternalServerError)
					return
				}
				rw.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(rw).Encode(map[string]any{"summary": sum, "ticks": ticks})
			})
		}
	} else {
		logger.Printf("admin endpoints disabled (VC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VC_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
	if err := tickLogger.Flush(); err != nil {
		logger.Printf("flush tick log: %v", err)
	}
	logger.Printf("stopped at tick %d with %d cells", w.CurrentTick(), w.Population())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func writeIndexMetrics(rw http.ResponseWriter, worldID string, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP bonsai_index_queue_depth Current tick index queue depth.\n")
	fmt.Fprintf(rw, "# TYPE bonsai_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "bonsai_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP bonsai_index_queue_capacity Tick index queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE bonsai_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "bonsai_index_queue_capacity{world=%q} %d\n", worldID, s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP bonsai_index_dropped_total Tick entries dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE bonsai_index_dropped_total counter\n")
	fmt.Fprintf(rw, "bonsai_index_dropped_total{world=%q} %d\n", worldID, s.DropTickTotal)

	fmt.Fprintf(rw, "# HELP bonsai_index_write_errors_total Failed index writes.\n")
	fmt.Fprintf(rw, "# TYPE bonsai_index_write_errors_total counter\n")
	fmt.Fprintf(rw, "bonsai_index_write_errors_total{world=%q} %d\n", worldID, s.WriteErrorTotal)

	fmt.Fprintf(rw, "# HELP bonsai_index_written_total Tick entries written to the index.\n")
	fmt.Fprintf(rw, "# TYPE bonsai_index_written_total counter\n")
	fmt.Fprintf(rw, "bonsai_index_written_total{world=%q} %d\n", worldID, s.WrittenTotal)
}
