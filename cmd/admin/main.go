package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "bonsai.sim/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints every world under the data dir with the header it was started from.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		h, err := persistlog.ReadHeader(filepath.Join(base, e.Name()))
		if err != nil {
			fmt.Printf("%s\t(no header: %v)\n", e.Name(), err)
			continue
		}
		files, _ := persistlog.ListEventFiles(filepath.Join(base, e.Name(), "events"))
		fmt.Printf("%s\tstarted=%s preset=%s seed=%d size=%v cells=%d event_files=%d\n",
			e.Name(), h.StartedAt, h.Tuning.Terrain.Preset, h.Tuning.Terrain.Seed, h.Tuning.WorldSize, h.Tuning.Terrain.Cells, len(files))
	}
}
