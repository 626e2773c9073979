package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"bonsai.sim/internal/sim/tuning"
	"bonsai.sim/internal/sim/world"
)

// ErrStop ends ReadTicks early without an error.
var ErrStop = errors.New("stop")

// ListEventFiles returns the tick log files under dir in chronological order.
func ListEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadTicks calls fn for every entry in one tick log file. A truncated trailing frame (a file
// still being written) ends the read without an error.
func ReadTicks(path string, fn func(world.TickLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry world.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(entry); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}

// Header describes how a run's world was generated, so replays can rebuild it.
type Header struct {
	WorldID   string        `json:"world_id"`
	StartedAt string        `json:"started_at"`
	Tuning    tuning.Tuning `json:"tuning"`
}

const headerFile = "world.json"

func WriteHeader(worldDir string, h Header) error {
	if h.StartedAt == "" {
		h.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(worldDir, headerFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(worldDir, headerFile))
}

func ReadHeader(worldDir string) (Header, error) {
	var h Header
	b, err := os.ReadFile(filepath.Join(worldDir, headerFile))
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return h, fmt.Errorf("%s: %w", headerFile, err)
	}
	return h, nil
}
