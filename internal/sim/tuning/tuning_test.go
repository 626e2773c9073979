package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.Physics.Gravity != 0.01 || d.Physics.Dissipation != 0.9 {
		t.Fatalf("unexpected physics defaults: %+v", d.Physics)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
tick_rate_hz: 5
world_size: [32, 16, 24]
physics:
  gravity: 0.02
terrain:
  preset: creek
  cells: 500
`)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 5 || got.WorldSize != [3]int{32, 16, 24} {
		t.Fatalf("top-level fields not loaded: %+v", got)
	}
	if got.Physics.Gravity != 0.02 || got.Physics.Dissipation != 0.9 {
		t.Fatalf("physics merge: %+v", got.Physics)
	}
	if got.Terrain.Preset != "creek" || got.Terrain.Cells != 500 || got.Terrain.Seed != 1337 {
		t.Fatalf("terrain merge: %+v", got.Terrain)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("world_size: [0, 4, 4]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := os.WriteFile(p, []byte("physics: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
