package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int    `yaml:"tick_rate_hz"`
	WorldSize  [3]int `yaml:"world_size"`

	Physics      Physics      `yaml:"physics"`
	Interactions Interactions `yaml:"interactions"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ValidateEveryTicks int `yaml:"validate_every_ticks"`
	DigestEveryTicks   int `yaml:"digest_every_ticks"`

	Terrain Terrain `yaml:"terrain"`
}

type Physics struct {
	Gravity     float64 `yaml:"gravity"`
	Dissipation float64 `yaml:"dissipation"`
	Stick       float64 `yaml:"stick"`
}

type Interactions struct {
	ShareQuantum int     `yaml:"share_quantum"`
	ForceImpulse float64 `yaml:"force_impulse"`
	PhiGain      int     `yaml:"phi_gain"`
}

type Terrain struct {
	Preset string `yaml:"preset"`
	Seed   int64  `yaml:"seed"`
	Cells  int    `yaml:"cells"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz: 20,
		WorldSize:  [3]int{200, 200, 100},
		Physics: Physics{
			Gravity:     0.01,
			Dissipation: 0.9,
			Stick:       0.002,
		},
		Interactions: Interactions{
			ShareQuantum: 8,
			ForceImpulse: 0.05,
			PhiGain:      4,
		},
		SnapshotEveryTicks: 1,
		ValidateEveryTicks: 0,
		DigestEveryTicks:   100,
		Terrain: Terrain{
			Preset: "valley",
			Seed:   1337,
			Cells:  100_000,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var file Tuning
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.merge(file)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// merge copies every non-zero field of o over t.
func (t *Tuning) merge(o Tuning) {
	if o.TickRateHz > 0 {
		t.TickRateHz = o.TickRateHz
	}
	if o.WorldSize != ([3]int{}) {
		t.WorldSize = o.WorldSize
	}
	if o.Physics.Gravity != 0 {
		t.Physics.Gravity = o.Physics.Gravity
	}
	if o.Physics.Dissipation != 0 {
		t.Physics.Dissipation = o.Physics.Dissipation
	}
	if o.Physics.Stick != 0 {
		t.Physics.Stick = o.Physics.Stick
	}
	if o.Interactions.ShareQuantum != 0 {
		t.Interactions.ShareQuantum = o.Interactions.ShareQuantum
	}
	if o.Interactions.ForceImpulse != 0 {
		t.Interactions.ForceImpulse = o.Interactions.ForceImpulse
	}
	if o.Interactions.PhiGain != 0 {
		t.Interactions.PhiGain = o.Interactions.PhiGain
	}
	if o.SnapshotEveryTicks != 0 {
		t.SnapshotEveryTicks = o.SnapshotEveryTicks
	}
	if o.ValidateEveryTicks != 0 {
		t.ValidateEveryTicks = o.ValidateEveryTicks
	}
	if o.DigestEveryTicks != 0 {
		t.DigestEveryTicks = o.DigestEveryTicks
	}
	if o.Terrain.Preset != "" {
		t.Terrain.Preset = o.Terrain.Preset
	}
	if o.Terrain.Seed != 0 {
		t.Terrain.Seed = o.Terrain.Seed
	}
	if o.Terrain.Cells != 0 {
		t.Terrain.Cells = o.Terrain.Cells
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz < 0 {
		return fmt.Errorf("tick_rate_hz must be >= 0")
	}
	for i, v := range t.WorldSize {
		if v <= 0 {
			return fmt.Errorf("world_size[%d] must be > 0", i)
		}
	}
	if t.Physics.Dissipation <= 0 || t.Physics.Dissipation > 1 {
		return fmt.Errorf("physics.dissipation must be in (0, 1]")
	}
	if t.Interactions.ShareQuantum < 0 || t.Interactions.ShareQuantum > 255 {
		return fmt.Errorf("interactions.share_quantum must be in [0, 255]")
	}
	if t.Interactions.PhiGain < 0 || t.Interactions.PhiGain > 255 {
		return fmt.Errorf("interactions.phi_gain must be in [0, 255]")
	}
	if t.Terrain.Cells < 0 {
		return fmt.Errorf("terrain.cells must be >= 0")
	}
	return nil
}
