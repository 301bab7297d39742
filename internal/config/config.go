// Package config loads the host configuration file: engine tunables plus the
// operational parameters of the tick loop, snapshots and the observer server.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/sim/grid"
	"fluxgrid.dev/internal/spatial"
)

type Config struct {
	Engine EngineSpec `yaml:"engine"`

	TickRateHz         int    `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	DataDir            string `yaml:"data_dir"`
	ListenAddr         string `yaml:"listen_addr"`

	// Workers bounds the device worker pool; 0 means all CPUs.
	Workers int `yaml:"workers"`

	Seed SeedSpec `yaml:"seed"`
}

type EngineSpec struct {
	Dims          int     `yaml:"dims"`
	AxisBits      int     `yaml:"axis_bits"`
	ChunkEdge     int     `yaml:"chunk_edge"`
	Epsilon       float64 `yaml:"epsilon"`
	StableTicks   int     `yaml:"stable_ticks"`
	BatchCapacity int     `yaml:"batch_capacity"`
	Program       string  `yaml:"program"`
	Neighborhood  string  `yaml:"neighborhood"`
}

// SeedSpec describes the initial stimulus: a noise-filled box of cells.
type SeedSpec struct {
	Noise   int64   `yaml:"noise"`
	Extent  int     `yaml:"extent"`
	Scale   float64 `yaml:"scale"`
	Octaves int     `yaml:"octaves"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("engine.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Engine: EngineSpec{
			Dims:          2,
			AxisBits:      16,
			ChunkEdge:     8,
			Epsilon:       1e-4,
			StableTicks:   3,
			BatchCapacity: 64,
			Program:       string(device.ProgramDiffuse),
			Neighborhood:  "FACE",
		},
		TickRateHz:         30,
		SnapshotEveryTicks: 600,
		DataDir:            "./data",
		ListenAddr:         ":8080",
		Seed: SeedSpec{
			Noise:   1337,
			Extent:  64,
			Scale:   24,
			Octaves: 3,
		},
	}
}

func (c *Config) Normalize() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 30
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Seed.Extent <= 0 {
		c.Seed.Extent = 64
	}
	if c.Seed.Scale <= 0 {
		c.Seed.Scale = 24
	}
	if c.Seed.Octaves <= 0 {
		c.Seed.Octaves = 3
	}
}

func (c Config) Validate() error {
	if _, err := c.Neighborhood(); err != nil {
		return err
	}
	return c.Grid().Validate()
}

// Grid converts the engine section to the engine's own config type.
func (c Config) Grid() grid.Config {
	hood, _ := c.Neighborhood()
	g := grid.Config{
		Dims:          c.Engine.Dims,
		AxisBits:      c.Engine.AxisBits,
		ChunkEdge:     c.Engine.ChunkEdge,
		Epsilon:       c.Engine.Epsilon,
		StableTicks:   c.Engine.StableTicks,
		BatchCapacity: c.Engine.BatchCapacity,
		Program:       device.ProgramID(c.Engine.Program),
		Neighborhood:  hood,
	}
	g.Normalize()
	return g
}

func (c Config) Neighborhood() (spatial.Neighborhood, error) {
	switch strings.ToUpper(strings.TrimSpace(c.Engine.Neighborhood)) {
	case "", "FACE":
		return spatial.NeighborhoodFace, nil
	case "MOORE":
		return spatial.NeighborhoodMoore, nil
	default:
		return 0, fmt.Errorf("%w: unknown neighborhood %q", spatial.ErrConfigInvalid, c.Engine.Neighborhood)
	}
}
