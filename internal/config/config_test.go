package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/spatial"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Dims != 2 || cfg.Engine.ChunkEdge != 8 || cfg.Engine.StableTicks != 3 {
		t.Fatalf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.TickRateHz != 30 || cfg.ListenAddr != ":8080" {
		t.Fatalf("host defaults = tick %d addr %q", cfg.TickRateHz, cfg.ListenAddr)
	}
	g := cfg.Grid()
	if err := g.Validate(); err != nil {
		t.Fatalf("default grid config invalid: %v", err)
	}
	if g.Program != device.ProgramDiffuse {
		t.Fatalf("default program = %q", g.Program)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
engine:
  dims: 3
  axis_bits: 10
  chunk_edge: 4
  epsilon: 0.001
  stable_ticks: 5
  batch_capacity: 16
  program: WAVE
  neighborhood: moore
tick_rate_hz: 60
snapshot_every_ticks: 100
data_dir: /tmp/fluxgrid
listen_addr: ":9000"
workers: 4
seed:
  noise: 42
  extent: 32
  scale: 12.5
  octaves: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	g := cfg.Grid()
	if g.Dims != 3 || g.AxisBits != 10 || g.ChunkEdge != 4 || g.StableTicks != 5 {
		t.Fatalf("grid config = %+v", g)
	}
	if g.Program != device.ProgramWave || g.Neighborhood != spatial.NeighborhoodMoore {
		t.Fatalf("program/neighborhood = %q/%v", g.Program, g.Neighborhood)
	}
	if cfg.TickRateHz != 60 || cfg.Workers != 4 || cfg.DataDir != "/tmp/fluxgrid" {
		t.Fatalf("host config = %+v", cfg)
	}
	if cfg.Seed.Noise != 42 || cfg.Seed.Extent != 32 {
		t.Fatalf("seed = %+v", cfg.Seed)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  epsilon: 0.01
tick_rate_hz: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Epsilon != 0.01 || cfg.TickRateHz != 10 {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.Engine.Dims != 2 || cfg.Engine.BatchCapacity != 64 || cfg.ListenAddr != ":8080" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad neighborhood": "engine:\n  neighborhood: HEX\n",
		"bad program":      "engine:\n  program: PLASMA\n",
		"bad dims":         "engine:\n  dims: 4\n",
		"life in 3d":       "engine:\n  dims: 3\n  program: LIFE\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); !errors.Is(err, spatial.ErrConfigInvalid) {
			t.Fatalf("%s: want ErrConfigInvalid, got %v", name, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "engine: [not a map\n")); err == nil {
		t.Fatalf("malformed yaml accepted")
	}
}
