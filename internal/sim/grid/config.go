package grid

import (
	"fmt"

	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/spatial"
)

// Config holds the tunables of one engine instance. Chunk size, epsilon and
// the hysteresis count are deliberately configuration, not constants.
type Config struct {
	// Dims is the grid dimensionality, 2 or 3.
	Dims int
	// AxisBits is the per-axis bit budget of the chunk-coordinate Morton key.
	AxisBits int
	// ChunkEdge is the chunk edge length in cells.
	ChunkEdge int
	// Epsilon is the stability threshold: a chunk whose max absolute cell
	// delta stays below it counts as stable for that tick.
	Epsilon float64
	// StableTicks is the hysteresis count K: consecutive stable ticks
	// required before a chunk leaves the active set.
	StableTicks int
	// BatchCapacity is the device's parallel capacity in chunks per batch.
	BatchCapacity int
	// Program selects one of the precompiled kernel programs.
	Program device.ProgramID
	// Neighborhood controls which chunks are topologically adjacent.
	Neighborhood spatial.Neighborhood
}

// Normalize fills unset fields with defaults. It does not validate.
func (c *Config) Normalize() {
	if c.Dims == 0 {
		c.Dims = 2
	}
	if c.AxisBits == 0 {
		c.AxisBits = 16
	}
	if c.ChunkEdge == 0 {
		c.ChunkEdge = 8
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-4
	}
	if c.StableTicks == 0 {
		c.StableTicks = 3
	}
	if c.BatchCapacity == 0 {
		c.BatchCapacity = 64
	}
	if c.Program == "" {
		c.Program = device.ProgramDiffuse
	}
}

// Validate rejects configurations the engine cannot run. All failures wrap
// spatial.ErrConfigInvalid and are fatal at startup.
func (c Config) Validate() error {
	if _, err := spatial.NewCodec(c.Dims, c.AxisBits); err != nil {
		return err
	}
	if c.ChunkEdge < 2 {
		return fmt.Errorf("%w: chunk edge must be at least 2, got %d", spatial.ErrConfigInvalid, c.ChunkEdge)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("%w: epsilon must be non-negative, got %g", spatial.ErrConfigInvalid, c.Epsilon)
	}
	if c.StableTicks < 1 {
		return fmt.Errorf("%w: stable ticks must be at least 1, got %d", spatial.ErrConfigInvalid, c.StableTicks)
	}
	if c.BatchCapacity < 1 {
		return fmt.Errorf("%w: batch capacity must be at least 1, got %d", spatial.ErrConfigInvalid, c.BatchCapacity)
	}
	prog, err := device.LookupProgram(c.Program, c.Dims)
	if err != nil {
		return fmt.Errorf("%w: %v", spatial.ErrConfigInvalid, err)
	}
	if prog.Stride > MaxCellStride {
		return fmt.Errorf("%w: program %q stride %d exceeds cell capacity %d",
			spatial.ErrConfigInvalid, prog.ID, prog.Stride, MaxCellStride)
	}
	return nil
}

// geometry builds the device-facing cell layout of the configuration.
// Callers must have validated first.
func (c Config) geometry() device.Geometry {
	prog, err := device.LookupProgram(c.Program, c.Dims)
	if err != nil {
		panic(err)
	}
	return device.Geometry{Dims: c.Dims, Edge: c.ChunkEdge, Stride: prog.Stride}
}
