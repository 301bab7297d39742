// Package device models the accelerator that executes per-chunk compute
// kernels. The host submits batches asynchronously and collects per-batch
// completion results; everything inside a batch is opaque to the host.
package device

import "errors"

// ErrDeviceFault reports a compute fault raised while executing a batch.
var ErrDeviceFault = errors.New("device compute fault")

// Geometry describes the cell layout a kernel operates on.
type Geometry struct {
	Dims   int // 2 or 3
	Edge   int // chunk edge length in cells
	Stride int // float32 components per cell
}

// Cells is the number of cells in a chunk.
func (g Geometry) Cells() int {
	n := g.Edge * g.Edge
	if g.Dims == 3 {
		n *= g.Edge
	}
	return n
}

// PaddedCells is the number of cells in a chunk plus its one-cell halo.
func (g Geometry) PaddedCells() int {
	p := g.Edge + 2
	n := p * p
	if g.Dims == 3 {
		n *= p
	}
	return n
}

// In indexes the padded halo block. Local coordinates range over
// [-1, Edge]; the halo ring sits at -1 and Edge.
func (g Geometry) In(x, y, z int) int {
	p := g.Edge + 2
	i := (y+1)*p + (x + 1)
	if g.Dims == 3 {
		i += (z + 1) * p * p
	}
	return i * g.Stride
}

// Out indexes the unpadded output block. Local coordinates range over
// [0, Edge).
func (g Geometry) Out(x, y, z int) int {
	i := y*g.Edge + x
	if g.Dims == 3 {
		i += z * g.Edge * g.Edge
	}
	return i * g.Stride
}

// ChunkJob is one chunk's worth of work inside a batch. In holds the chunk's
// current cells plus the halo gathered from its neighbors' current buffers;
// Out receives the updated cells and aliases the chunk's next buffer.
type ChunkJob struct {
	Key uint64
	In  []float32
	Out []float32
}

// Batch is one asynchronous compute submission.
type Batch struct {
	Tick    uint64
	Seq     int
	Program ProgramID
	Geom    Geometry
	Jobs    []ChunkJob
}

// Keys lists the chunk keys of the batch, for error reporting.
func (b Batch) Keys() []uint64 {
	keys := make([]uint64, len(b.Jobs))
	for i, j := range b.Jobs {
		keys[i] = j.Key
	}
	return keys
}

// Result is the completion record of one batch. Err is nil on success.
type Result struct {
	Tick uint64
	Seq  int
	Keys []uint64
	Err  error
}

// Queue is an asynchronous device work queue. Submit never blocks on kernel
// execution; completions arrive on Results in no particular order.
type Queue interface {
	Submit(b Batch)
	Results() <-chan Result
	Close()
}
