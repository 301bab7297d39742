package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"fluxgrid.dev/internal/spatial"
)

// MaxCellStride is the widest cell any kernel program may declare.
const MaxCellStride = 4

// Cell is one cell's value. Only the first stride components are meaningful;
// the rest are zero.
type Cell [MaxCellStride]float32

// Chunk is the unit of allocation, activity tracking and dispatch batching.
// Two cell buffers exist at all times: cur is the published, immutable side
// read by consumers and by kernels; next is the write target of the tick in
// flight. They never alias; finalize swaps them.
type Chunk struct {
	key   uint64
	coord spatial.Coord

	cur  []float32
	next []float32

	// staged marks next as holding this tick's pending contents.
	staged bool

	dirty bool
	hash  [32]byte
}

func (c *Chunk) Key() uint64          { return c.key }
func (c *Chunk) Coord() spatial.Coord { return c.coord }

// Cells exposes the published buffer. Callers must not retain it across a
// tick boundary and must never write through it.
func (c *Chunk) Cells() []float32 { return c.cur }

// stageCopy prepares next for partial writes by seeding it with cur.
// Chunks about to be fully rewritten by a kernel stage without the copy.
func (c *Chunk) stageCopy() {
	if c.staged {
		return
	}
	copy(c.next, c.cur)
	c.staged = true
}

func (c *Chunk) swap() {
	c.cur, c.next = c.next, c.cur
	c.staged = false
	c.dirty = true
}

// Digest hashes the published cells deterministically. Cached until the next
// swap.
func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [4]byte
		for _, v := range c.cur {
			binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}
