package grid

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/spatial"
)

type stagedWrite struct {
	chunk *Chunk
	off   int
	cell  Cell
}

// Store owns the chunked cell storage. Chunks are allocated lazily on first
// in-bounds access and keyed by the Morton key of their chunk coordinate, so
// spatially adjacent chunks sort near each other.
//
// The mutex guards the chunk map and the cur/next pointer swap only; cell
// buffer consistency comes from double buffering, not locking. All mutation
// happens on the host tick goroutine.
type Store struct {
	codec spatial.Codec
	geom  device.Geometry
	pool  *bufferPool

	mu     sync.RWMutex
	chunks map[uint64]*Chunk

	// touched accumulates chunks whose next buffer holds pending contents
	// for the tick in flight; finalize swaps exactly these.
	touched map[uint64]*Chunk
	// writes are host cell writes queued this tick. They are re-applied at
	// finalize so they land on top of kernel output.
	writes []stagedWrite
}

func newStore(codec spatial.Codec, geom device.Geometry, pool *bufferPool) *Store {
	return &Store{
		codec:   codec,
		geom:    geom,
		pool:    pool,
		chunks:  map[uint64]*Chunk{},
		touched: map[uint64]*Chunk{},
	}
}

// locate splits a cell coordinate into its chunk coordinate and the cell's
// buffer offset within the chunk.
func (s *Store) locate(c spatial.Coord) (spatial.Coord, int, error) {
	if c.X < 0 || c.Y < 0 || c.Z < 0 {
		return spatial.Coord{}, 0, fmt.Errorf("%w: negative cell coordinate (%d,%d,%d)",
			spatial.ErrOutOfBounds, c.X, c.Y, c.Z)
	}
	e := s.geom.Edge
	cc := spatial.Coord{X: c.X / e, Y: c.Y / e, Z: c.Z / e}
	if err := s.codec.Check(cc); err != nil {
		return spatial.Coord{}, 0, err
	}
	off := s.geom.Out(c.X%e, c.Y%e, c.Z%e)
	return cc, off, nil
}

// Read returns the cell's published value, allocating the chunk if absent.
func (s *Store) Read(c spatial.Coord) (Cell, error) {
	cc, off, err := s.locate(c)
	if err != nil {
		return Cell{}, err
	}
	ch, err := s.getOrCreate(cc)
	if err != nil {
		return Cell{}, err
	}
	var cell Cell
	s.mu.RLock()
	copy(cell[:s.geom.Stride], ch.cur[off:off+s.geom.Stride])
	s.mu.RUnlock()
	return cell, nil
}

// peek reads the published value without allocating. Absent chunks and
// out-of-domain coordinates read as the default cell; halo gathering relies
// on this.
func (s *Store) peek(c spatial.Coord) Cell {
	cc, off, err := s.locate(c)
	if err != nil {
		return Cell{}
	}
	key, err := s.codec.Encode(cc)
	if err != nil {
		return Cell{}
	}
	s.mu.RLock()
	ch := s.chunks[key]
	var cell Cell
	if ch != nil {
		copy(cell[:s.geom.Stride], ch.cur[off:off+s.geom.Stride])
	}
	s.mu.RUnlock()
	return cell
}

// Write queues a cell value into the chunk's next buffer and reports the
// chunk key so the caller can mark it active. The published buffer is never
// mutated; the value becomes visible at the next finalize.
func (s *Store) Write(c spatial.Coord, cell Cell) (uint64, error) {
	cc, off, err := s.locate(c)
	if err != nil {
		return 0, err
	}
	ch, err := s.getOrCreate(cc)
	if err != nil {
		return 0, err
	}
	ch.stageCopy()
	copy(ch.next[off:off+s.geom.Stride], cell[:s.geom.Stride])
	s.touched[ch.key] = ch
	s.writes = append(s.writes, stagedWrite{chunk: ch, off: off, cell: cell})
	return ch.key, nil
}

// ChunkAt returns the chunk handle for a chunk key, if allocated.
func (s *Store) ChunkAt(key uint64) (*Chunk, bool) {
	s.mu.RLock()
	ch, ok := s.chunks[key]
	s.mu.RUnlock()
	return ch, ok
}

// Keys lists all allocated chunk keys in ascending (Morton) order.
func (s *Store) Keys() []uint64 {
	s.mu.RLock()
	keys := make([]uint64, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len is the number of allocated chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Store) getOrCreate(cc spatial.Coord) (*Chunk, error) {
	key, err := s.codec.Encode(cc)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	ch, ok := s.chunks[key]
	s.mu.RUnlock()
	if ok {
		return ch, nil
	}
	ch = &Chunk{
		key:   key,
		coord: cc,
		cur:   s.pool.get(),
		next:  s.pool.get(),
	}
	s.mu.Lock()
	s.chunks[key] = ch
	s.mu.Unlock()
	return ch, nil
}

// markComputed registers a kernel-written chunk for the finalize swap. The
// kernel rewrites every cell, so next is staged without the copy.
func (s *Store) markComputed(ch *Chunk) {
	ch.staged = true
	s.touched[ch.key] = ch
}

// applyWrites lands queued host writes on top of any kernel output in the
// next buffers, so stimulus injected mid-tick survives recomputation.
func (s *Store) applyWrites() {
	for _, w := range s.writes {
		copy(w.chunk.next[w.off:w.off+s.geom.Stride], w.cell[:s.geom.Stride])
	}
	s.writes = s.writes[:0]
}

// swapTouched flips cur/next for every chunk staged this tick, advances the
// generation counter and resets the staging. The swap and the generation
// bump share one critical section: a reader holding the read lock sees
// either the old buffers with the old generation or the new with the new,
// never a mix.
func (s *Store) swapTouched(gen *atomic.Uint64) (swapped int, generation uint64) {
	s.mu.Lock()
	swapped = len(s.touched)
	for _, ch := range s.touched {
		ch.swap()
	}
	generation = gen.Add(1)
	s.mu.Unlock()
	s.touched = map[uint64]*Chunk{}
	return swapped, generation
}

// discard abandons the tick in flight: queued writes and kernel output in
// next buffers are dropped and the published buffers stand.
func (s *Store) discard() {
	for _, ch := range s.touched {
		ch.staged = false
	}
	s.touched = map[uint64]*Chunk{}
	s.writes = s.writes[:0]
}

// RemoveRegion tears down every chunk whose chunk coordinate lies inside the
// inclusive box [min, max], returning their buffers to the pool. Queued
// writes into removed chunks are dropped. Returns the removed keys.
func (s *Store) RemoveRegion(min, max spatial.Coord) []uint64 {
	s.mu.Lock()
	var removed []uint64
	for k, ch := range s.chunks {
		cc := ch.coord
		if cc.X < min.X || cc.X > max.X || cc.Y < min.Y || cc.Y > max.Y || cc.Z < min.Z || cc.Z > max.Z {
			continue
		}
		delete(s.chunks, k)
		delete(s.touched, k)
		s.pool.put(ch.cur)
		s.pool.put(ch.next)
		removed = append(removed, k)
	}
	kept := s.writes[:0]
	for _, w := range s.writes {
		if _, ok := s.chunks[w.chunk.key]; ok {
			kept = append(kept, w)
		}
	}
	s.writes = kept
	s.mu.Unlock()
	return removed
}

// RemoveAll tears down every chunk.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	for k, ch := range s.chunks {
		delete(s.chunks, k)
		s.pool.put(ch.cur)
		s.pool.put(ch.next)
	}
	s.mu.Unlock()
	s.touched = map[uint64]*Chunk{}
	s.writes = s.writes[:0]
}
