package grid

import (
	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/spatial"
)

// scheduler partitions the active set into device batches, gathers halo
// blocks and issues asynchronous submissions. Within a tick every batch reads
// only published buffers and writes only next buffers, so batches never
// depend on each other; halo data is always one generation old at chunk
// borders, a deliberate trade for dispatch independence.
type scheduler struct {
	store    *Store
	codec    spatial.Codec
	geom     device.Geometry
	program  device.ProgramID
	capacity int
	queue    device.Queue
	scratch  *bufferPool
}

// pendingTick tracks one tick's in-flight device work until finalize.
type pendingTick struct {
	tick        uint64
	outstanding int
	nextSeq     int

	// batches holds in-flight submissions by seq, kept for the half-size
	// retry; retried marks seqs that are already second attempts.
	batches map[int]device.Batch
	retried map[int]bool

	computed []*Chunk
	borrowed [][]float32
}

func (s *scheduler) dispatchTick(tick uint64, keys []uint64) *pendingTick {
	p := &pendingTick{
		tick:    tick,
		batches: map[int]device.Batch{},
		retried: map[int]bool{},
	}
	jobs := make([]device.ChunkJob, 0, s.capacity)
	for _, key := range keys {
		ch, err := s.store.getOrCreate(s.codec.Decode(key))
		if err != nil {
			// Active keys always decode into the domain.
			continue
		}
		in := s.scratch.get()
		s.gather(ch, in)
		s.store.markComputed(ch)
		p.computed = append(p.computed, ch)
		p.borrowed = append(p.borrowed, in)
		jobs = append(jobs, device.ChunkJob{Key: key, In: in, Out: ch.next})
		if len(jobs) == s.capacity {
			s.submit(p, jobs, false)
			jobs = make([]device.ChunkJob, 0, s.capacity)
		}
	}
	if len(jobs) > 0 {
		s.submit(p, jobs, false)
	}
	return p
}

func (s *scheduler) submit(p *pendingTick, jobs []device.ChunkJob, retry bool) {
	b := device.Batch{
		Tick:    p.tick,
		Seq:     p.nextSeq,
		Program: s.program,
		Geom:    s.geom,
		Jobs:    jobs,
	}
	p.batches[b.Seq] = b
	p.retried[b.Seq] = retry
	p.nextSeq++
	p.outstanding++
	s.queue.Submit(b)
}

// retryHalved resubmits a failed batch's chunks as two half-size batches,
// each marked as a second attempt.
func (s *scheduler) retryHalved(p *pendingTick, b device.Batch) {
	half := (len(b.Jobs) + 1) / 2
	for _, part := range [2][]device.ChunkJob{b.Jobs[:half], b.Jobs[half:]} {
		if len(part) == 0 {
			continue
		}
		s.submit(p, part, true)
	}
}

// gather fills a padded halo block: the chunk's own published cells in the
// interior and the neighbors' published border cells in the one-cell ring.
// Cells beyond allocated chunks or the domain edge read as default.
func (s *scheduler) gather(ch *Chunk, in []float32) {
	g := s.geom
	e := g.Edge
	base := spatial.Coord{X: ch.coord.X * e, Y: ch.coord.Y * e, Z: ch.coord.Z * e}

	zLo, zHi := 0, 0
	if g.Dims == 3 {
		zLo, zHi = -1, e
	}
	for z := zLo; z <= zHi; z++ {
		for y := -1; y <= e; y++ {
			if z >= 0 && z < e && y >= 0 && y < e {
				// Interior row: straight copy from the published buffer.
				dst := g.In(0, y, z)
				src := g.Out(0, y, z)
				copy(in[dst:dst+e*g.Stride], ch.cur[src:src+e*g.Stride])
				for _, x := range [2]int{-1, e} {
					cell := s.store.peek(spatial.Coord{X: base.X + x, Y: base.Y + y, Z: base.Z + z})
					copy(in[g.In(x, y, z):g.In(x, y, z)+g.Stride], cell[:g.Stride])
				}
				continue
			}
			// Halo row.
			for x := -1; x <= e; x++ {
				cell := s.store.peek(spatial.Coord{X: base.X + x, Y: base.Y + y, Z: base.Z + z})
				copy(in[g.In(x, y, z):g.In(x, y, z)+g.Stride], cell[:g.Stride])
			}
		}
	}
}
