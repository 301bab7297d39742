package grid

import (
	"fmt"
	"io"

	"fluxgrid.dev/internal/persistence/snapshot"
)

// buildSnapshot captures the published grid state. All-default chunks are
// omitted; restore recreates them implicitly.
func (e *Engine) buildSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Dims:       e.cfg.Dims,
			AxisBits:   e.cfg.AxisBits,
			ChunkEdge:  e.cfg.ChunkEdge,
			Stride:     e.geom.Stride,
			Generation: e.frames.Generation(),
			Tick:       e.tick.Load(),
		},
	}
	for _, key := range e.store.Keys() {
		ch, ok := e.store.ChunkAt(key)
		if !ok || allZero(ch.cur) {
			continue
		}
		cells := make([]float32, len(ch.cur))
		copy(cells, ch.cur)
		snap.Chunks = append(snap.Chunks, snapshot.ChunkV1{Key: key, Cells: cells})
	}
	return snap
}

// WriteSnapshot serializes the published grid state.
func (e *Engine) WriteSnapshot(w io.Writer) error {
	return snapshot.Write(w, e.buildSnapshot())
}

// WriteSnapshotFile writes the snapshot to disk atomically: a crash mid-write
// never leaves a truncated snapshot at the target path.
func (e *Engine) WriteSnapshotFile(path string) error {
	return snapshot.WriteFile(path, e.buildSnapshot())
}

// RestoreSnapshot replaces the grid contents with a snapshot's. The snapshot
// is fully validated before any existing state is touched; on error the grid
// is unchanged. Restored chunks are seeded active so the simulation resumes.
func (e *Engine) RestoreSnapshot(r io.Reader) error {
	snap, err := snapshot.Read(r)
	if err != nil {
		return err
	}
	h := snap.Header
	if h.Dims != e.cfg.Dims || h.AxisBits != e.cfg.AxisBits ||
		h.ChunkEdge != e.cfg.ChunkEdge || h.Stride != e.geom.Stride {
		return fmt.Errorf("%w: geometry %dD/%db/edge%d/stride%d does not match engine %dD/%db/edge%d/stride%d",
			snapshot.ErrCorrupt,
			h.Dims, h.AxisBits, h.ChunkEdge, h.Stride,
			e.cfg.Dims, e.cfg.AxisBits, e.cfg.ChunkEdge, e.geom.Stride)
	}
	cells := e.geom.Cells() * e.geom.Stride
	for _, cv := range snap.Chunks {
		if len(cv.Cells) != cells {
			return fmt.Errorf("%w: chunk %d has %d cells, want %d",
				snapshot.ErrCorrupt, cv.Key, len(cv.Cells), cells)
		}
		// Decode masks bits above the key width, so round-trip through
		// Encode to reject keys with garbage high bits as well as
		// out-of-domain ones.
		canon, err := e.codec.Encode(e.codec.Decode(cv.Key))
		if err != nil || canon != cv.Key {
			return fmt.Errorf("%w: chunk key %d outside domain", snapshot.ErrCorrupt, cv.Key)
		}
	}

	e.store.RemoveAll()
	e.tracker.Reset()
	for _, cv := range snap.Chunks {
		ch, err := e.store.getOrCreate(e.codec.Decode(cv.Key))
		if err != nil {
			// Unreachable: keys were validated above.
			return err
		}
		copy(ch.cur, cv.Cells)
		ch.dirty = true
		e.tracker.Seed(cv.Key)
	}
	e.frames.gen.Store(h.Generation)
	e.tick.Store(h.Tick)
	return nil
}

func allZero(b []float32) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
