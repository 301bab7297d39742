package grid

import "fluxgrid.dev/internal/spatial"

// View is a consumer's read-only handle on one published generation. It is
// valid until the next commit; after that every read fails ErrStaleView and
// the consumer must re-acquire. Views never allocate chunks: absent cells
// read as the default value.
type View struct {
	e   *Engine
	gen uint64
}

// AcquireView captures the current published generation.
func (e *Engine) AcquireView() *View {
	return &View{e: e, gen: e.frames.Generation()}
}

// Generation is the generation this view was acquired at.
func (v *View) Generation() uint64 { return v.gen }

// Valid reports whether the view still refers to the published generation.
// Advisory only; Read re-checks under the store lock.
func (v *View) Valid() bool { return v.gen == v.e.frames.Generation() }

// ChunkCells copies a chunk's published cells along with the generation they
// belong to. Absent chunks report ok=false. The generation is read under the
// same lock as the cells, so the pair is always consistent.
func (e *Engine) ChunkCells(key uint64) (cells []float32, gen uint64, ok bool) {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	gen = e.frames.Generation()
	ch, ok := e.store.chunks[key]
	if !ok {
		return nil, gen, false
	}
	cells = make([]float32, len(ch.cur))
	copy(cells, ch.cur)
	return cells, gen, true
}

// Read returns a cell of the view's generation. Fails ErrStaleView once a
// newer generation has been published, and ErrOutOfBounds for coordinates
// outside the domain. The staleness check and the cell copy happen under the
// store read lock, and commits advance the generation inside the write
// lock, so a valid read never returns cells of a later generation.
func (v *View) Read(c spatial.Coord) (Cell, error) {
	st := v.e.store
	cc, off, err := st.locate(c)
	if err != nil {
		return Cell{}, err
	}
	key, err := st.codec.Encode(cc)
	if err != nil {
		return Cell{}, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if v.gen != v.e.frames.Generation() {
		return Cell{}, ErrStaleView
	}
	var cell Cell
	if ch := st.chunks[key]; ch != nil {
		copy(cell[:st.geom.Stride], ch.cur[off:off+st.geom.Stride])
	}
	return cell, nil
}
