package grid

import (
	"context"
	"sync/atomic"

	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/spatial"
)

// Engine is one simulation instance: it owns the grid store, activity
// tracker, buffer pool and dispatch scheduler, and is passed explicitly to
// everything that needs them. A single host goroutine drives Step; ticks are
// strictly sequential. Consumers read published generations concurrently
// through views.
type Engine struct {
	cfg   Config
	codec spatial.Codec
	geom  device.Geometry

	store   *Store
	tracker *Tracker
	sched   *scheduler
	frames  *frameSync

	queue device.Queue

	tick   atomic.Uint64
	closed bool
}

// StepResult summarizes one committed tick.
type StepResult struct {
	Generation   uint64
	Tick         uint64
	ActiveChunks int
	Batches      int
}

// New validates the configuration and builds an engine on the given device
// queue. The queue's resident program must match cfg.Program.
func New(cfg Config, q device.Queue) (*Engine, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := spatial.NewCodec(cfg.Dims, cfg.AxisBits)
	if err != nil {
		return nil, err
	}
	geom := cfg.geometry()
	frames := newFrameSync(q, geom.Cells()*geom.Stride, geom.PaddedCells()*geom.Stride)
	store := newStore(codec, geom, frames.pool)
	e := &Engine{
		cfg:     cfg,
		codec:   codec,
		geom:    geom,
		store:   store,
		tracker: newTracker(codec, cfg.Neighborhood, cfg.Epsilon, cfg.StableTicks),
		frames:  frames,
		queue:   q,
	}
	e.sched = &scheduler{
		store:    store,
		codec:    codec,
		geom:     geom,
		program:  cfg.Program,
		capacity: cfg.BatchCapacity,
		queue:    q,
		scratch:  frames.scratch,
	}
	return e, nil
}

func (e *Engine) Config() Config            { return e.cfg }
func (e *Engine) Codec() spatial.Codec      { return e.codec }
func (e *Engine) Geometry() device.Geometry { return e.geom }

// Generation is the last published generation.
func (e *Engine) Generation() uint64 { return e.frames.Generation() }

// Tick is the number of ticks attempted so far.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// ActiveChunks lists the active set in deterministic order.
func (e *Engine) ActiveChunks() []uint64 { return e.tracker.ActiveKeys() }

// ChunkCount is the number of allocated chunks.
func (e *Engine) ChunkCount() int { return e.store.Len() }

// Step advances the simulation one tick: dispatch the active set, wait for
// the device, reassess stability, swap and publish. On any error the grid
// remains at the last published generation with no partial commit; a
// DispatchError additionally names the failing batch's chunk keys.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	if e.closed {
		return StepResult{}, ErrEngineClosed
	}
	tick := e.tick.Add(1)

	keys := e.tracker.ActiveKeys()
	pending := e.sched.dispatchTick(tick, keys)

	if err := e.frames.wait(ctx, e.sched, pending); err != nil {
		e.store.discard()
		return StepResult{Generation: e.frames.Generation(), Tick: tick}, err
	}

	// Host writes queued during the tick land on top of kernel output, then
	// stability is judged against the published cells before the swap.
	e.store.applyWrites()
	var changed []uint64
	for _, ch := range pending.computed {
		if e.tracker.Recompute(ch.key, ch.cur, ch.next) {
			changed = append(changed, ch.key)
		}
	}
	e.tracker.Propagate(changed)

	gen := e.frames.commit(e.store, tick, len(keys), pending.nextSeq)
	return StepResult{
		Generation:   gen,
		Tick:         tick,
		ActiveChunks: len(keys),
		Batches:      pending.nextSeq,
	}, nil
}

// Read returns a cell's published value, allocating its chunk on first
// access.
func (e *Engine) Read(c spatial.Coord) (Cell, error) {
	return e.store.Read(c)
}

// Write queues a cell value for the next commit and marks the chunk active.
// The published buffer is never mutated.
func (e *Engine) Write(c spatial.Coord, cell Cell) error {
	key, err := e.store.Write(c, cell)
	if err != nil {
		return err
	}
	e.tracker.Seed(key)
	return nil
}

// Seed marks chunks (by chunk coordinate) active for recomputation, e.g. on
// external stimulus injection.
func (e *Engine) Seed(chunkCoords ...spatial.Coord) error {
	for _, cc := range chunkCoords {
		key, err := e.codec.Encode(cc)
		if err != nil {
			return err
		}
		e.tracker.Seed(key)
	}
	return nil
}

// Subscribe registers a consumer for generation publications.
func (e *Engine) Subscribe(buf int) <-chan Publication {
	return e.frames.Subscribe(buf)
}

// ResetRegion destroys every chunk inside the inclusive chunk-coordinate box
// and drops them from the active set. Returns the number removed.
func (e *Engine) ResetRegion(min, max spatial.Coord) int {
	removed := e.store.RemoveRegion(min, max)
	e.tracker.Forget(removed...)
	return len(removed)
}

// Close tears the engine down. The device queue is left to the owner that
// supplied it.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.store.discard()
	e.frames.closeSubs()
}
