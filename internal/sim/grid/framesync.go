package grid

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"fluxgrid.dev/internal/device"
)

// bufferPool recycles cell and halo buffers across ticks so steady-state
// ticking never allocates. Owned by the frame synchronizer; accessed only on
// the host tick goroutine.
type bufferPool struct {
	size int
	free [][]float32
}

func newBufferPool(size int) *bufferPool {
	return &bufferPool{size: size}
}

func (p *bufferPool) get() []float32 {
	n := len(p.free)
	if n == 0 {
		return make([]float32, p.size)
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]
	for i := range b {
		b[i] = 0
	}
	return b
}

func (p *bufferPool) put(b []float32) {
	if cap(b) < p.size {
		return
	}
	p.free = append(p.free, b[:p.size])
}

// Publication announces a committed generation to consumers.
type Publication struct {
	Generation   uint64
	Tick         uint64
	ActiveChunks int
	Batches      int
}

// frameSync finalizes ticks: it is the only host suspension point, waiting
// for every batch of the tick to retire, orchestrating the half-size retry,
// committing the swap and publishing the new generation.
type frameSync struct {
	queue   device.Queue
	pool    *bufferPool
	scratch *bufferPool

	gen atomic.Uint64

	subMu sync.Mutex
	subs  []chan Publication
}

func newFrameSync(q device.Queue, cells, padded int) *frameSync {
	return &frameSync{
		queue:   q,
		pool:    newBufferPool(cells),
		scratch: newBufferPool(padded),
	}
}

// Generation is the last published generation.
func (f *frameSync) Generation() uint64 { return f.gen.Load() }

// wait blocks until every batch of the pending tick has retired. A failed
// batch is resubmitted once at half size; a second failure is fatal for the
// tick. On cancellation the remaining batches are still drained (their
// output buffers are engine-owned) before the abort is reported.
func (f *frameSync) wait(ctx context.Context, sched *scheduler, p *pendingTick) error {
	defer func() {
		for _, b := range p.borrowed {
			f.scratch.put(b)
		}
		p.borrowed = nil
	}()

	var fatal error
	cancelled := false
	for p.outstanding > 0 {
		var res device.Result
		var ok bool
		if cancelled {
			res, ok = <-f.queue.Results()
		} else {
			select {
			case <-ctx.Done():
				cancelled = true
				continue
			case res, ok = <-f.queue.Results():
			}
		}
		if !ok {
			// Result stream closed with batches in flight: the device is
			// gone and nothing further will retire.
			if cancelled {
				return ctx.Err()
			}
			if fatal == nil {
				fatal = &DispatchError{
					Tick: p.tick,
					Keys: pendingKeys(p),
					Err:  fmt.Errorf("%w: result stream closed", device.ErrDeviceFault),
				}
			}
			return fatal
		}
		if res.Tick != p.tick {
			// Straggler from an aborted tick; already accounted for.
			continue
		}
		p.outstanding--
		b, ok := p.batches[res.Seq]
		if !ok {
			continue
		}
		delete(p.batches, res.Seq)
		if res.Err == nil {
			continue
		}
		if fatal == nil && !cancelled && !p.retried[res.Seq] {
			sched.retryHalved(p, b)
			continue
		}
		if fatal == nil {
			fatal = &DispatchError{Tick: p.tick, Keys: res.Keys, Err: res.Err}
		}
	}
	if cancelled {
		return ctx.Err()
	}
	return fatal
}

// pendingKeys lists the chunk keys of every batch still in flight, sorted
// for deterministic error reporting.
func pendingKeys(p *pendingTick) []uint64 {
	var keys []uint64
	for _, b := range p.batches {
		keys = append(keys, b.Keys()...)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// commit swaps the touched chunks, advances the generation and notifies
// subscribers. Swap and generation bump happen together under the store
// lock, so no consumer ever observes a buffer mixing two generations.
func (f *frameSync) commit(st *Store, tick uint64, active, batches int) uint64 {
	_, gen := st.swapTouched(&f.gen)
	f.publish(Publication{
		Generation:   gen,
		Tick:         tick,
		ActiveChunks: active,
		Batches:      batches,
	})
	return gen
}

// Subscribe registers a consumer channel for publication events. Slow
// consumers miss publications rather than stalling the tick loop.
func (f *frameSync) Subscribe(buf int) <-chan Publication {
	ch := make(chan Publication, buf)
	f.subMu.Lock()
	f.subs = append(f.subs, ch)
	f.subMu.Unlock()
	return ch
}

func (f *frameSync) publish(pub Publication) {
	f.subMu.Lock()
	for _, ch := range f.subs {
		select {
		case ch <- pub:
		default:
		}
	}
	f.subMu.Unlock()
}

func (f *frameSync) closeSubs() {
	f.subMu.Lock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
	f.subMu.Unlock()
}
