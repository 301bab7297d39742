package grid

import (
	"sort"

	"fluxgrid.dev/internal/spatial"
)

// Tracker maintains the active set: the chunks still worth recomputing.
// Per-chunk state walks Inactive -> Active(stable=0..K-1) -> Inactive once
// the stability counter reaches K consecutive quiet ticks. Any changed chunk
// forces its topological neighbors back to Active with the counter reset,
// which is what carries wavefronts across chunk borders.
//
// Mutated only on the host tick goroutine, at the seed and reassess phase
// boundaries.
type Tracker struct {
	codec   spatial.Codec
	hood    spatial.Neighborhood
	epsilon float64
	k       int

	// stable maps active chunk keys to their consecutive-quiet-tick count.
	stable map[uint64]int
}

func newTracker(codec spatial.Codec, hood spatial.Neighborhood, epsilon float64, k int) *Tracker {
	return &Tracker{
		codec:   codec,
		hood:    hood,
		epsilon: epsilon,
		k:       k,
		stable:  map[uint64]int{},
	}
}

// Seed marks chunks active with a fresh stability counter. Used at
// initialization, on restore and on external stimulus injection.
func (t *Tracker) Seed(keys ...uint64) {
	for _, k := range keys {
		t.stable[k] = 0
	}
}

// Active reports whether a chunk is in the active set.
func (t *Tracker) Active(key uint64) bool {
	_, ok := t.stable[key]
	return ok
}

// StableCount returns the chunk's consecutive-quiet-tick count; chunks not in
// the active set report -1.
func (t *Tracker) StableCount(key uint64) int {
	n, ok := t.stable[key]
	if !ok {
		return -1
	}
	return n
}

// ActiveKeys lists the active set in ascending key order. The order is what
// keeps dispatch batching deterministic.
func (t *Tracker) ActiveKeys() []uint64 {
	keys := make([]uint64, 0, len(t.stable))
	for k := range t.stable {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len is the active set size.
func (t *Tracker) Len() int { return len(t.stable) }

// Recompute folds one chunk's post-kernel outcome into its stability state.
// old and next are the chunk's pre- and post-tick cells; the stability metric
// is the max absolute per-component delta measured against epsilon. Returns
// whether the chunk changed. Neighbor forcing is a separate phase
// (Propagate), so that same-tick deactivations cannot mask a border change.
func (t *Tracker) Recompute(key uint64, old, next []float32) bool {
	changed := maxAbsDelta(old, next) > float32(t.epsilon)
	if changed {
		t.stable[key] = 0
		return true
	}
	n := t.stable[key] + 1
	if n >= t.k {
		delete(t.stable, key)
	} else {
		t.stable[key] = n
	}
	return false
}

// Propagate forces every topological neighbor of the changed chunks to
// Active with a reset counter, whether or not it was computed this tick.
func (t *Tracker) Propagate(changed []uint64) {
	for _, key := range changed {
		cc := t.codec.Decode(key)
		for _, nk := range t.codec.NeighborKeys(cc, t.hood) {
			t.stable[nk] = 0
		}
	}
}

// Forget drops chunks from the active set without hysteresis. Used by region
// resets.
func (t *Tracker) Forget(keys ...uint64) {
	for _, k := range keys {
		delete(t.stable, k)
	}
}

// Reset empties the active set. Used on restore and teardown.
func (t *Tracker) Reset() {
	t.stable = map[uint64]int{}
}

func maxAbsDelta(a, b []float32) float32 {
	var m float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > m {
			m = d
		}
	}
	return m
}
