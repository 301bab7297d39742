package grid

import (
	"errors"
	"sync"
	"testing"

	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/spatial"
)

// Every commit writes the same value into two cells of one chunk; a view
// that reads both without ErrStaleView must see them equal. Reading across
// a commit boundary must fail rather than hand back the newer buffer.
func TestView_NeverMixesGenerations(t *testing.T) {
	eng := newTestEngine(t, testConfig(), device.Options{Workers: 1})
	a := spatial.Coord{X: 2, Y: 2}
	b := spatial.Coord{X: 3, Y: 2}

	const commits = 500
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(stop)
		for i := 1; i <= commits; i++ {
			v := Cell{0: float32(i)}
			if _, err := eng.store.Write(a, v); err != nil {
				return
			}
			if _, err := eng.store.Write(b, v); err != nil {
				return
			}
			eng.store.applyWrites()
			eng.frames.commit(eng.store, uint64(i), 0, 0)
		}
	}()

	for done := false; !done; {
		select {
		case <-stop:
			done = true
		default:
		}
		v := eng.AcquireView()
		ca, errA := v.Read(a)
		if errA != nil {
			if !errors.Is(errA, ErrStaleView) {
				t.Fatalf("read a: %v", errA)
			}
			continue
		}
		cb, errB := v.Read(b)
		if errB != nil {
			// Superseded between the two reads; the allowed outcome.
			if !errors.Is(errB, ErrStaleView) {
				t.Fatalf("read b: %v", errB)
			}
			continue
		}
		if ca[0] != cb[0] {
			t.Fatalf("valid view mixed generations: %g then %g (view gen %d)",
				ca[0], cb[0], v.Generation())
		}
	}
	wg.Wait()

	if eng.Generation() != commits {
		t.Fatalf("generation = %d, want %d", eng.Generation(), commits)
	}
}
