package grid

import (
	"errors"
	"sync/atomic"
	"testing"

	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/spatial"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	codec, err := spatial.NewCodec(2, 4)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	geom := device.Geometry{Dims: 2, Edge: 8, Stride: 1}
	return newStore(codec, geom, newBufferPool(geom.Cells()*geom.Stride))
}

func TestStore_PeekNeverAllocates(t *testing.T) {
	s := newTestStore(t)

	if cell := s.peek(spatial.Coord{X: 5, Y: 5}); cell != (Cell{}) {
		t.Fatalf("absent cell = %v", cell)
	}
	if cell := s.peek(spatial.Coord{X: -1, Y: 0}); cell != (Cell{}) {
		t.Fatalf("out-of-domain cell = %v", cell)
	}
	if s.Len() != 0 {
		t.Fatalf("peek allocated %d chunks", s.Len())
	}

	if _, err := s.Read(spatial.Coord{X: 5, Y: 5}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("read allocated %d chunks, want 1", s.Len())
	}
}

func TestStore_WriteInvisibleUntilSwap(t *testing.T) {
	s := newTestStore(t)
	c := spatial.Coord{X: 9, Y: 2}

	key, err := s.Write(c, Cell{0: 4})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if want := s.mustKey(t, spatial.Coord{X: 1, Y: 0}); key != want {
		t.Fatalf("write key = %d, want %d", key, want)
	}
	if cell := s.peek(c); cell[0] != 0 {
		t.Fatalf("staged write visible: %v", cell)
	}

	s.applyWrites()
	var gen atomic.Uint64
	n, g := s.swapTouched(&gen)
	if n != 1 || g != 1 {
		t.Fatalf("swap = %d chunks at generation %d, want 1 at 1", n, g)
	}
	if cell := s.peek(c); cell[0] != 4 {
		t.Fatalf("committed write invisible: %v", cell)
	}
}

func TestStore_DiscardDropsStagedTick(t *testing.T) {
	s := newTestStore(t)
	c := spatial.Coord{X: 3, Y: 3}

	if _, err := s.Write(c, Cell{0: 7}); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.discard()
	var gen atomic.Uint64
	if n, _ := s.swapTouched(&gen); n != 0 {
		t.Fatalf("swap after discard touched %d chunks", n)
	}
	if cell := s.peek(c); cell[0] != 0 {
		t.Fatalf("discarded write committed: %v", cell)
	}
}

func TestStore_OutOfBounds(t *testing.T) {
	s := newTestStore(t)
	// 16 chunks of edge 8 per axis: cells [0,128).
	for _, c := range []spatial.Coord{{X: -1}, {Y: 128}, {X: 128}, {Z: 8}} {
		if _, err := s.Read(c); !errors.Is(err, spatial.ErrOutOfBounds) {
			t.Fatalf("read %v: %v", c, err)
		}
		if _, err := s.Write(c, Cell{}); !errors.Is(err, spatial.ErrOutOfBounds) {
			t.Fatalf("write %v: %v", c, err)
		}
	}
}

func TestStore_RemoveRegionDropsQueuedWrites(t *testing.T) {
	s := newTestStore(t)

	// One write inside the region, one outside.
	if _, err := s.Write(spatial.Coord{X: 1, Y: 1}, Cell{0: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Write(spatial.Coord{X: 40, Y: 40}, Cell{0: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed := s.RemoveRegion(spatial.Coord{}, spatial.Coord{X: 1, Y: 1})
	if len(removed) != 1 {
		t.Fatalf("removed = %v, want one chunk", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("chunks after removal = %d, want 1", s.Len())
	}

	// The surviving write still commits; the removed one is gone for good.
	s.applyWrites()
	var gen atomic.Uint64
	s.swapTouched(&gen)
	if cell := s.peek(spatial.Coord{X: 40, Y: 40}); cell[0] != 2 {
		t.Fatalf("surviving write lost: %v", cell)
	}
	if cell := s.peek(spatial.Coord{X: 1, Y: 1}); cell[0] != 0 {
		t.Fatalf("removed chunk data resurrected: %v", cell)
	}
}

func (s *Store) mustKey(t *testing.T, cc spatial.Coord) uint64 {
	t.Helper()
	key, err := s.codec.Encode(cc)
	if err != nil {
		t.Fatalf("encode %v: %v", cc, err)
	}
	return key
}
