package device

import (
	"math"
	"testing"
)

func padded(g Geometry) []float32  { return make([]float32, g.PaddedCells()*g.Stride) }
func unpadded(g Geometry) []float32 { return make([]float32, g.Cells()*g.Stride) }

func TestGeometry_Indexing(t *testing.T) {
	g := Geometry{Dims: 2, Edge: 8, Stride: 2}
	if g.Cells() != 64 {
		t.Fatalf("cells = %d, want 64", g.Cells())
	}
	if g.PaddedCells() != 100 {
		t.Fatalf("padded cells = %d, want 100", g.PaddedCells())
	}
	if g.In(-1, -1, 0) != 0 {
		t.Fatalf("halo corner should index 0, got %d", g.In(-1, -1, 0))
	}
	if g.Out(0, 0, 0) != 0 || g.Out(7, 7, 0) != 63*2 {
		t.Fatalf("out indexing broken: %d %d", g.Out(0, 0, 0), g.Out(7, 7, 0))
	}

	g3 := Geometry{Dims: 3, Edge: 4, Stride: 1}
	if g3.Cells() != 64 || g3.PaddedCells() != 216 {
		t.Fatalf("3D cells=%d padded=%d", g3.Cells(), g3.PaddedCells())
	}
	// Every cell and halo position maps to a distinct slot.
	seen := map[int]bool{}
	for z := -1; z <= 4; z++ {
		for y := -1; y <= 4; y++ {
			for x := -1; x <= 4; x++ {
				i := g3.In(x, y, z)
				if seen[i] {
					t.Fatalf("duplicate padded index %d at (%d,%d,%d)", i, x, y, z)
				}
				seen[i] = true
			}
		}
	}
}

func TestLookupProgram(t *testing.T) {
	if _, err := LookupProgram(ProgramDiffuse, 3); err != nil {
		t.Fatalf("diffuse 3D: %v", err)
	}
	if _, err := LookupProgram(ProgramLife, 3); err == nil {
		t.Fatalf("life should reject 3D")
	}
	if _, err := LookupProgram("PLASMA", 2); err == nil {
		t.Fatalf("unknown program should fail")
	}
}

func TestDiffuseKernel_UniformFieldIsFixedPoint(t *testing.T) {
	g := Geometry{Dims: 2, Edge: 8, Stride: 1}
	in := padded(g)
	for i := range in {
		in[i] = 0.5
	}
	out := unpadded(g)
	diffuseKernel(g, in, out)
	for i, v := range out {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Fatalf("cell %d = %g, want 0.5", i, v)
		}
	}
}

func TestDiffuseKernel_SpreadsPeak(t *testing.T) {
	g := Geometry{Dims: 2, Edge: 8, Stride: 1}
	in := padded(g)
	in[g.In(4, 4, 0)] = 1
	out := unpadded(g)
	diffuseKernel(g, in, out)
	if out[g.Out(4, 4, 0)] >= 1 {
		t.Fatalf("peak did not decay: %g", out[g.Out(4, 4, 0)])
	}
	for _, p := range [][2]int{{3, 4}, {5, 4}, {4, 3}, {4, 5}} {
		if out[g.Out(p[0], p[1], 0)] <= 0 {
			t.Fatalf("neighbor (%d,%d) did not gain mass", p[0], p[1])
		}
	}
	if out[g.Out(0, 0, 0)] != 0 {
		t.Fatalf("far cell changed: %g", out[g.Out(0, 0, 0)])
	}
}

func TestLifeKernel_Blinker(t *testing.T) {
	g := Geometry{Dims: 2, Edge: 8, Stride: 1}
	in := padded(g)
	// Horizontal blinker at row 3, columns 2..4.
	for x := 2; x <= 4; x++ {
		in[g.In(x, 3, 0)] = 1
	}
	out := unpadded(g)
	lifeKernel(g, in, out)
	// Becomes a vertical blinker at column 3, rows 2..4.
	for y := 2; y <= 4; y++ {
		if out[g.Out(3, y, 0)] != 1 {
			t.Fatalf("cell (3,%d) should be alive", y)
		}
	}
	if out[g.Out(2, 3, 0)] != 0 || out[g.Out(4, 3, 0)] != 0 {
		t.Fatalf("horizontal arms should die")
	}
}

func TestWaveKernel_RestStaysAtRest(t *testing.T) {
	g := Geometry{Dims: 2, Edge: 8, Stride: 2}
	in := padded(g)
	out := unpadded(g)
	waveKernel(g, in, out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("component %d = %g, want 0", i, v)
		}
	}
}
