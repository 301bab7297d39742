package device

import "fmt"

// ProgramID names one of the precompiled kernel programs. The set is closed:
// programs are selected by configuration at setup, never loaded at runtime.
type ProgramID string

const (
	// ProgramDiffuse relaxes a scalar field toward the mean of its face
	// neighbors.
	ProgramDiffuse ProgramID = "DIFFUSE"
	// ProgramWave integrates a height/velocity pair under the discrete wave
	// equation.
	ProgramWave ProgramID = "WAVE"
	// ProgramLife runs Conway's rules on a binary field (2D only).
	ProgramLife ProgramID = "LIFE"
)

// Kernel computes one chunk update from its padded halo block.
type Kernel func(g Geometry, in, out []float32)

// Program is one entry of the closed kernel set.
type Program struct {
	ID     ProgramID
	Stride int
	// Dims restricts the program to one dimensionality; 0 means any.
	Dims   int
	Kernel Kernel
}

var programs = map[ProgramID]Program{
	ProgramDiffuse: {ID: ProgramDiffuse, Stride: 1, Kernel: diffuseKernel},
	ProgramWave:    {ID: ProgramWave, Stride: 2, Kernel: waveKernel},
	ProgramLife:    {ID: ProgramLife, Stride: 1, Dims: 2, Kernel: lifeKernel},
}

// LookupProgram resolves a program by ID for the given dimensionality.
func LookupProgram(id ProgramID, dims int) (Program, error) {
	p, ok := programs[id]
	if !ok {
		return Program{}, fmt.Errorf("unknown kernel program %q", id)
	}
	if p.Dims != 0 && p.Dims != dims {
		return Program{}, fmt.Errorf("kernel program %q requires %dD, grid is %dD", id, p.Dims, dims)
	}
	return p, nil
}

// faceOffsets3 is shared by the scalar kernels; 2D kernels use the first four.
var faceOffsets3 = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

func eachCell(g Geometry, fn func(x, y, z int)) {
	zMax := 1
	if g.Dims == 3 {
		zMax = g.Edge
	}
	for z := 0; z < zMax; z++ {
		for y := 0; y < g.Edge; y++ {
			for x := 0; x < g.Edge; x++ {
				fn(x, y, z)
			}
		}
	}
}

const diffuseRate = 0.18

func diffuseKernel(g Geometry, in, out []float32) {
	faces := 4
	if g.Dims == 3 {
		faces = 6
	}
	eachCell(g, func(x, y, z int) {
		c := in[g.In(x, y, z)]
		var lap float32
		for _, d := range faceOffsets3[:faces] {
			lap += in[g.In(x+d[0], y+d[1], z+d[2])] - c
		}
		out[g.Out(x, y, z)] = c + diffuseRate*lap
	})
}

const (
	waveSpeed   = 0.25
	waveDamping = 0.998
)

// waveKernel: component 0 is displacement, component 1 is velocity.
func waveKernel(g Geometry, in, out []float32) {
	faces := 4
	if g.Dims == 3 {
		faces = 6
	}
	eachCell(g, func(x, y, z int) {
		i := g.In(x, y, z)
		h := in[i]
		var lap float32
		for _, d := range faceOffsets3[:faces] {
			lap += in[g.In(x+d[0], y+d[1], z+d[2])] - h
		}
		v := (in[i+1] + waveSpeed*lap) * waveDamping
		o := g.Out(x, y, z)
		out[o] = h + v
		out[o+1] = v
	})
}

func lifeKernel(g Geometry, in, out []float32) {
	eachCell(g, func(x, y, z int) {
		alive := in[g.In(x, y, 0)] >= 0.5
		n := 0
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				if in[g.In(x+dx, y+dy, 0)] >= 0.5 {
					n++
				}
			}
		}
		next := float32(0)
		if n == 3 || (alive && n == 2) {
			next = 1
		}
		out[g.Out(x, y, 0)] = next
	})
}
