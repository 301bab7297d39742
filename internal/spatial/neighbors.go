package spatial

// Neighborhood selects which chunks count as topologically adjacent for halo
// exchange and activity propagation.
type Neighborhood int

const (
	// Face neighbors only: 4 in 2D, 6 in 3D.
	NeighborhoodFace Neighborhood = iota
	// Full Moore neighborhood: 8 in 2D, 26 in 3D.
	NeighborhoodMoore
)

func (n Neighborhood) String() string {
	switch n {
	case NeighborhoodFace:
		return "FACE"
	case NeighborhoodMoore:
		return "MOORE"
	default:
		return "UNKNOWN"
	}
}

// Offsets returns the relative coordinate offsets of the neighborhood for the
// given dimensionality, in a fixed deterministic order.
func (n Neighborhood) Offsets(dims int) []Coord {
	if dims == 2 {
		if n == NeighborhoodFace {
			return []Coord{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}}
		}
		out := make([]Coord, 0, 8)
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				out = append(out, Coord{X: dx, Y: dy})
			}
		}
		return out
	}
	if n == NeighborhoodFace {
		return []Coord{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}, {Z: -1}, {Z: 1}}
	}
	out := make([]Coord, 0, 26)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, Coord{X: dx, Y: dy, Z: dz})
			}
		}
	}
	return out
}

// Neighbors lists the in-domain neighbors of coord under the neighborhood.
// Out-of-domain neighbors (at the grid boundary) are simply absent.
func (c Codec) Neighbors(coord Coord, n Neighborhood) []Coord {
	offs := n.Offsets(c.dims)
	out := make([]Coord, 0, len(offs))
	for _, d := range offs {
		nc := Coord{X: coord.X + d.X, Y: coord.Y + d.Y, Z: coord.Z + d.Z}
		if c.Check(nc) != nil {
			continue
		}
		out = append(out, nc)
	}
	return out
}

// NeighborKeys is Neighbors followed by Encode.
func (c Codec) NeighborKeys(coord Coord, n Neighborhood) []uint64 {
	ns := c.Neighbors(coord, n)
	keys := make([]uint64, 0, len(ns))
	for _, nc := range ns {
		k, err := c.Encode(nc)
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
