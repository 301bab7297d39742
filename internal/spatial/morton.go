package spatial

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds reports a coordinate outside the configured domain.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrConfigInvalid reports an axis-bits/dimension combination that cannot
	// fit a 64-bit key.
	ErrConfigInvalid = errors.New("invalid codec config")
)

// Coord is a grid coordinate. Z is ignored (and must be zero) in 2D.
type Coord struct {
	X, Y, Z int
}

// Codec interleaves coordinate axis bits into a single Morton key so that
// spatially adjacent coordinates map to nearby keys. Encode and Decode are
// exact inverses over [0, 2^bits)^dims.
type Codec struct {
	dims    int
	bits    int
	maxAxis uint64
}

func NewCodec(dims, bits int) (Codec, error) {
	if dims != 2 && dims != 3 {
		return Codec{}, fmt.Errorf("%w: dims must be 2 or 3, got %d", ErrConfigInvalid, dims)
	}
	if bits < 1 {
		return Codec{}, fmt.Errorf("%w: axis bits must be positive, got %d", ErrConfigInvalid, bits)
	}
	if bits*dims > 64 {
		return Codec{}, fmt.Errorf("%w: %d bits x %d axes exceeds 64-bit key", ErrConfigInvalid, bits, dims)
	}
	// The constant-time spreaders handle up to 32 bits/axis (2D) and
	// 21 bits/axis (3D).
	if dims == 2 && bits > 32 {
		return Codec{}, fmt.Errorf("%w: 2D axis bits capped at 32, got %d", ErrConfigInvalid, bits)
	}
	if dims == 3 && bits > 21 {
		return Codec{}, fmt.Errorf("%w: 3D axis bits capped at 21, got %d", ErrConfigInvalid, bits)
	}
	return Codec{
		dims:    dims,
		bits:    bits,
		maxAxis: uint64(1)<<uint(bits) - 1,
	}, nil
}

func (c Codec) Dims() int { return c.dims }
func (c Codec) Bits() int { return c.bits }

// MaxAxis is the largest encodable value on any axis.
func (c Codec) MaxAxis() int { return int(c.maxAxis) }

// Encode maps a coordinate to its Morton key. Out-of-domain axis values are
// rejected, never wrapped.
func (c Codec) Encode(coord Coord) (uint64, error) {
	if err := c.Check(coord); err != nil {
		return 0, err
	}
	x := uint64(coord.X)
	y := uint64(coord.Y)
	if c.dims == 2 {
		return spread1(x) | spread1(y)<<1, nil
	}
	z := uint64(coord.Z)
	return spread2(x) | spread2(y)<<1 | spread2(z)<<2, nil
}

// Decode is the inverse of Encode. Key bits above bits*dims are ignored.
func (c Codec) Decode(key uint64) Coord {
	if c.dims == 2 {
		return Coord{
			X: int(compact1(key) & c.maxAxis),
			Y: int(compact1(key>>1) & c.maxAxis),
		}
	}
	return Coord{
		X: int(compact2(key) & c.maxAxis),
		Y: int(compact2(key>>1) & c.maxAxis),
		Z: int(compact2(key>>2) & c.maxAxis),
	}
}

// Check validates a coordinate against the configured domain.
func (c Codec) Check(coord Coord) error {
	if coord.X < 0 || uint64(coord.X) > c.maxAxis {
		return fmt.Errorf("%w: x=%d exceeds %d bits", ErrOutOfBounds, coord.X, c.bits)
	}
	if coord.Y < 0 || uint64(coord.Y) > c.maxAxis {
		return fmt.Errorf("%w: y=%d exceeds %d bits", ErrOutOfBounds, coord.Y, c.bits)
	}
	if c.dims == 2 {
		if coord.Z != 0 {
			return fmt.Errorf("%w: z=%d in a 2D grid", ErrOutOfBounds, coord.Z)
		}
		return nil
	}
	if coord.Z < 0 || uint64(coord.Z) > c.maxAxis {
		return fmt.Errorf("%w: z=%d exceeds %d bits", ErrOutOfBounds, coord.Z, c.bits)
	}
	return nil
}

// spread1 spaces the low 32 bits of v one position apart.
func spread1(v uint64) uint64 {
	v &= 0xffffffff
	v = (v | v<<16) & 0x0000ffff0000ffff
	v = (v | v<<8) & 0x00ff00ff00ff00ff
	v = (v | v<<4) & 0x0f0f0f0f0f0f0f0f
	v = (v | v<<2) & 0x3333333333333333
	v = (v | v<<1) & 0x5555555555555555
	return v
}

func compact1(v uint64) uint64 {
	v &= 0x5555555555555555
	v = (v ^ v>>1) & 0x3333333333333333
	v = (v ^ v>>2) & 0x0f0f0f0f0f0f0f0f
	v = (v ^ v>>4) & 0x00ff00ff00ff00ff
	v = (v ^ v>>8) & 0x0000ffff0000ffff
	v = (v ^ v>>16) & 0x00000000ffffffff
	return v
}

// spread2 spaces the low 21 bits of v two positions apart.
func spread2(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x001f00000000ffff
	v = (v | v<<16) & 0x001f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}

func compact2(v uint64) uint64 {
	v &= 0x1249249249249249
	v = (v ^ v>>2) & 0x10c30c30c30c30c3
	v = (v ^ v>>4) & 0x100f00f00f00f00f
	v = (v ^ v>>8) & 0x001f0000ff0000ff
	v = (v ^ v>>16) & 0x001f00000000ffff
	v = (v ^ v>>32) & 0x00000000001fffff
	return v
}
