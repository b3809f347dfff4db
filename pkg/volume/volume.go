// Package volume provides the shared in-memory array types used by the
// segmentation packages: boolean masks, integer label images and floating
// point scalar fields over 2D or 3D grids.
//
// All types store their samples in a flat slice in row-major order with an
// explicit shape, the same layout the rest of the pipeline assumes. The
// package also hosts the grid primitives every component needs: neighbor
// offsets for a given connectivity, connected-component labeling and
// sequential relabeling.
package volume

import (
	"fmt"
)

// dims carries the shape and row-major strides shared by all array types.
type dims struct {
	shape   []int
	strides []int
}

func newDims(shape []int) (dims, error) {
	if len(shape) < 2 || len(shape) > 3 {
		return dims{}, fmt.Errorf("%w: shape must be 2D or 3D, got %dD", ErrInvalidArgument, len(shape))
	}

	for _, s := range shape {
		if s <= 0 {
			return dims{}, fmt.Errorf("%w: shape dimensions must be positive, got %v", ErrInvalidArgument, shape)
		}
	}

	d := dims{
		shape:   make([]int, len(shape)),
		strides: make([]int, len(shape)),
	}
	copy(d.shape, shape)

	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		d.strides[i] = stride
		stride *= shape[i]
	}

	return d, nil
}

// NDim returns the number of dimensions (2 or 3).
func (d dims) NDim() int { return len(d.shape) }

// Shape returns a copy of the array shape.
func (d dims) Shape() []int {
	shape := make([]int, len(d.shape))
	copy(shape, d.shape)
	return shape
}

// Len returns the total number of voxels.
func (d dims) Len() int {
	n := 1
	for _, s := range d.shape {
		n *= s
	}
	return n
}

// Offset converts an n-dimensional coordinate to a flat index.
func (d dims) Offset(coord []int) int {
	off := 0
	for i, c := range coord {
		off += c * d.strides[i]
	}
	return off
}

// Coord decodes a flat index into the provided coordinate slice, which must
// have length NDim. The slice is returned for convenience.
func (d dims) Coord(off int, coord []int) []int {
	for i, stride := range d.strides {
		coord[i] = off / stride
		off %= stride
	}
	return coord
}

// EqualShape reports whether the array has exactly the given shape.
func (d dims) EqualShape(shape []int) bool {
	if len(shape) != len(d.shape) {
		return false
	}
	for i, s := range shape {
		if s != d.shape[i] {
			return false
		}
	}
	return true
}

// Mask is a boolean foreground mask.
type Mask struct {
	dims
	Data []bool
}

// NewMask allocates an all-false mask with the given shape.
func NewMask(shape ...int) (*Mask, error) {
	d, err := newDims(shape)
	if err != nil {
		return nil, err
	}
	return &Mask{dims: d, Data: make([]bool, d.Len())}, nil
}

// Clone returns an independent copy of the mask.
func (m *Mask) Clone() *Mask {
	data := make([]bool, len(m.Data))
	copy(data, m.Data)
	return &Mask{dims: m.dims, Data: data}
}

// Count returns the number of true voxels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Labels is an integer label image. Zero marks background; each positive
// value identifies one object. Labels need not be contiguous on input.
type Labels struct {
	dims
	Data []int32
}

// NewLabels allocates an all-background label image with the given shape.
func NewLabels(shape ...int) (*Labels, error) {
	d, err := newDims(shape)
	if err != nil {
		return nil, err
	}
	return &Labels{dims: d, Data: make([]int32, d.Len())}, nil
}

// Clone returns an independent copy of the label image.
func (l *Labels) Clone() *Labels {
	data := make([]int32, len(l.Data))
	copy(data, l.Data)
	return &Labels{dims: l.dims, Data: data}
}

// Foreground returns the mask of voxels carrying any positive label.
func (l *Labels) Foreground() *Mask {
	data := make([]bool, len(l.Data))
	for i, v := range l.Data {
		data[i] = v > 0
	}
	return &Mask{dims: l.dims, Data: data}
}

// Max returns the largest label value present.
func (l *Labels) Max() int32 {
	var max int32
	for _, v := range l.Data {
		if v > max {
			max = v
		}
	}
	return max
}

// Field is a floating point scalar field, typically a distance transform or
// a normalized intensity image.
type Field struct {
	dims
	Data []float64
}

// NewField allocates an all-zero field with the given shape.
func NewField(shape ...int) (*Field, error) {
	d, err := newDims(shape)
	if err != nil {
		return nil, err
	}
	return &Field{dims: d, Data: make([]float64, d.Len())}, nil
}

// Clone returns an independent copy of the field.
func (f *Field) Clone() *Field {
	data := make([]float64, len(f.Data))
	copy(data, f.Data)
	return &Field{dims: f.dims, Data: data}
}

// Neighborhood returns the neighbor offsets for the given dimensionality and
// connectivity. Connectivity c selects every nonzero offset in {-1,0,1}^ndim
// with at most c nonzero components: 1 is face connectivity, ndim is full
// connectivity. The order of the returned offsets is fixed, so traversals
// built on it are deterministic.
func Neighborhood(ndim, connectivity int) ([][]int, error) {
	if connectivity < 1 || connectivity > ndim {
		return nil, fmt.Errorf("%w: connectivity %d outside [1, %d]", ErrConnectivity, connectivity, ndim)
	}

	total := 1
	for i := 0; i < ndim; i++ {
		total *= 3
	}

	var offsets [][]int
	for code := 0; code < total; code++ {
		offset := make([]int, ndim)
		nonzero := 0
		c := code
		for i := ndim - 1; i >= 0; i-- {
			offset[i] = c%3 - 1
			if offset[i] != 0 {
				nonzero++
			}
			c /= 3
		}
		if nonzero == 0 || nonzero > connectivity {
			continue
		}
		offsets = append(offsets, offset)
	}

	return offsets, nil
}
