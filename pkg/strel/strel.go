// Package strel builds the structuring elements used for seed dilation.
//
// Elements are small boolean kernels with odd side lengths and a central
// origin. The 2D constructors (Disk, Square) and 3D constructors (Ball,
// Cube) are distinct, and every element knows its dimensionality, so a
// kernel can be checked against an image before any computation starts.
package strel

import (
	"fmt"

	"declump/pkg/volume"
)

// Element is an immutable boolean kernel with a central origin.
type Element struct {
	shape   []int
	data    []bool
	offsets [][]int
}

// New builds an element from row-major data with the given shape. Every side
// length must be odd so the kernel has a well-defined center.
func New(data []bool, shape ...int) (Element, error) {
	if len(shape) < 2 || len(shape) > 3 {
		return Element{}, fmt.Errorf("%w: structuring element must be 2D or 3D, got %dD",
			volume.ErrInvalidArgument, len(shape))
	}

	n := 1
	for _, s := range shape {
		if s <= 0 || s%2 == 0 {
			return Element{}, fmt.Errorf("%w: structuring element sides must be odd and positive, got %v",
				volume.ErrInvalidArgument, shape)
		}
		n *= s
	}
	if n != len(data) {
		return Element{}, fmt.Errorf("%w: structuring element data length %d does not match shape %v",
			volume.ErrInvalidArgument, len(data), shape)
	}

	e := Element{
		shape: append([]int(nil), shape...),
		data:  append([]bool(nil), data...),
	}
	e.offsets = e.computeOffsets()
	return e, nil
}

// Disk returns the 2D disk of the given radius: every cell within Euclidean
// distance radius of the center.
func Disk(radius int) (Element, error) {
	return roundElement(radius, 2)
}

// Ball returns the 3D analog of Disk.
func Ball(radius int) (Element, error) {
	return roundElement(radius, 3)
}

// Square returns a filled 2D square with the given odd side length.
func Square(width int) (Element, error) {
	return filledElement(width, 2)
}

// Cube returns a filled 3D cube with the given odd side length.
func Cube(width int) (Element, error) {
	return filledElement(width, 3)
}

func roundElement(radius, ndim int) (Element, error) {
	if radius < 0 {
		return Element{}, fmt.Errorf("%w: structuring element radius must be non-negative, got %d",
			volume.ErrInvalidArgument, radius)
	}

	side := 2*radius + 1
	shape := make([]int, ndim)
	n := 1
	for i := range shape {
		shape[i] = side
		n *= side
	}

	data := make([]bool, n)
	coord := make([]int, ndim)
	for idx := range data {
		decode(idx, shape, coord)
		sq := 0
		for _, c := range coord {
			d := c - radius
			sq += d * d
		}
		data[idx] = sq <= radius*radius
	}

	return New(data, shape...)
}

func filledElement(width, ndim int) (Element, error) {
	if width <= 0 || width%2 == 0 {
		return Element{}, fmt.Errorf("%w: structuring element width must be odd and positive, got %d",
			volume.ErrInvalidArgument, width)
	}

	shape := make([]int, ndim)
	n := 1
	for i := range shape {
		shape[i] = width
		n *= width
	}

	data := make([]bool, n)
	for i := range data {
		data[i] = true
	}

	return New(data, shape...)
}

// NDim returns the kernel dimensionality.
func (e Element) NDim() int { return len(e.shape) }

// Shape returns a copy of the kernel shape.
func (e Element) Shape() []int {
	return append([]int(nil), e.shape...)
}

// Offsets returns the offsets of the set cells relative to the center, in a
// fixed raster order. Callers must not modify the returned slices.
func (e Element) Offsets() [][]int { return e.offsets }

func (e Element) computeOffsets() [][]int {
	ndim := len(e.shape)
	coord := make([]int, ndim)

	var offsets [][]int
	for idx, on := range e.data {
		if !on {
			continue
		}
		decode(idx, e.shape, coord)
		offset := make([]int, ndim)
		for i, c := range coord {
			offset[i] = c - e.shape[i]/2
		}
		offsets = append(offsets, offset)
	}
	return offsets
}

func decode(idx int, shape, coord []int) {
	for i := len(shape) - 1; i >= 0; i-- {
		coord[i] = idx % shape[i]
		idx /= shape[i]
	}
}
