package models

import (
	"image"
)

// Slice represents a single plane of an image stack with its source
// metadata.
type Slice struct {
	// Image is the decoded plane data
	Image image.Image

	// Index is the position of this plane in the stack, after numeric
	// filename ordering
	Index int

	// Filename is the original filename of the plane
	Filename string
}

// Stack describes a directory of planes loaded as a volume. All planes
// share the same width and height.
type Stack struct {
	// Slices holds the planes in stack order
	Slices []Slice

	// Width and Height are the shared plane dimensions in pixels
	Width  int
	Height int
}

// Depth returns the number of planes in the stack.
func (s *Stack) Depth() int {
	return len(s.Slices)
}
