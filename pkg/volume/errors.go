package volume

import "errors"

var (
	// ErrInvalidArgument indicates a parameter outside its documented range.
	ErrInvalidArgument = errors.New("volume: invalid argument")
	// ErrDimensionMismatch indicates arrays or kernels of differing dimensionality.
	ErrDimensionMismatch = errors.New("volume: dimensionality mismatch")
	// ErrShapeMismatch indicates same-dimensionality arrays with differing shapes.
	ErrShapeMismatch = errors.New("volume: shape mismatch")
	// ErrConnectivity indicates a connectivity outside [1, ndim].
	ErrConnectivity = errors.New("volume: connectivity out of range")
)
