// Package distfield computes the Euclidean distance transform of a
// foreground mask, optionally padded against border artifacts and smoothed
// with a Gaussian kernel. The resulting field is what the seed finder scans
// for local maxima and what shape-based declumping inverts into a watershed
// basin.
package distfield

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"declump/pkg/volume"
)

// A large finite stand-in for infinity keeps the parabola intersection
// arithmetic free of Inf-Inf NaNs.
const unreached = 1e30

// Compute returns the exact Euclidean distance of every foreground voxel to
// the nearest background voxel; background voxels get 0.
//
// When pad is set, the mask is extended by one background voxel on every
// axis before the transform and the result is cropped back, so foreground
// touching the image border still measures its distance to a boundary
// instead of extending to infinity along it. A sigma greater than zero
// smooths the field with an isotropic Gaussian truncated at 4 sigma.
func Compute(mask *volume.Mask, sigma float64, pad bool) (*volume.Field, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("%w: sigma must be non-negative, got %g", volume.ErrInvalidArgument, sigma)
	}

	work := mask
	if pad {
		work = padMask(mask)
	}

	field := transform(work)

	if pad {
		field = cropField(field, mask.Shape())
	}

	if sigma > 0 {
		Smooth(field, sigma)
	}

	return field, nil
}

// transform runs the Felzenszwalb-Huttenlocher separable squared distance
// transform, one parabolic-envelope pass per axis, then takes square roots.
func transform(mask *volume.Mask) *volume.Field {
	shape := mask.Shape()
	field, err := volume.NewField(shape...)
	if err != nil {
		// The mask itself was built through the same validation.
		panic(err)
	}

	for i, on := range mask.Data {
		if on {
			field.Data[i] = unreached
		}
	}

	maxSide := 0
	for _, s := range shape {
		if s > maxSide {
			maxSide = s
		}
	}

	line := make([]float64, maxSide)
	out := make([]float64, maxSide)
	verts := make([]int, maxSide)
	bounds := make([]float64, maxSide+1)

	for axis := range shape {
		forEachLine(shape, axis, func(base, stride, n int) {
			for i := 0; i < n; i++ {
				line[i] = field.Data[base+i*stride]
			}
			envelope(line[:n], out[:n], verts, bounds)
			for i := 0; i < n; i++ {
				field.Data[base+i*stride] = out[i]
			}
		})
	}

	for i, v := range field.Data {
		field.Data[i] = math.Sqrt(v)
	}

	return field
}

// envelope computes the 1D squared distance transform of the sampled
// function f into d via the lower envelope of parabolas.
func envelope(f, d []float64, verts []int, bounds []float64) {
	n := len(f)

	k := 0
	verts[0] = 0
	bounds[0] = math.Inf(-1)
	bounds[1] = math.Inf(1)

	for q := 1; q < n; q++ {
		var s float64
		for {
			p := verts[k]
			s = ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
			if s <= bounds[k] {
				k--
				continue
			}
			break
		}
		k++
		verts[k] = q
		bounds[k] = s
		bounds[k+1] = math.Inf(1)
	}

	k = 0
	for q := 0; q < n; q++ {
		for bounds[k+1] < float64(q) {
			k++
		}
		p := verts[k]
		d[q] = float64((q-p)*(q-p)) + f[p]
	}
}

// Smooth convolves the field in place with a separable Gaussian of the given
// sigma, truncated at 4 sigma, replicating edge values at the borders.
func Smooth(field *volume.Field, sigma float64) {
	if sigma <= 0 {
		return
	}

	radius := int(4*sigma + 0.5)
	if radius < 1 {
		radius = 1
	}

	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	shape := field.Shape()
	maxSide := 0
	for _, s := range shape {
		if s > maxSide {
			maxSide = s
		}
	}

	line := make([]float64, maxSide)
	out := make([]float64, maxSide)

	for axis := range shape {
		forEachLine(shape, axis, func(base, stride, n int) {
			for i := 0; i < n; i++ {
				line[i] = field.Data[base+i*stride]
			}
			for i := 0; i < n; i++ {
				acc := 0.0
				for j, w := range kernel {
					src := i + j - radius
					if src < 0 {
						src = 0
					} else if src >= n {
						src = n - 1
					}
					acc += w * line[src]
				}
				out[i] = acc
			}
			for i := 0; i < n; i++ {
				field.Data[base+i*stride] = out[i]
			}
		})
	}
}

// forEachLine visits every 1D line of the array along the given axis,
// reporting the flat base index, the stride between consecutive samples and
// the line length.
func forEachLine(shape []int, axis int, fn func(base, stride, n int)) {
	total := 1
	for _, s := range shape {
		total *= s
	}

	stride := 1
	for i := len(shape) - 1; i > axis; i-- {
		stride *= shape[i]
	}

	n := shape[axis]
	block := n * stride

	for pre := 0; pre < total/block; pre++ {
		for post := 0; post < stride; post++ {
			fn(pre*block+post, stride, n)
		}
	}
}

func padMask(mask *volume.Mask) *volume.Mask {
	shape := mask.Shape()
	padded := make([]int, len(shape))
	for i, s := range shape {
		padded[i] = s + 2
	}

	out, err := volume.NewMask(padded...)
	if err != nil {
		panic(err)
	}

	coord := make([]int, len(shape))
	inner := make([]int, len(shape))
	for idx, on := range mask.Data {
		if !on {
			continue
		}
		mask.Coord(idx, coord)
		for i, c := range coord {
			inner[i] = c + 1
		}
		out.Data[out.Offset(inner)] = true
	}

	return out
}

func cropField(field *volume.Field, shape []int) *volume.Field {
	out, err := volume.NewField(shape...)
	if err != nil {
		panic(err)
	}

	coord := make([]int, len(shape))
	outer := make([]int, len(shape))
	for idx := range out.Data {
		out.Coord(idx, coord)
		for i, c := range coord {
			outer[i] = c + 1
		}
		out.Data[idx] = field.Data[field.Offset(outer)]
	}

	return out
}
