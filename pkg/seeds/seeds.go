// Package seeds finds watershed seed points: the constrained local maxima
// of a scalar field, typically a smoothed distance transform. Candidates
// must dominate a hypercube neighborhood, clear an intensity threshold and
// keep away from the image border; a global cap keeps only the strongest
// candidates and a per-object cap thins seeds inside individual objects.
package seeds

import (
	"fmt"
	"math/rand"
	"sort"

	"declump/pkg/volume"
)

// NoLimit disables the global seed cap, and as MinDistance selects the
// default spacing of one voxel.
const NoLimit = -1

// ThresholdMode selects how Params.Threshold is interpreted.
type ThresholdMode int

const (
	// Relative interprets the threshold as a fraction of the field's
	// value range: min + t*(max-min).
	Relative ThresholdMode = iota
	// Absolute uses the threshold value directly.
	Absolute
)

// Params configures a seed search.
type Params struct {
	// MinDistance is the spacing constraint: a candidate must carry the
	// strictly largest value within the (2*MinDistance+1) hypercube
	// around it. NoLimit selects the default of 1.
	MinDistance int

	// ThresholdMode selects relative or absolute thresholding.
	ThresholdMode ThresholdMode

	// Threshold is the minimum value a candidate must exceed, in the
	// units chosen by ThresholdMode.
	Threshold float64

	// ExcludeBorder discards candidates within this many voxels of any
	// image boundary.
	ExcludeBorder int

	// MaxSeeds caps the total number of seeds; the strongest candidates
	// win, ties broken by ascending flat index. NoLimit disables the cap.
	MaxSeeds int
}

// Find returns a mask marking the accepted seed positions in the field.
// An all-zero field yields an all-false mask.
func Find(field *volume.Field, p Params) (*volume.Mask, error) {
	minDist := p.MinDistance
	if minDist == NoLimit {
		minDist = 1
	}
	if minDist < 0 {
		return nil, fmt.Errorf("%w: minimum distance must be non-negative, got %d",
			volume.ErrInvalidArgument, p.MinDistance)
	}
	if p.ExcludeBorder < 0 {
		return nil, fmt.Errorf("%w: border exclusion must be non-negative, got %d",
			volume.ErrInvalidArgument, p.ExcludeBorder)
	}
	if p.MaxSeeds < 0 && p.MaxSeeds != NoLimit {
		return nil, fmt.Errorf("%w: maximum seed count must be non-negative or NoLimit, got %d",
			volume.ErrInvalidArgument, p.MaxSeeds)
	}
	if p.ThresholdMode == Relative && (p.Threshold < 0 || p.Threshold > 1) {
		return nil, fmt.Errorf("%w: relative threshold must lie in [0,1], got %g",
			volume.ErrInvalidArgument, p.Threshold)
	}

	threshold := p.Threshold
	if p.ThresholdMode == Relative {
		lo, hi := field.Data[0], field.Data[0]
		for _, v := range field.Data {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		threshold = lo + p.Threshold*(hi-lo)
	}

	maxima := maxFilter(field, minDist)

	shape := field.Shape()
	coord := make([]int, field.NDim())

	var candidates []int
	for idx, v := range field.Data {
		if v <= threshold || v < maxima[idx] {
			continue
		}
		if p.ExcludeBorder > 0 {
			field.Coord(idx, coord)
			tooClose := false
			for i, c := range coord {
				if c < p.ExcludeBorder || c >= shape[i]-p.ExcludeBorder {
					tooClose = true
					break
				}
			}
			if tooClose {
				continue
			}
		}
		candidates = append(candidates, idx)
	}

	// Rank by descending value; the sort is stable over the ascending
	// index order candidates already have, so equal-valued peaks resolve
	// reproducibly.
	if p.MaxSeeds != NoLimit && len(candidates) > p.MaxSeeds {
		sort.SliceStable(candidates, func(i, j int) bool {
			return field.Data[candidates[i]] > field.Data[candidates[j]]
		})
		candidates = candidates[:p.MaxSeeds]
	}

	mask, err := volume.NewMask(shape...)
	if err != nil {
		return nil, err
	}
	for _, idx := range candidates {
		mask.Data[idx] = true
	}

	return mask, nil
}

// maxFilter computes, for every voxel, the maximum field value within the
// (2*radius+1) hypercube around it, via one sliding-window maximum pass per
// axis.
func maxFilter(field *volume.Field, radius int) []float64 {
	result := make([]float64, len(field.Data))
	copy(result, field.Data)
	if radius == 0 {
		return result
	}

	shape := field.Shape()
	maxSide := 0
	for _, s := range shape {
		if s > maxSide {
			maxSide = s
		}
	}

	line := make([]float64, maxSide)
	out := make([]float64, maxSide)
	deque := make([]int, maxSide)

	for axis := range shape {
		forEachLine(shape, axis, func(base, stride, n int) {
			for i := 0; i < n; i++ {
				line[i] = result[base+i*stride]
			}
			slidingMax(line[:n], out[:n], radius, deque)
			for i := 0; i < n; i++ {
				result[base+i*stride] = out[i]
			}
		})
	}

	return result
}

// slidingMax writes out[i] = max(line[i-radius : i+radius+1]) using a
// monotonic index deque.
func slidingMax(line, out []float64, radius int, deque []int) {
	n := len(line)
	head, tail := 0, 0 // deque occupies deque[head:tail]

	for i := 0; i < n+radius; i++ {
		if i < n {
			for tail > head && line[deque[tail-1]] <= line[i] {
				tail--
			}
			deque[tail] = i
			tail++
		}

		lead := i - radius // window center whose window ends at i
		if lead < 0 {
			continue
		}
		for deque[head] < lead-radius {
			head++
		}
		out[lead] = line[deque[head]]
	}
}

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

// EnforceMaximum caps the number of seed blobs per labeled object. Seed
// voxels are grouped into connected blobs (full connectivity); for any
// object containing more than maxPerObject blobs, excess blobs are removed
// by uniform random selection from rng. Inject a seeded source for
// reproducible output; maxPerObject <= 0 means no cap and returns the mask
// unchanged.
func EnforceMaximum(labels *volume.Labels, seedMask *volume.Mask, maxPerObject int, rng *rand.Rand) (*volume.Mask, error) {
	if !labels.EqualShape(seedMask.Shape()) {
		return nil, fmt.Errorf("%w: labels %v vs seeds %v",
			volume.ErrShapeMismatch, labels.Shape(), seedMask.Shape())
	}
	if maxPerObject <= 0 {
		return seedMask.Clone(), nil
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", volume.ErrInvalidArgument)
	}

	blobs, count, err := volume.Components(seedMask, seedMask.NDim())
	if err != nil {
		return nil, err
	}

	// Assign each blob to the object of its first labeled voxel in
	// raster order.
	blobObject := make([]int32, count+1)
	for idx, blob := range blobs.Data {
		if blob != 0 && blobObject[blob] == 0 {
			blobObject[blob] = labels.Data[idx]
		}
	}

	perObject := make(map[int32][]int32)
	for blob := int32(1); blob <= int32(count); blob++ {
		obj := blobObject[blob]
		if obj > 0 {
			perObject[obj] = append(perObject[obj], blob)
		}
	}

	objects := make([]int32, 0, len(perObject))
	for obj := range perObject {
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i] < objects[j] })

	drop := make(map[int32]bool)
	for _, obj := range objects {
		blobIDs := perObject[obj]
		excess := len(blobIDs) - maxPerObject
		if excess <= 0 {
			continue
		}
		rng.Shuffle(len(blobIDs), func(i, j int) {
			blobIDs[i], blobIDs[j] = blobIDs[j], blobIDs[i]
		})
		for _, blob := range blobIDs[:excess] {
			drop[blob] = true
		}
	}

	out := seedMask.Clone()
	for idx, blob := range blobs.Data {
		if blob != 0 && drop[blob] {
			out.Data[idx] = false
		}
	}

	return out, nil
}
