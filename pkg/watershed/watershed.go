// Package watershed turns seed masks into object labels via
// marker-controlled watershed. Seeds are dilated by a structuring element,
// connected seed blobs become negatively-labeled markers, and a priority
// flood over a basin field, restricted to the original foreground, lets the
// markers compete for voxels. Negative marker labels combined with
// first-in-first-out tie handling make that competition fair when several
// markers reach a voxel at the same elevation; the final labels are shifted
// back into the positive range.
package watershed

import (
	"container/heap"
	"fmt"

	"declump/pkg/strel"
	"declump/pkg/volume"
)

// Dilate grows a mask by a structuring element. The element dimensionality
// must match the mask.
func Dilate(mask *volume.Mask, se strel.Element) (*volume.Mask, error) {
	if se.NDim() != mask.NDim() {
		return nil, fmt.Errorf("%w: structuring element is %dD, image is %dD",
			volume.ErrDimensionMismatch, se.NDim(), mask.NDim())
	}

	shape := mask.Shape()
	out, err := volume.NewMask(shape...)
	if err != nil {
		return nil, err
	}

	coord := make([]int, mask.NDim())
	target := make([]int, mask.NDim())
	offsets := se.Offsets()

	for idx, on := range mask.Data {
		if !on {
			continue
		}
		mask.Coord(idx, coord)
		for _, offset := range offsets {
			inBounds := true
			for i, o := range offset {
				target[i] = coord[i] + o
				if target[i] < 0 || target[i] >= shape[i] {
					inBounds = false
					break
				}
			}
			if inBounds {
				out.Data[out.Offset(target)] = true
			}
		}
	}

	return out, nil
}

// Declump splits the objects of a label image along the given basin field.
// The seed mask is dilated by se, connected seed blobs 1..K become markers
// -1..-K, and the flood runs over basin masked to labels != 0. The result
// carries one positive, contiguous label per claimed basin with background
// preserved as 0. Zero seeds yield an all-background image.
func Declump(labels *volume.Labels, seedMask *volume.Mask, se strel.Element, basin *volume.Field, connectivity int) (*volume.Labels, error) {
	if se.NDim() != labels.NDim() {
		return nil, fmt.Errorf("%w: structuring element is %dD, image is %dD",
			volume.ErrDimensionMismatch, se.NDim(), labels.NDim())
	}
	if !seedMask.EqualShape(labels.Shape()) {
		return nil, fmt.Errorf("%w: seeds %v vs labels %v",
			volume.ErrShapeMismatch, seedMask.Shape(), labels.Shape())
	}
	if !basin.EqualShape(labels.Shape()) {
		return nil, fmt.Errorf("%w: basin %v vs labels %v",
			volume.ErrShapeMismatch, basin.Shape(), labels.Shape())
	}

	dilated, err := Dilate(seedMask, se)
	if err != nil {
		return nil, err
	}

	// Face connectivity for marker blobs, matching the labeling the
	// source pipeline applies to dilated seeds.
	blobs, _, err := volume.Components(dilated, 1)
	if err != nil {
		return nil, err
	}

	markers := make([]int32, len(blobs.Data))
	for i, b := range blobs.Data {
		if b > 0 {
			markers[i] = -b
		}
	}

	flooded, err := flood(basin, markers, labels.Foreground(), connectivity)
	if err != nil {
		return nil, err
	}

	// Shift every label into the positive range, then restore background
	// at the positions that were unclaimed, since the shift moves 0 up
	// as well.
	var min int32
	for _, v := range flooded {
		if v < min {
			min = v
		}
	}
	shift := -min + 1

	out, err := volume.NewLabels(labels.Shape()...)
	if err != nil {
		return nil, err
	}
	for i, v := range flooded {
		if v != 0 {
			out.Data[i] = v + shift
		}
	}

	return volume.RelabelSequential(out), nil
}

// flood runs the priority flood itself: marker voxels are pushed at their
// basin elevation and expansion proceeds lowest-elevation first, with
// insertion order breaking ties so competing markers advance in FIFO order.
func flood(basin *volume.Field, markers []int32, mask *volume.Mask, connectivity int) ([]int32, error) {
	offsets, err := volume.Neighborhood(basin.NDim(), connectivity)
	if err != nil {
		return nil, err
	}

	// Marker voxels outside the mask never participate.
	out := make([]int32, len(markers))
	for i, v := range markers {
		if v != 0 && mask.Data[i] {
			out[i] = v
		}
	}

	q := &floodQueue{}
	heap.Init(q)

	age := 0
	for idx, label := range markers {
		if label != 0 && mask.Data[idx] {
			heap.Push(q, floodEntry{value: basin.Data[idx], age: age, idx: idx})
			age++
		}
	}

	shape := basin.Shape()
	coord := make([]int, basin.NDim())
	neighbor := make([]int, basin.NDim())

	for q.Len() > 0 {
		cur := heap.Pop(q).(floodEntry)
		label := out[cur.idx]

		basin.Coord(cur.idx, coord)
		for _, offset := range offsets {
			inBounds := true
			for i, o := range offset {
				neighbor[i] = coord[i] + o
				if neighbor[i] < 0 || neighbor[i] >= shape[i] {
					inBounds = false
					break
				}
			}
			if !inBounds {
				continue
			}

			nIdx := basin.Offset(neighbor)
			if out[nIdx] != 0 || !mask.Data[nIdx] {
				continue
			}

			out[nIdx] = label
			heap.Push(q, floodEntry{value: basin.Data[nIdx], age: age, idx: nIdx})
			age++
		}
	}

	return out, nil
}

type floodEntry struct {
	value float64
	age   int
	idx   int
}

type floodQueue []floodEntry

func (q floodQueue) Len() int { return len(q) }

func (q floodQueue) Less(i, j int) bool {
	if q[i].value != q[j].value {
		return q[i].value < q[j].value
	}
	return q[i].age < q[j].age
}

func (q floodQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *floodQueue) Push(x any) { *q = append(*q, x.(floodEntry)) }

func (q *floodQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}
