// Package merge removes over-segmentation artifacts by folding small
// objects into the neighbor they share the most boundary with. An object
// qualifies for merging when its voxel count falls below a threshold derived
// from a user-facing diameter; the dominant neighbor is read off a histogram
// of labels along the object's outer boundary, optionally gated on absolute
// or relative contact area. The pass is single and greedy: objects are
// visited in ascending label order and neighbor histograms always reflect
// the input labeling, so a merge never re-triggers evaluation of the
// enlarged neighbor.
package merge

import (
	"fmt"
	"math"

	"declump/pkg/volume"
)

// ContactAreaMethod selects how the dominant neighbor's contact area is
// judged when gating is enabled.
type ContactAreaMethod int

const (
	// AbsoluteArea requires the contact voxel count to exceed
	// Params.AbsNeighborSize.
	AbsoluteArea ContactAreaMethod = iota
	// RelativeArea requires the contact voxel count, divided by the small
	// object's total surface area, to exceed Params.RelNeighborSize.
	RelativeArea
)

// Params configures a merge pass.
type Params struct {
	// Diameter is the minimum object size expressed as a diameter;
	// objects smaller than the disk area (2D or plane-wise) or ball
	// volume (3D) of that diameter are merge candidates.
	Diameter float64

	// PlaneWise merges each z-plane of a volume independently.
	PlaneWise bool

	// RemoveBelowThreshold deletes candidates whose only neighbor is
	// background instead of leaving them unchanged.
	RemoveBelowThreshold bool

	// UseContactArea enables neighbor qualification gating.
	UseContactArea bool

	// Method selects absolute or relative gating.
	Method ContactAreaMethod

	// AbsNeighborSize is the contact voxel count the dominant neighbor
	// must exceed under AbsoluteArea. Zero disables the gate.
	AbsNeighborSize int

	// RelNeighborSize is the contact fraction in [0,1] the dominant
	// neighbor must exceed under RelativeArea. Zero disables the gate.
	RelNeighborSize float64
}

// Objects merges every under-sized object of the label image into its
// dominant neighbor and returns a sequentially relabeled result.
func Objects(labels *volume.Labels, p Params) (*volume.Labels, error) {
	if p.Diameter < 0 {
		return nil, fmt.Errorf("%w: diameter must be non-negative, got %g",
			volume.ErrInvalidArgument, p.Diameter)
	}
	if p.AbsNeighborSize < 0 {
		return nil, fmt.Errorf("%w: absolute neighbor size must be non-negative, got %d",
			volume.ErrInvalidArgument, p.AbsNeighborSize)
	}
	if p.RelNeighborSize < 0 || p.RelNeighborSize > 1 {
		return nil, fmt.Errorf("%w: relative neighbor size must lie in [0,1], got %g",
			volume.ErrInvalidArgument, p.RelNeighborSize)
	}

	radius := p.Diameter / 2

	if labels.NDim() == 3 && p.PlaneWise {
		return mergePlaneWise(labels, math.Pi*radius*radius, p)
	}

	minSize := math.Pi * radius * radius
	if labels.NDim() == 3 {
		minSize = math.Pi * (4.0 / 3.0) * radius * radius * radius
	}

	merged, err := mergeNeighbors(labels, minSize, p)
	if err != nil {
		return nil, err
	}
	return volume.RelabelSequential(merged), nil
}

func mergePlaneWise(labels *volume.Labels, minSize float64, p Params) (*volume.Labels, error) {
	shape := labels.Shape()
	planeLen := shape[1] * shape[2]

	out := labels.Clone()
	for z := 0; z < shape[0]; z++ {
		plane, err := volume.NewLabels(shape[1], shape[2])
		if err != nil {
			return nil, err
		}
		copy(plane.Data, labels.Data[z*planeLen:(z+1)*planeLen])

		mergedPlane, err := mergeNeighbors(plane, minSize, p)
		if err != nil {
			return nil, err
		}
		copy(out.Data[z*planeLen:(z+1)*planeLen], mergedPlane.Data)
	}

	return volume.RelabelSequential(out), nil
}

// mergeNeighbors performs the greedy pass over one image or plane.
func mergeNeighbors(labels *volume.Labels, minSize float64, p Params) (*volume.Labels, error) {
	sizes := voxelCounts(labels)

	// Surface areas are only needed as relative-gating denominators.
	var surface map[int32]int
	if p.UseContactArea && p.Method == RelativeArea {
		surface = surfaceAreas(labels)
	}

	merged := labels.Clone()

	maxLabel := labels.Max()
	for n := int32(1); n <= maxLabel; n++ {
		size := sizes[n]
		if size == 0 || float64(size) >= minSize {
			continue
		}

		contact := boundaryContact(labels, n)

		var dominant int32
		if len(contact) == 0 {
			// Only background borders this object.
			if !p.RemoveBelowThreshold {
				continue
			}
			dominant = 0
		} else {
			best := -1
			for label, count := range contact {
				if count > best || (count == best && label < dominant) {
					best = count
					dominant = label
				}
			}
		}

		if p.UseContactArea && dominant != 0 {
			switch p.Method {
			case AbsoluteArea:
				if p.AbsNeighborSize != 0 && contact[dominant] <= p.AbsNeighborSize {
					continue
				}
			case RelativeArea:
				if p.RelNeighborSize != 0 &&
					float64(contact[dominant])/float64(surface[n]) <= p.RelNeighborSize {
					continue
				}
			}
		}

		// Relabel the object, carrying along anything already merged
		// into it earlier in the pass.
		for i, v := range merged.Data {
			if v == n {
				merged.Data[i] = dominant
			}
		}
	}

	return merged, nil
}

func voxelCounts(labels *volume.Labels) map[int32]int {
	counts := make(map[int32]int)
	for _, v := range labels.Data {
		if v > 0 {
			counts[v]++
		}
	}
	return counts
}

// boundaryContact tallies the positive labels found on the outer boundary
// of object n: background voxels and foreign-object voxels with a face
// neighbor inside n. Background contact is not counted; an empty map means
// the object touches nothing but background.
func boundaryContact(labels *volume.Labels, n int32) map[int32]int {
	offsets, err := volume.Neighborhood(labels.NDim(), 1)
	if err != nil {
		panic(err)
	}

	shape := labels.Shape()
	coord := make([]int, labels.NDim())
	neighbor := make([]int, labels.NDim())

	contact := make(map[int32]int)
	for idx, v := range labels.Data {
		if v == n {
			continue
		}

		labels.Coord(idx, coord)
		touches := false
		for _, offset := range offsets {
			inBounds := true
			for i, o := range offset {
				neighbor[i] = coord[i] + o
				if neighbor[i] < 0 || neighbor[i] >= shape[i] {
					inBounds = false
					break
				}
			}
			if inBounds && labels.Data[labels.Offset(neighbor)] == n {
				touches = true
				break
			}
		}

		if touches && v > 0 {
			contact[v]++
		}
	}

	return contact
}

// surfaceAreas counts, per object, the voxels lying on its inner boundary:
// object voxels with a face neighbor carrying a different value.
func surfaceAreas(labels *volume.Labels) map[int32]int {
	offsets, err := volume.Neighborhood(labels.NDim(), 1)
	if err != nil {
		panic(err)
	}

	shape := labels.Shape()
	coord := make([]int, labels.NDim())
	neighbor := make([]int, labels.NDim())

	surface := make(map[int32]int)
	for idx, v := range labels.Data {
		if v == 0 {
			continue
		}

		labels.Coord(idx, coord)
		for _, offset := range offsets {
			inBounds := true
			for i, o := range offset {
				neighbor[i] = coord[i] + o
				if neighbor[i] < 0 || neighbor[i] >= shape[i] {
					inBounds = false
					break
				}
			}
			if inBounds && labels.Data[labels.Offset(neighbor)] != v {
				surface[v]++
				break
			}
		}
	}

	return surface
}
