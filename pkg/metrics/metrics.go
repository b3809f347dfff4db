// Package metrics summarizes a segmentation result: how many objects the
// labeling holds, how their voxel counts distribute and how far apart their
// centroids sit. The spacing figure uses a KD-tree over the centroids so it
// stays cheap on dense segmentations.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"declump/pkg/volume"
)

// Summary holds the per-labeling statistics.
type Summary struct {
	// ObjectCount is the number of distinct positive labels.
	ObjectCount int

	// TotalVoxels is the number of foreground voxels.
	TotalVoxels int

	// Size statistics over the per-object voxel counts. Zero when the
	// labeling is empty.
	MeanSize   float64
	MedianSize float64
	StdDevSize float64
	MinSize    int
	MaxSize    int

	// MeanCentroidSpacing is the mean distance from each object centroid
	// to its nearest neighboring centroid, in voxels. Zero when fewer than
	// two objects are present.
	MeanCentroidSpacing float64
}

// Summarize computes the summary statistics of a label image.
func Summarize(labels *volume.Labels) Summary {
	counts := make(map[int32]int)
	sums := make(map[int32][]float64)

	ndim := labels.NDim()
	coord := make([]int, ndim)
	for idx, v := range labels.Data {
		if v == 0 {
			continue
		}
		counts[v]++
		acc, ok := sums[v]
		if !ok {
			acc = make([]float64, ndim)
			sums[v] = acc
		}
		labels.Coord(idx, coord)
		for i, c := range coord {
			acc[i] += float64(c)
		}
	}

	var s Summary
	s.ObjectCount = len(counts)
	if s.ObjectCount == 0 {
		return s
	}

	sizes := make([]float64, 0, len(counts))
	s.MinSize = -1
	for _, n := range counts {
		sizes = append(sizes, float64(n))
		s.TotalVoxels += n
		if s.MinSize < 0 || n < s.MinSize {
			s.MinSize = n
		}
		if n > s.MaxSize {
			s.MaxSize = n
		}
	}

	sort.Float64s(sizes)
	s.MeanSize = stat.Mean(sizes, nil)
	s.MedianSize = stat.Quantile(0.5, stat.Empirical, sizes, nil)
	if len(sizes) > 1 {
		s.StdDevSize = stat.StdDev(sizes, nil)
	}

	if s.ObjectCount >= 2 {
		points := make(centroids, 0, len(sums))
		for label, acc := range sums {
			n := float64(counts[label])
			c := centroid{X: acc[0] / n, Y: acc[1] / n}
			if ndim == 3 {
				c.Z = acc[2] / n
			}
			points = append(points, c)
		}
		s.MeanCentroidSpacing = meanNearestSpacing(points)
	}

	return s
}

// meanNearestSpacing averages, over all centroids, the distance to the
// closest other centroid.
func meanNearestSpacing(points centroids) float64 {
	tree := kdtree.New(points, true)

	total := 0.0
	for _, p := range points {
		// Two nearest: the query point itself plus its true neighbor.
		keeper := kdtree.NewNKeeper(2)
		tree.NearestSet(keeper, p)

		nearest := -1.0
		for _, item := range keeper.Heap {
			if item.Comparable == nil {
				continue
			}
			if item.Dist > 0 && (nearest < 0 || item.Dist < nearest) {
				nearest = item.Dist
			}
		}
		if nearest > 0 {
			total += math.Sqrt(nearest)
		}
	}

	return total / float64(len(points))
}

// centroid is an object center of mass; Z stays 0 for 2D labelings.
type centroid struct {
	X, Y, Z float64
}

// Compare implements the kdtree.Comparable interface.
func (p centroid) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(centroid)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree.
func (p centroid) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two centroids.
func (p centroid) Distance(c kdtree.Comparable) float64 {
	q := c.(centroid)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// centroids satisfies kdtree.Interface.
type centroids []centroid

func (p centroids) Index(i int) kdtree.Comparable         { return p[i] }
func (p centroids) Len() int                              { return len(p) }
func (p centroids) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p centroids) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(centroidPlane{centroids: p, Dim: d}, kdtree.MedianOfRandoms(centroidPlane{centroids: p, Dim: d}, 100))
}

// centroidPlane implements sort.Interface and kdtree.SortSlicer for centroids.
type centroidPlane struct {
	centroids
	kdtree.Dim
}

func (p centroidPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.centroids[i].X < p.centroids[j].X
	case 1:
		return p.centroids[i].Y < p.centroids[j].Y
	case 2:
		return p.centroids[i].Z < p.centroids[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p centroidPlane) Slice(start, end int) kdtree.SortSlicer {
	return centroidPlane{centroids: p.centroids[start:end], Dim: p.Dim}
}

func (p centroidPlane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}
