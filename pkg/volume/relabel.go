package volume

import "sort"

// RelabelSequential renumbers the positive labels of an image to the
// contiguous range 1..K, preserving the relative order of the original label
// values. Background stays 0. Applying it to an already-contiguous image is
// a no-op, so the operation is idempotent.
func RelabelSequential(labels *Labels) *Labels {
	present := make(map[int32]struct{})
	for _, v := range labels.Data {
		if v > 0 {
			present[v] = struct{}{}
		}
	}

	order := make([]int32, 0, len(present))
	for v := range present {
		order = append(order, v)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	remap := make(map[int32]int32, len(order))
	for i, v := range order {
		remap[v] = int32(i + 1)
	}

	out := &Labels{dims: labels.dims, Data: make([]int32, len(labels.Data))}
	for i, v := range labels.Data {
		if v > 0 {
			out.Data[i] = remap[v]
		}
	}

	return out
}
