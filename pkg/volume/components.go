package volume

// Components labels the connected components of a mask with the given
// connectivity. Component ids are assigned in raster-scan order starting at
// 1, so the labeling is deterministic. The number of components found is
// returned alongside the label image.
func Components(mask *Mask, connectivity int) (*Labels, int, error) {
	offsets, err := Neighborhood(mask.NDim(), connectivity)
	if err != nil {
		return nil, 0, err
	}

	labels := &Labels{dims: mask.dims, Data: make([]int32, len(mask.Data))}

	coord := make([]int, mask.NDim())
	neighbor := make([]int, mask.NDim())
	queue := make([]int, 0, 64)

	next := int32(0)
	for start, on := range mask.Data {
		if !on || labels.Data[start] != 0 {
			continue
		}

		next++
		labels.Data[start] = next
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			mask.Coord(idx, coord)
			for _, offset := range offsets {
				inBounds := true
				for i, o := range offset {
					neighbor[i] = coord[i] + o
					if neighbor[i] < 0 || neighbor[i] >= mask.shape[i] {
						inBounds = false
						break
					}
				}
				if !inBounds {
					continue
				}

				nIdx := mask.Offset(neighbor)
				if mask.Data[nIdx] && labels.Data[nIdx] == 0 {
					labels.Data[nIdx] = next
					queue = append(queue, nIdx)
				}
			}
		}
	}

	return labels, int(next), nil
}
