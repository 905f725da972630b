package utils

import (
	"fmt"
)

// GhostConnector holds the pick and place indices linking two patches that
// are adjacent along Axis. "Left" is the patch on the min side. All indices
// are flat offsets into fields of extent Dims on both patches.
type GhostConnector struct {
	Axis   int
	Dims   [3]int
	NSpace int // Cells per patch along Axis, the index shift between patches

	// Ownership copy: ghost nodes of one side overwritten from the owner
	PickFromLeft  []int
	PlaceOnRight  []int
	PickFromRight []int
	PlaceOnLeft   []int

	// Overlap reduction: nodes present on both sides, pairwise aligned
	OverlapLeft  []int
	OverlapRight []int
}

// NewGhostConnector builds the index tables. leftLastOwned is the last index
// owned by the left patch along Axis, rightFirstOwned the first index owned
// by the right patch.
func NewGhostConnector(axis int, dims [3]int, nSpace, leftLastOwned, rightFirstOwned int) (*GhostConnector, error) {
	// Validate inputs
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid axis %d", axis)
	}
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return nil, fmt.Errorf("invalid dimensions %v", dims)
	}
	n := dims[axis]
	if nSpace <= 0 || nSpace >= n {
		return nil, fmt.Errorf("cell count %d inconsistent with extent %d", nSpace, n)
	}
	if rightFirstOwned < 0 || rightFirstOwned+nSpace > n {
		return nil, fmt.Errorf("right first owned index %d out of range", rightFirstOwned)
	}
	if leftLastOwned >= n || leftLastOwned+1-nSpace < 0 {
		return nil, fmt.Errorf("left last owned index %d out of range", leftLastOwned)
	}

	gc := &GhostConnector{
		Axis:   axis,
		Dims:   dims,
		NSpace: nSpace,
	}

	// Right min-side ghosts come from the left patch shifted by one patch width
	if rightFirstOwned > 0 {
		gc.PlaceOnRight = SlabIndices(dims, axis, 0, rightFirstOwned-1)
		gc.PickFromLeft = SlabIndices(dims, axis, nSpace, rightFirstOwned-1+nSpace)
	}
	// Left max-side ghosts come from the right patch
	if leftLastOwned < n-1 {
		gc.PlaceOnLeft = SlabIndices(dims, axis, leftLastOwned+1, n-1)
		gc.PickFromRight = SlabIndices(dims, axis, leftLastOwned+1-nSpace, n-1-nSpace)
	}
	// Every node both patches store
	gc.OverlapLeft = SlabIndices(dims, axis, nSpace, n-1)
	gc.OverlapRight = SlabIndices(dims, axis, 0, n-1-nSpace)

	if err := gc.Verify(); err != nil {
		return nil, err
	}
	return gc, nil
}

// SlabIndices lists the flat offsets of every node whose index along axis
// lies in [lo, hi], in storage order
func SlabIndices(dims [3]int, axis, lo, hi int) []int {
	if hi < lo {
		return nil
	}
	var box [3][2]int
	for a := 0; a < 3; a++ {
		box[a] = [2]int{0, dims[a] - 1}
	}
	box[axis] = [2]int{lo, hi}

	indices := make([]int, 0, (hi-lo+1)*dims[0]*dims[1]*dims[2]/dims[axis])
	for i := box[0][0]; i <= box[0][1]; i++ {
		for j := box[1][0]; j <= box[1][1]; j++ {
			for k := box[2][0]; k <= box[2][1]; k++ {
				indices = append(indices, (i*dims[1]+j)*dims[2]+k)
			}
		}
	}
	return indices
}

// Verify checks index validity and pick/place correspondence
func (gc *GhostConnector) Verify() error {
	size := gc.Dims[0] * gc.Dims[1] * gc.Dims[2]
	pairs := []struct {
		name        string
		pick, place []int
	}{
		{"left→right", gc.PickFromLeft, gc.PlaceOnRight},
		{"right→left", gc.PickFromRight, gc.PlaceOnLeft},
		{"overlap", gc.OverlapLeft, gc.OverlapRight},
	}
	for _, p := range pairs {
		if len(p.pick) != len(p.place) {
			return fmt.Errorf("%s length mismatch: pick=%d, place=%d", p.name, len(p.pick), len(p.place))
		}
		for n := range p.pick {
			if p.pick[n] < 0 || p.pick[n] >= size || p.place[n] < 0 || p.place[n] >= size {
				return fmt.Errorf("%s index pair (%d,%d) outside [0,%d)", p.name, p.pick[n], p.place[n], size)
			}
		}
	}
	return nil
}
