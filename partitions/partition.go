package partitions

import (
	"fmt"

	"github.com/notargets/PICKernel/grid"
)

// NoNeighbor marks a patch face lying on the physical domain boundary
const NoNeighbor = -1

// Sides of a patch along an axis
const (
	Min = iota
	Max
)

// Layout is the Cartesian decomposition of the global domain into patches.
// Patch ids run with x fastest.
type Layout struct {
	NumberOfPatches [grid.NDim]int
	NumRanks        int
	owner           []int // patch id → rank
}

// NewLayout builds a layout and distributes patches over ranks in
// contiguous blocks
func NewLayout(numberOfPatches [grid.NDim]int, numRanks int) *Layout {
	for a := 0; a < grid.NDim; a++ {
		if numberOfPatches[a] <= 0 {
			panic(fmt.Sprintf("number of patches along %s must be positive, got %d",
				grid.AxisNames[a], numberOfPatches[a]))
		}
	}
	if numRanks <= 0 {
		numRanks = 1
	}
	l := &Layout{
		NumberOfPatches: numberOfPatches,
		NumRanks:        numRanks,
	}
	if numRanks > l.NumPatches() {
		panic(fmt.Sprintf("%d ranks for only %d patches", numRanks, l.NumPatches()))
	}
	l.owner = NewBuckets(l.NumPatches(), numRanks, BlockPartition).Owner
	return l
}

// NumPatches is the total patch count
func (l *Layout) NumPatches() int {
	return l.NumberOfPatches[0] * l.NumberOfPatches[1] * l.NumberOfPatches[2]
}

// Coordinates converts a patch id to its Cartesian coordinates
func (l *Layout) Coordinates(id int) [grid.NDim]int {
	nx, ny := l.NumberOfPatches[0], l.NumberOfPatches[1]
	return [grid.NDim]int{id % nx, (id / nx) % ny, id / (nx * ny)}
}

// PatchID converts Cartesian coordinates to a patch id
func (l *Layout) PatchID(c [grid.NDim]int) int {
	nx, ny := l.NumberOfPatches[0], l.NumberOfPatches[1]
	return c[0] + nx*(c[1]+ny*c[2])
}

// Owner returns the rank holding a patch
func (l *Layout) Owner(id int) int {
	return l.owner[id]
}

// RankPatches lists the patch ids held by a rank in ascending order
func (l *Layout) RankPatches(rank int) []int {
	ids := make([]int, 0)
	for id, r := range l.owner {
		if r == rank {
			ids = append(ids, id)
		}
	}
	return ids
}

// Patch returns the topology view of one patch
func (l *Layout) Patch(id int) Patch {
	if id < 0 || id >= l.NumPatches() {
		panic(fmt.Sprintf("patch id %d out of range [0,%d)", id, l.NumPatches()))
	}
	return Patch{
		ID:          id,
		Coordinates: l.Coordinates(id),
		layout:      l,
	}
}

// Patch is one subdomain and the answers to its neighbourhood queries
type Patch struct {
	ID          int
	Coordinates [grid.NDim]int
	layout      *Layout
}

// NumberOfPatches along an axis
func (p Patch) NumberOfPatches(axis int) int {
	return p.layout.NumberOfPatches[axis]
}

// Layout returns the decomposition the patch belongs to
func (p Patch) Layout() *Layout {
	return p.layout
}

// IsMin reports whether the patch touches the global min face of an axis
func (p Patch) IsMin(axis int) bool {
	return p.Coordinates[axis] == 0
}

// IsMax reports whether the patch touches the global max face of an axis
func (p Patch) IsMax(axis int) bool {
	return p.Coordinates[axis] == p.layout.NumberOfPatches[axis]-1
}

// OnPhysicalBoundary reports whether one side of an axis is a physical face
func (p Patch) OnPhysicalBoundary(axis, side int) bool {
	if side == Min {
		return p.IsMin(axis)
	}
	return p.IsMax(axis)
}

// Neighbor returns the neighbouring patch id, or NoNeighbor at a physical face
func (p Patch) Neighbor(axis, side int) int {
	if p.OnPhysicalBoundary(axis, side) {
		return NoNeighbor
	}
	c := p.Coordinates
	if side == Min {
		c[axis]--
	} else {
		c[axis]++
	}
	return p.layout.PatchID(c)
}

// NeighborRank returns the rank owning the neighbour, or NoNeighbor
func (p Patch) NeighborRank(axis, side int) int {
	id := p.Neighbor(axis, side)
	if id == NoNeighbor {
		return NoNeighbor
	}
	return p.layout.Owner(id)
}
