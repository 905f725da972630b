package partitions

import (
	"fmt"

	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
)

// Boundary describes, per axis and per centering (index 0 primal, 1 dual),
// the first locally owned node and the number of owned nodes. Every node of
// the global mesh is owned by exactly one patch.
type Boundary struct {
	IStart  [grid.NDim][2]int
	BufSize [grid.NDim][2]int
}

// NewBoundary computes the ownership descriptor of a patch
func NewBoundary(nSpace, oversize [grid.NDim]int, p Patch) Boundary {
	var b Boundary
	for a := 0; a < grid.NDim; a++ {
		for isDual := 0; isDual < 2; isDual++ {
			b.IStart[a][isDual] = oversize[a]
			if p.Coordinates[a] != 0 {
				b.IStart[a][isDual]++
			}

			b.BufSize[a][isDual] = nSpace[a] + 1 + isDual
			if p.NumberOfPatches(a) != 1 {
				if isDual == 0 {
					// Shared primal node belongs to the patch on the min side
					if p.Coordinates[a] != 0 {
						b.BufSize[a][isDual]--
					}
				} else {
					b.BufSize[a][isDual]--
					if !p.IsMin(a) && !p.IsMax(a) {
						b.BufSize[a][isDual]--
					}
				}
			}

			if b.BufSize[a][isDual] <= 0 {
				panic(fmt.Sprintf("patch %d: owned count %d along %s (dual=%d) is not positive",
					p.ID, b.BufSize[a][isDual], grid.AxisNames[a], isDual))
			}
		}
	}
	return b
}

// Owned returns the inclusive owned index interval along an axis
func (b Boundary) Owned(axis int, dual bool) (first, last int) {
	d := 0
	if dual {
		d = 1
	}
	first = b.IStart[axis][d]
	last = first + b.BufSize[axis][d] - 1
	return
}

// OwnedRange returns the owned box of a field with centering c
func (b Boundary) OwnedRange(c grid.Centering) field.Range {
	var r field.Range
	for a := 0; a < grid.NDim; a++ {
		r.Lo[a], r.Hi[a] = b.Owned(a, c.IsDual(a))
	}
	return r
}
