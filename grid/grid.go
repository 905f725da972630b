package grid

import (
	"fmt"
)

// Axis indices, x varies slowest in every flat array
const (
	X = iota
	Y
	Z
	NDim
)

// AxisNames gives a printable name per axis
var AxisNames = [NDim]string{"x", "y", "z"}

// Centering tells, per axis, whether a field sits on the dual (half-integer)
// nodes. It is fixed when a field is created.
type Centering [NDim]bool

// Canonical Yee placements
var (
	Primal    = Centering{false, false, false}
	CenterEx  = Centering{true, false, false}
	CenterEy  = Centering{false, true, false}
	CenterEz  = Centering{false, false, true}
	CenterBx  = Centering{false, true, true}
	CenterBy  = Centering{true, false, true}
	CenterBz  = Centering{true, true, false}
	CenterRho = Primal
)

// IsDual reports the centering flag along an axis
func (c Centering) IsDual(axis int) bool {
	return c[axis]
}

// Offset returns 1 for a dual axis and 0 for a primal one
func (c Centering) Offset(axis int) int {
	if c[axis] {
		return 1
	}
	return 0
}

func (c Centering) String() string {
	s := make([]byte, NDim)
	for a := 0; a < NDim; a++ {
		if c[a] {
			s[a] = 'd'
		} else {
			s[a] = 'p'
		}
	}
	return "(" + string(s[0]) + "," + string(s[1]) + "," + string(s[2]) + ")"
}

// Grid holds the per-patch geometry of the staggered mesh
type Grid struct {
	NSpace     [NDim]int     // Cells owned by the patch per axis
	Oversize   [NDim]int     // Ghost layers per side
	CellLength [NDim]float64 // Cell size per axis
	CellStart  [NDim]int     // Global index of local node 0
}

// NewGrid builds the grid of the patch at Cartesian coordinates pcoord
func NewGrid(nSpace, oversize [NDim]int, cellLength [NDim]float64, pcoord [NDim]int) *Grid {
	g := &Grid{
		NSpace:     nSpace,
		Oversize:   oversize,
		CellLength: cellLength,
	}
	for a := 0; a < NDim; a++ {
		if nSpace[a] <= 0 {
			panic(fmt.Sprintf("n_space along %s must be positive, got %d", AxisNames[a], nSpace[a]))
		}
		if oversize[a] < 0 {
			panic(fmt.Sprintf("oversize along %s must not be negative, got %d", AxisNames[a], oversize[a]))
		}
		if cellLength[a] <= 0 {
			panic(fmt.Sprintf("cell length along %s must be positive, got %g", AxisNames[a], cellLength[a]))
		}
		g.CellStart[a] = pcoord[a]*nSpace[a] - oversize[a]
	}
	return g
}

// Dimension returns the local extent along an axis, ghosts included
func (g *Grid) Dimension(axis int, dual bool) int {
	n := g.NSpace[axis] + 1 + 2*g.Oversize[axis]
	if dual {
		n++
	}
	return n
}

// PrimalDims returns the primal extents of the three axes
func (g *Grid) PrimalDims() [NDim]int {
	return [NDim]int{g.Dimension(X, false), g.Dimension(Y, false), g.Dimension(Z, false)}
}

// DualDims returns the dual extents of the three axes
func (g *Grid) DualDims() [NDim]int {
	return [NDim]int{g.Dimension(X, true), g.Dimension(Y, true), g.Dimension(Z, true)}
}

// FieldDims returns the array shape for a centering
func (g *Grid) FieldDims(c Centering) [NDim]int {
	var dims [NDim]int
	for a := 0; a < NDim; a++ {
		dims[a] = g.Dimension(a, c[a])
	}
	return dims
}

// GlobalIndex converts a local node index to the global numbering
func (g *Grid) GlobalIndex(axis, local int) int {
	return g.CellStart[axis] + local
}

// Position returns the physical coordinate of a local node
func (g *Grid) Position(axis, local int, dual bool) float64 {
	x := float64(g.GlobalIndex(axis, local))
	if dual {
		x -= 0.5
	}
	return x * g.CellLength[axis]
}

// CellVolume is dx*dy*dz
func (g *Grid) CellVolume() float64 {
	return g.CellLength[X] * g.CellLength[Y] * g.CellLength[Z]
}
