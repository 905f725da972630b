package poisson

import (
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/partitions"
)

// laplacian is the 7 point operator on the primal grid of one patch.
// Neighbours outside the patch on an extremal face are dropped, which
// imposes phi = 0 one node beyond the physical ghosts. Faces, edges and
// corners all follow from the same rule.
type laplacian struct {
	weight [grid.NDim]float64
	diag   float64
	// lo/hi bound the nodes computed; interior faces leave their outer
	// layer to the exchange
	lo, hi [grid.NDim]int
}

// newLaplacian builds the operator; the x terms are divided by gammaMean^2
func newLaplacian(g *grid.Grid, p partitions.Patch, gammaMean float64) laplacian {
	var l laplacian
	dims := g.PrimalDims()
	for a := 0; a < grid.NDim; a++ {
		l.weight[a] = 1 / (g.CellLength[a] * g.CellLength[a])
		if a == grid.X {
			l.weight[a] /= gammaMean * gammaMean
		}
		l.diag -= 2 * l.weight[a]

		l.lo[a], l.hi[a] = 1, dims[a]-2
		if p.IsMin(a) {
			l.lo[a] = 0
		}
		if p.IsMax(a) {
			l.hi[a] = dims[a] - 1
		}
	}
	return l
}

// apply writes Ap = L p on the computed nodes
func (l laplacian) apply(ap, p *field.Field) {
	dims := p.Dims
	src, dst := p.Data(), ap.Data()
	stride := [grid.NDim]int{dims[1] * dims[2], dims[2], 1}
	var idx [grid.NDim]int
	for idx[0] = l.lo[0]; idx[0] <= l.hi[0]; idx[0]++ {
		for idx[1] = l.lo[1]; idx[1] <= l.hi[1]; idx[1]++ {
			for idx[2] = l.lo[2]; idx[2] <= l.hi[2]; idx[2]++ {
				n := p.Index(idx[0], idx[1], idx[2])
				v := l.diag * src[n]
				for a := 0; a < grid.NDim; a++ {
					if idx[a] > 0 {
						v += l.weight[a] * src[n-stride[a]]
					}
					if idx[a] < dims[a]-1 {
						v += l.weight[a] * src[n+stride[a]]
					}
				}
				dst[n] = v
			}
		}
	}
}
