package electromagn

import (
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
)

// BinomialCurrentFilter applies one (1,2,1)/4 pass along each axis to Jx, Jy
// and Jz. The outermost layer is left to the exchange.
func (em *ElectroMagn) BinomialCurrentFilter() {
	for axis := 0; axis < grid.NDim; axis++ {
		em.FilterCurrentAxis(axis)
	}
}

// FilterCurrentAxis is the pass of BinomialCurrentFilter along one axis.
// Between axes the ghosts of a decomposed domain must be refreshed, since
// the transverse ghost layers are not smoothed.
func (em *ElectroMagn) FilterCurrentAxis(axis int) {
	for _, j := range []*field.Field{em.Jx, em.Jy, em.Jz} {
		smoothAxis(j, axis)
	}
}

// smoothAxis averages with the upper neighbour, then with the lower one.
// The lower pass runs downwards so each node sees its neighbour's value
// from the first pass, which composes to the three point binomial stencil.
func smoothAxis(f *field.Field, axis int) {
	var lo, hi [grid.NDim]int
	for a := 0; a < grid.NDim; a++ {
		lo[a], hi[a] = 1, f.Dims[a]-2
	}
	var step [grid.NDim]int
	step[axis] = 1
	stride := f.Index(step[0], step[1], step[2])
	d := f.Data()

	// Forward half: node i takes (f(i) + f(i+1))/2, node 0 included
	lo[axis] = 0
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for k := lo[2]; k <= hi[2]; k++ {
				n := f.Index(i, j, k)
				d[n] = 0.5 * (d[n] + d[n+stride])
			}
		}
	}

	// Backward half: node i takes (f(i) + f(i-1))/2
	lo[axis] = 1
	for i := hi[0]; i >= lo[0]; i-- {
		for j := hi[1]; j >= lo[1]; j-- {
			for k := hi[2]; k >= lo[2]; k-- {
				n := f.Index(i, j, k)
				d[n] = 0.5 * (d[n] + d[n-stride])
			}
		}
	}
}
