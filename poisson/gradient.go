package poisson

import (
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/partitions"
)

// gradient sets E = -grad(phi) on the dual nodes that have both primal
// neighbours. The x component is divided by gammaSq.
func gradient(e [grid.NDim]*field.Field, phi *field.Field, d [grid.NDim]float64, gammaSq float64) {
	for axis := 0; axis < grid.NDim; axis++ {
		f := e[axis]
		scale := 1 / d[axis]
		if axis == grid.X {
			scale /= gammaSq
		}
		var lo, hi, step [grid.NDim]int
		for a := 0; a < grid.NDim; a++ {
			lo[a], hi[a] = 0, phi.Dims[a]-1
		}
		lo[axis], hi[axis] = 1, f.Dims[axis]-2
		step[axis] = 1

		for i := lo[0]; i <= hi[0]; i++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for k := lo[2]; k <= hi[2]; k++ {
					f.Set(i, j, k, scale*(phi.At(i-step[0], j-step[1], k-step[2])-phi.At(i, j, k)))
				}
			}
		}
	}
}

// gaussClosure fixes the outermost dual layer of E along axis so that the
// discrete divergence of E equals rho on the extremal primal face
func gaussClosure(e [grid.NDim]*field.Field, rho *field.Field, d [grid.NDim]float64, axis, side int) {
	normal := e[axis]
	t1, t2 := (axis+1)%grid.NDim, (axis+2)%grid.NDim

	outer, inner, node, sign := 0, 1, 0, -1.0
	if side == partitions.Max {
		outer, inner = normal.Dims[axis]-1, normal.Dims[axis]-2
		node, sign = rho.Dims[axis]-1, 1.0
	}

	var idx [grid.NDim]int
	for u := 0; u < rho.Dims[t1]; u++ {
		for v := 0; v < rho.Dims[t2]; v++ {
			idx[axis], idx[t1], idx[t2] = node, u, v
			var div float64
			for _, t := range [2]int{t1, t2} {
				next := idx
				next[t]++
				div += (e[t].At(next[0], next[1], next[2]) - e[t].At(idx[0], idx[1], idx[2])) * d[axis] / d[t]
			}
			o, in := idx, idx
			o[axis], in[axis] = outer, inner
			normal.Set(o[0], o[1], o[2], normal.At(in[0], in[1], in[2])+
				sign*(d[axis]*rho.At(idx[0], idx[1], idx[2])-div))
		}
	}
}
