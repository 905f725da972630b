package particles

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/profile"
)

// ErrOutsidePatch is returned when a particle cannot be deposited locally
var ErrOutsidePatch = errors.New("particle outside patch")

// ProjectCharge deposits charge*weight of every particle onto the primal
// nodes of rho with cloud-in-cell weights. rho must be primal on g.
func ProjectCharge(p *Particles, rho *field.Field, g *grid.Grid) error {
	if p.NDim != grid.NDim {
		return fmt.Errorf("project charge: %d-dimensional particles on a 3D grid", p.NDim)
	}
	if rho.Centering != grid.Primal {
		panic(fmt.Sprintf("project charge: %s is not primal %s", rho.Name, rho.Centering))
	}

	var cell [grid.NDim]int
	var w [grid.NDim][2]float64
	for n := 0; n < p.Size(); n++ {
		for a := 0; a < grid.NDim; a++ {
			xi := p.position[a].Data[n]/g.CellLength[a] - float64(g.CellStart[a])
			c := int(math.Floor(xi))
			if c < 0 || c+1 >= rho.Dims[a] {
				return fmt.Errorf("%w: particle %d at %s=%g", ErrOutsidePatch, n, grid.AxisNames[a], p.position[a].Data[n])
			}
			cell[a] = c
			w[a][1] = xi - float64(c)
			w[a][0] = 1 - w[a][1]
		}
		q := float64(p.charge.Data[n]) * p.weight.Data[n]
		for di := 0; di < 2; di++ {
			for dj := 0; dj < 2; dj++ {
				for dk := 0; dk < 2; dk++ {
					rho.Add(cell[0]+di, cell[1]+dj, cell[2]+dk, q*w[0][di]*w[1][dj]*w[2][dk])
				}
			}
		}
	}
	return nil
}

// LoadUniform fills the NSpace cells of a patch with perCell particles per
// axis on a regular sub-lattice. The weights sample density at each
// particle position so the projected charge reproduces charge*density.
func LoadUniform(p *Particles, g *grid.Grid, density profile.Spatial, charge int16, perCell [grid.NDim]int) {
	var lo, hi [grid.NDim]int
	ppc := 1
	for a := 0; a < grid.NDim; a++ {
		// Local node Oversize is the first node of the patch's own cells
		lo[a] = g.Oversize[a]
		hi[a] = lo[a] + g.NSpace[a] - 1
		if perCell[a] < 1 {
			perCell[a] = 1
		}
		ppc *= perCell[a]
	}

	var pos [grid.NDim]float64
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for k := lo[2]; k <= hi[2]; k++ {
				idx := [grid.NDim]int{i, j, k}
				for m0 := 0; m0 < perCell[0]; m0++ {
					for m1 := 0; m1 < perCell[1]; m1++ {
						for m2 := 0; m2 < perCell[2]; m2++ {
							m := [grid.NDim]int{m0, m1, m2}
							for a := 0; a < grid.NDim; a++ {
								frac := (float64(m[a]) + 0.5) / float64(perCell[a])
								pos[a] = (float64(g.GlobalIndex(a, idx[a])) + frac) * g.CellLength[a]
							}
							n := p.CreateParticle()
							for a := 0; a < grid.NDim; a++ {
								p.position[a].Data[n] = pos[a]
							}
							p.weight.Data[n] = density.ValueAt(pos) / float64(ppc)
							p.charge.Data[n] = charge
						}
					}
				}
			}
		}
	}
}
