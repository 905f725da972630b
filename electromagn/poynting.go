package electromagn

import (
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/partitions"
)

// sampleAtNode interpolates f to the primal node (i,j,k) by averaging over
// the two dual neighbours along every dual axis of f
func sampleAtNode(f *field.Field, i, j, k int) float64 {
	var hi [grid.NDim]int
	for a := 0; a < grid.NDim; a++ {
		hi[a] = f.Centering.Offset(a)
	}
	sum, n := 0.0, 0
	for di := 0; di <= hi[0]; di++ {
		for dj := 0; dj <= hi[1]; dj++ {
			for dk := 0; dk <= hi[2]; dk++ {
				sum += f.At(i+di, j+dj, k+dk)
				n++
			}
		}
	}
	return sum / float64(n)
}

// AccumulatePoynting integrates E x B_m over the faces of the patch that lie
// on the physical boundary and adds the result into the running table.
// Faces shared with another patch contribute nothing.
func (em *ElectroMagn) AccumulatePoynting() [2][grid.NDim]float64 {
	e := [grid.NDim]*field.Field{em.Ex, em.Ey, em.Ez}
	b := [grid.NDim]*field.Field{em.BxM, em.ByM, em.BzM}
	dt := em.Params.Timestep
	d := em.Grid.CellLength

	em.PoyntingInst = [2][grid.NDim]float64{}
	for normal := 0; normal < grid.NDim; normal++ {
		t1, t2 := (normal+1)%grid.NDim, (normal+2)%grid.NDim
		area := d[t1] * d[t2] * dt
		for side := partitions.Min; side <= partitions.Max; side++ {
			if !em.Patch.OnPhysicalBoundary(normal, side) {
				continue
			}

			// Face index along the normal: first or last owned primal node
			first, last := em.Boundary.Owned(normal, false)
			face := first
			if side == partitions.Max {
				face = last
			}

			var lo, hi [grid.NDim]int
			lo[normal], hi[normal] = face, face
			lo[t1], hi[t1] = em.Boundary.Owned(t1, false)
			lo[t2], hi[t2] = em.Boundary.Owned(t2, false)

			flux := 0.0
			for i := lo[0]; i <= hi[0]; i++ {
				for j := lo[1]; j <= hi[1]; j++ {
					for k := lo[2]; k <= hi[2]; k++ {
						flux += sampleAtNode(e[t1], i, j, k)*sampleAtNode(b[t2], i, j, k) -
							sampleAtNode(e[t2], i, j, k)*sampleAtNode(b[t1], i, j, k)
					}
				}
			}
			em.PoyntingInst[side][normal] = area * flux
			em.Poynting[side][normal] += em.PoyntingInst[side][normal]
		}
	}
	return em.Poynting
}

// ComputeEnergy returns the electromagnetic energy (E^2 + B^2)/2 held in the
// owned nodes of the patch
func (em *ElectroMagn) ComputeEnergy() float64 {
	u := 0.0
	for _, f := range []*field.Field{em.Ex, em.Ey, em.Ez, em.BxM, em.ByM, em.BzM} {
		u += f.Norm2Range(em.Boundary.OwnedRange(f.Centering))
	}
	return 0.5 * u * em.Grid.CellVolume()
}
