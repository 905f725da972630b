package poisson

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/electromagn"
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
)

// relFields are the fields of a beam moving along x with Lorentz factor
// gammaMean, added on top of the existing E and B once computed
type relFields struct {
	e [grid.NDim]*field.Field
	// byRel is centred like Ez and bzRel like Ey until they are moved
	// onto the Yee positions of By and Bz
	byRel, bzRel *field.Field
}

// SolveRelativistic solves lap_x(phi)/gamma^2 + lap_yz(phi) = -rho and adds
// the resulting E and B of a species drifting along x to the patch fields
func (s *Solver) SolveRelativistic(patches []*electromagn.ElectroMagn, gammaMean float64) (Result, error) {
	if gammaMean < 1 {
		return Result{}, fmt.Errorf("poisson: gamma_mean %g below 1", gammaMean)
	}
	st := s.init(patches, gammaMean)
	res, err := s.iterate(st)
	s.finalizeRelativistic(st, gammaMean)
	return res, err
}

func (s *Solver) finalizeRelativistic(st *cgState, gammaMean float64) {
	rel := make(map[*electromagn.ElectroMagn]*relFields, len(st.patches))
	for _, ps := range st.patches {
		if ps == nil {
			continue
		}
		em := ps.em
		rf := &relFields{}
		for a, c := range []grid.Centering{grid.CenterEx, grid.CenterEy, grid.CenterEz} {
			rf.e[a] = field.New(grid.AxisNames[a]+"_rel", em.Grid, c)
		}
		gradient(rf.e, ps.phi, em.Grid.CellLength, gammaMean*gammaMean)
		s.closeFaces(rf.e, em)
		rel[em] = rf
	}

	if s.Options.CenterE {
		s.centerE(st, func(em *electromagn.ElectroMagn) [grid.NDim]*field.Field {
			return rel[em].e
		})
	}

	beta := math.Sqrt(1 - 1/(gammaMean*gammaMean))
	for _, ps := range st.patches {
		if ps == nil {
			continue
		}
		rf := rel[ps.em]
		rf.byRel = rf.e[grid.Z].Clone("By_rel")
		rf.byRel.Scale(-beta)
		rf.bzRel = rf.e[grid.Y].Clone("Bz_rel")
		rf.bzRel.Scale(beta)
		addRelativistic(ps.em, rf)
	}

	s.exchangeE(st)
	for _, pick := range []func(*patchState) *field.Field{
		func(ps *patchState) *field.Field { return ps.em.By },
		func(ps *patchState) *field.Field { return ps.em.Bz },
		func(ps *patchState) *field.Field { return ps.em.ByM },
		func(ps *patchState) *field.Field { return ps.em.BzM },
	} {
		s.Exchanger.CopyField(st.fields(pick))
	}
	log.WithFields(log.Fields{"gamma": gammaMean, "beta": beta}).Info("added relativistic species fields")
	st.patches = nil
}

// addRelativistic sums E_rel into E and the x-averaged B_rel into B and B_m.
// Bx_rel vanishes and the outermost x dual layers of By, Bz get nothing.
func addRelativistic(em *electromagn.ElectroMagn, rf *relFields) {
	em.Ex.AddField(rf.e[grid.X])
	em.Ey.AddField(rf.e[grid.Y])
	em.Ez.AddField(rf.e[grid.Z])

	targets := [][2]*field.Field{{em.By, em.ByM}, {em.Bz, em.BzM}}
	for n, src := range []*field.Field{rf.byRel, rf.bzRel} {
		b, bm := targets[n][0], targets[n][1]
		for i := 1; i < b.Dims[0]-1; i++ {
			for j := 0; j < b.Dims[1]; j++ {
				for k := 0; k < b.Dims[2]; k++ {
					v := 0.5 * (src.At(i, j, k) + src.At(i-1, j, k))
					b.Add(i, j, k, v)
					if bm != b {
						bm.Add(i, j, k, v)
					}
				}
			}
		}
	}
}
