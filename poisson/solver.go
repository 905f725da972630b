package poisson

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/comm"
	"github.com/notargets/PICKernel/electromagn"
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/partitions"
)

// ErrNotConverged is wrapped by every ConvergenceError
var ErrNotConverged = errors.New("poisson solver did not converge")

// ConvergenceError reports a solve that hit the iteration cap. The fields
// computed from the best-effort potential are still written.
type ConvergenceError struct {
	Iterations int
	Residual   float64
	MaxError   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%v after %d iterations: residual %g > %g",
		ErrNotConverged, e.Iterations, e.Residual, e.MaxError)
}

func (e *ConvergenceError) Unwrap() error { return ErrNotConverged }

// Options controls the conjugate gradient loop and the field derivation
type Options struct {
	MaxError      float64
	MaxIterations int
	// CenterE removes the global mean of each E component
	CenterE bool
	// TransverseClosure applies the Gauss law closure on the y and z
	// extremal faces as well as on x
	TransverseClosure bool
}

// DefaultOptions mirrors the usual input deck defaults
func DefaultOptions() Options {
	return Options{
		MaxError:      1e-14,
		MaxIterations: 50000,
		CenterE:       true,
	}
}

// Exchanger overwrites ghost nodes from their owning patch. Fields are
// indexed by patch id, nil entries belong to other ranks.
type Exchanger interface {
	CopyField(fields []*field.Field)
}

// Result summarises one solve
type Result struct {
	Iterations int
	Residual   float64
	Converged  bool
}

// Solver runs the distributed conjugate gradient on a set of patches
type Solver struct {
	Comm      comm.Communicator
	Exchanger Exchanger
	Engine    VectorEngine
	Options   Options
}

// NewSolver returns a solver that runs the vector updates on the host
func NewSolver(c comm.Communicator, ex Exchanger, opts Options) *Solver {
	return &Solver{Comm: c, Exchanger: ex, Engine: HostEngine{}, Options: opts}
}

// patchState holds the temporaries of one patch for a single solve
type patchState struct {
	em      *electromagn.ElectroMagn
	phi     *field.Field
	r       *field.Field
	p       *field.Field
	ap      *field.Field
	domain  field.Range
	stencil laplacian
}

type cgState struct {
	patches []*patchState
	rnew    float64
	nGlobal float64
}

// Solve computes E = -grad(phi) with lap(phi) = -rho from the total charge
// of the patches. patches is indexed by patch id; nil entries are not held
// by this rank. E is overwritten on the nodes the gradient reaches.
func (s *Solver) Solve(patches []*electromagn.ElectroMagn) (Result, error) {
	st := s.init(patches, 1)
	res, err := s.iterate(st)
	s.finalize(st)
	return res, err
}

// init allocates the temporaries and seeds phi = 0, r = p = -rho
func (s *Solver) init(patches []*electromagn.ElectroMagn, gammaMean float64) *cgState {
	st := &cgState{patches: make([]*patchState, len(patches))}
	var rnew, n float64
	for id, em := range patches {
		if em == nil {
			continue
		}
		ps := &patchState{
			em:      em,
			phi:     field.New("phi", em.Grid, grid.Primal),
			r:       em.Rho.Clone("r"),
			ap:      field.New("Ap", em.Grid, grid.Primal),
			domain:  solveDomain(em.Boundary, em.Patch, em.Grid.PrimalDims()),
			stencil: newLaplacian(em.Grid, em.Patch, gammaMean),
		}
		checkOversize(em)
		ps.r.Scale(-1)
		ps.p = ps.r.Clone("p")
		rnew += ps.r.Norm2Range(ps.domain)
		n += float64(ps.domain.Count())
		st.patches[id] = ps
	}
	st.rnew = s.Comm.AllReduceSum(rnew)
	st.nGlobal = s.Comm.AllReduceSum(n)
	return st
}

func checkOversize(em *electromagn.ElectroMagn) {
	for a := 0; a < grid.NDim; a++ {
		if em.Patch.NumberOfPatches(a) > 1 && em.Params.Oversize[a] < 1 {
			panic(fmt.Sprintf("poisson: oversize along %s must be at least 1 with %d patches",
				grid.AxisNames[a], em.Patch.NumberOfPatches(a)))
		}
	}
}

// solveDomain is the set of primal nodes carried by the CG on this patch:
// the owned nodes, extended to the physical ghosts at extremal faces
func solveDomain(b partitions.Boundary, p partitions.Patch, dims [grid.NDim]int) field.Range {
	var r field.Range
	for a := 0; a < grid.NDim; a++ {
		r.Lo[a], r.Hi[a] = b.Owned(a, false)
		if p.IsMin(a) {
			r.Lo[a] = 0
		}
		if p.IsMax(a) {
			r.Hi[a] = dims[a] - 1
		}
	}
	return r
}

func (st *cgState) fields(pick func(*patchState) *field.Field) []*field.Field {
	fs := make([]*field.Field, len(st.patches))
	for id, ps := range st.patches {
		if ps != nil {
			fs[id] = pick(ps)
		}
	}
	return fs
}

func (s *Solver) control(st *cgState) float64 {
	if st.nGlobal == 0 {
		return 0
	}
	return math.Sqrt(st.rnew) / st.nGlobal
}

func (s *Solver) iterate(st *cgState) (Result, error) {
	phi := st.fields(func(ps *patchState) *field.Field { return ps.phi })
	r := st.fields(func(ps *patchState) *field.Field { return ps.r })
	p := st.fields(func(ps *patchState) *field.Field { return ps.p })
	ap := st.fields(func(ps *patchState) *field.Field { return ps.ap })

	ctrl := s.control(st)
	iter := 0
	for ctrl > s.Options.MaxError && iter < s.Options.MaxIterations {
		iter++
		rold := st.rnew

		for _, ps := range st.patches {
			if ps != nil {
				ps.stencil.apply(ps.ap, ps.p)
			}
		}
		s.Exchanger.CopyField(ap)

		var pAp float64
		for _, ps := range st.patches {
			if ps != nil {
				pAp += ps.p.DotRange(ps.ap, ps.domain)
			}
		}
		pAp = s.Comm.AllReduceSum(pAp)
		if pAp == 0 {
			ctrl = s.control(st)
			if st.rnew != 0 {
				log.WithField("iteration", iter).Warn("poisson: search direction vanished")
			}
			break
		}

		alpha := rold / pAp
		if err := s.Engine.UpdatePhiAndR(phi, r, p, ap, alpha); err != nil {
			return Result{Iterations: iter, Residual: ctrl}, fmt.Errorf("poisson: update phi: %w", err)
		}

		var rnew float64
		for _, ps := range st.patches {
			if ps != nil {
				rnew += ps.r.Norm2Range(ps.domain)
			}
		}
		st.rnew = s.Comm.AllReduceSum(rnew)

		if err := s.Engine.UpdateP(p, r, st.rnew/rold); err != nil {
			return Result{Iterations: iter, Residual: ctrl}, fmt.Errorf("poisson: update p: %w", err)
		}
		ctrl = s.control(st)
		log.WithFields(log.Fields{"iteration": iter, "residual": ctrl}).Trace("poisson iteration")
	}

	res := Result{Iterations: iter, Residual: ctrl, Converged: st.rnew == 0 || ctrl <= s.Options.MaxError}
	if !res.Converged {
		log.WithFields(log.Fields{"iterations": iter, "residual": ctrl}).Warn("poisson solver stopped before convergence")
		return res, &ConvergenceError{Iterations: iter, Residual: ctrl, MaxError: s.Options.MaxError}
	}
	log.WithFields(log.Fields{"iterations": iter, "residual": ctrl}).Info("poisson solver converged")
	return res, nil
}

// finalize derives E from phi, closes Gauss law on the extremal faces,
// exchanges and optionally centres E. The temporaries are dropped.
func (s *Solver) finalize(st *cgState) {
	for _, ps := range st.patches {
		if ps == nil {
			continue
		}
		e := [grid.NDim]*field.Field{ps.em.Ex, ps.em.Ey, ps.em.Ez}
		gradient(e, ps.phi, ps.em.Grid.CellLength, 1)
		s.closeFaces(e, ps.em)
	}
	s.exchangeE(st)
	if s.Options.CenterE {
		s.centerE(st, func(em *electromagn.ElectroMagn) [grid.NDim]*field.Field {
			return [grid.NDim]*field.Field{em.Ex, em.Ey, em.Ez}
		})
	}
	st.patches = nil
}

func (s *Solver) closeFaces(e [grid.NDim]*field.Field, em *electromagn.ElectroMagn) {
	axes := []int{grid.X}
	if s.Options.TransverseClosure {
		axes = append(axes, grid.Y, grid.Z)
	}
	for _, axis := range axes {
		for side := partitions.Min; side <= partitions.Max; side++ {
			if em.Patch.OnPhysicalBoundary(axis, side) {
				gaussClosure(e, em.Rho, em.Grid.CellLength, axis, side)
			}
		}
	}
}

func (s *Solver) exchangeE(st *cgState) {
	s.Exchanger.CopyField(st.fields(func(ps *patchState) *field.Field { return ps.em.Ex }))
	s.Exchanger.CopyField(st.fields(func(ps *patchState) *field.Field { return ps.em.Ey }))
	s.Exchanger.CopyField(st.fields(func(ps *patchState) *field.Field { return ps.em.Ez }))
}

// centerE shifts every component so its mean over the owned nodes of the
// whole domain is zero
func (s *Solver) centerE(st *cgState, pick func(*electromagn.ElectroMagn) [grid.NDim]*field.Field) {
	sums := make([]float64, 2*grid.NDim)
	for _, ps := range st.patches {
		if ps == nil {
			continue
		}
		for c, f := range pick(ps.em) {
			owned := ps.em.Boundary.OwnedRange(f.Centering)
			sums[c] += f.SumRange(owned)
			sums[grid.NDim+c] += float64(owned.Count())
		}
	}
	s.Comm.AllReduceSumSlice(sums)
	for _, ps := range st.patches {
		if ps == nil {
			continue
		}
		for c, f := range pick(ps.em) {
			if sums[grid.NDim+c] > 0 {
				f.AddConstant(-sums[c] / sums[grid.NDim+c])
			}
		}
	}
}
