package vectorpatch

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/comm"
	"github.com/notargets/PICKernel/electromagn"
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/particles"
	"github.com/notargets/PICKernel/partitions"
	"github.com/notargets/PICKernel/poisson"
	"github.com/notargets/PICKernel/profile"
)

// Exchanger sums or copies the ghost layers of fields indexed by patch id
type Exchanger interface {
	SumField(fields []*field.Field)
	CopyField(fields []*field.Field)
}

// Species is one particle population loaded on every held patch
type Species struct {
	Name    string
	Charge  int16
	Density profile.Spatial
	PerCell [grid.NDim]int
	// MeanGamma is the Lorentz factor of a beam drifting along x, used
	// when RelativisticInit asks for its self-consistent fields
	MeanGamma        float64
	RelativisticInit bool

	// Particles by patch id, nil where not held
	Particles []*particles.Particles
}

// VectorPatch is the set of patches held by one rank. Every method that
// exchanges or reduces is a collective: all ranks call it in the same order.
type VectorPatch struct {
	Layout    *partitions.Layout
	Rank      int
	Patches   []*electromagn.ElectroMagn // by patch id, nil where not held
	Species   []*Species
	Comm      comm.Communicator
	Exchanger Exchanger
	Poisson   *poisson.Solver

	// Workers bounds the goroutines running per-patch work
	Workers int
	// FailOnDivergence turns a non-converged Poisson solve into an error
	FailOnDivergence bool
	// FilterPasses is the number of binomial passes applied to J
	FilterPasses int

	// Poynting is the global cumulative flux table, [side][axis]
	Poynting [2][grid.NDim]float64

	held []int
}

// New allocates the field sets of the patches the communicator's rank holds
func New(layout *partitions.Layout, params electromagn.Params, c comm.Communicator, ex Exchanger, opts poisson.Options) *VectorPatch {
	vp := &VectorPatch{
		Layout:    layout,
		Rank:      c.Rank(),
		Patches:   make([]*electromagn.ElectroMagn, layout.NumPatches()),
		Comm:      c,
		Exchanger: ex,
		Poisson:   poisson.NewSolver(c, ex, opts),
		Workers:   runtime.NumCPU(),
		held:      layout.RankPatches(c.Rank()),
	}
	for _, id := range vp.held {
		vp.Patches[id] = electromagn.New(params, layout.Patch(id))
	}
	log.WithFields(log.Fields{
		"rank":    vp.Rank,
		"patches": len(vp.held),
		"total":   layout.NumPatches(),
	}).Debug("created vector of patches")
	return vp
}

// Held lists the ids of the local patches
func (vp *VectorPatch) Held() []int {
	return vp.held
}

// AddSpecies loads s uniformly on every held patch. Species are added in the
// order of Params.Species.
func (vp *VectorPatch) AddSpecies(s *Species, caps particles.Capabilities) error {
	ispec := len(vp.Species)
	names := vp.params().Species
	if ispec >= len(names) || names[ispec] != s.Name {
		return fmt.Errorf("species %q is not number %d of %v", s.Name, ispec, names)
	}
	s.Particles = make([]*particles.Particles, len(vp.Patches))
	for _, id := range vp.held {
		p := particles.New(grid.NDim, caps)
		particles.LoadUniform(p, vp.Patches[id].Grid, s.Density, s.Charge, s.PerCell)
		s.Particles[id] = p
	}
	vp.Species = append(vp.Species, s)
	return nil
}

func (vp *VectorPatch) params() electromagn.Params {
	for _, em := range vp.Patches {
		if em != nil {
			return em.Params
		}
	}
	return electromagn.Params{}
}

// forEach runs fn on every held patch, one goroutine per bucket of patches
func (vp *VectorPatch) forEach(fn func(em *electromagn.ElectroMagn) error) error {
	buckets := partitions.NewBuckets(len(vp.held), vp.Workers, partitions.BlockPartition)
	errs := make([]error, len(vp.held))

	var wg sync.WaitGroup
	for _, items := range buckets.Items {
		wg.Add(1)
		go func(items []int) {
			defer wg.Done()
			for _, n := range items {
				errs[n] = fn(vp.Patches[vp.held[n]])
			}
		}(items)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// each is forEach for work that cannot fail
func (vp *VectorPatch) each(fn func(em *electromagn.ElectroMagn)) {
	_ = vp.forEach(func(em *electromagn.ElectroMagn) error {
		fn(em)
		return nil
	})
}

// collect gathers one field per patch id
func (vp *VectorPatch) collect(pick func(em *electromagn.ElectroMagn) *field.Field) []*field.Field {
	fs := make([]*field.Field, len(vp.Patches))
	for id, em := range vp.Patches {
		if em != nil {
			fs[id] = pick(em)
		}
	}
	return fs
}

// RestartRhoJ zeroes the totals and every species array
func (vp *VectorPatch) RestartRhoJ() {
	vp.each(func(em *electromagn.ElectroMagn) {
		em.RestartRhoJ()
		for ispec := range em.RhoS {
			em.RestartRhoJs(ispec, true)
		}
	})
}

// Project deposits the charge of every species into its Rho array
func (vp *VectorPatch) Project() error {
	return vp.forEach(func(em *electromagn.ElectroMagn) error {
		for ispec, s := range vp.Species {
			if err := vp.projectSpecies(em, ispec, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (vp *VectorPatch) projectSpecies(em *electromagn.ElectroMagn, ispec int, s *Species) error {
	p := s.Particles[em.Patch.ID]
	if p == nil || em.RhoS[ispec] == nil {
		return nil
	}
	if err := particles.ProjectCharge(p, em.RhoS[ispec], em.Grid); err != nil {
		return fmt.Errorf("patch %d species %s: %w", em.Patch.ID, s.Name, err)
	}
	return nil
}

// ComputeTotalRhoJ adds the species arrays into the totals of each patch
func (vp *VectorPatch) ComputeTotalRhoJ() {
	vp.each(func(em *electromagn.ElectroMagn) { em.ComputeTotalRhoJ() })
}

// SumDensities merges the partial totals of the patches sharing a node.
// With species set the per-species arrays are summed too.
func (vp *VectorPatch) SumDensities(species bool) {
	vp.Exchanger.SumField(vp.collect(func(em *electromagn.ElectroMagn) *field.Field { return em.Rho }))
	vp.Exchanger.SumField(vp.collect(func(em *electromagn.ElectroMagn) *field.Field { return em.Jx }))
	vp.Exchanger.SumField(vp.collect(func(em *electromagn.ElectroMagn) *field.Field { return em.Jy }))
	vp.Exchanger.SumField(vp.collect(func(em *electromagn.ElectroMagn) *field.Field { return em.Jz }))
	if !species {
		return
	}
	for ispec := range vp.Species {
		for _, pick := range []func(em *electromagn.ElectroMagn) *field.Field{
			func(em *electromagn.ElectroMagn) *field.Field { return em.RhoS[ispec] },
			func(em *electromagn.ElectroMagn) *field.Field { return em.JxS[ispec] },
			func(em *electromagn.ElectroMagn) *field.Field { return em.JyS[ispec] },
			func(em *electromagn.ElectroMagn) *field.Field { return em.JzS[ispec] },
		} {
			vp.Exchanger.SumField(vp.collect(pick))
		}
	}
}

func (vp *VectorPatch) copyAll(picks ...func(em *electromagn.ElectroMagn) *field.Field) {
	for _, pick := range picks {
		vp.Exchanger.CopyField(vp.collect(pick))
	}
}

// ExchangeE refreshes the ghost nodes of E
func (vp *VectorPatch) ExchangeE() {
	vp.copyAll(
		func(em *electromagn.ElectroMagn) *field.Field { return em.Ex },
		func(em *electromagn.ElectroMagn) *field.Field { return em.Ey },
		func(em *electromagn.ElectroMagn) *field.Field { return em.Ez },
	)
}

// ExchangeB refreshes the ghost nodes of B
func (vp *VectorPatch) ExchangeB() {
	vp.copyAll(
		func(em *electromagn.ElectroMagn) *field.Field { return em.Bx },
		func(em *electromagn.ElectroMagn) *field.Field { return em.By },
		func(em *electromagn.ElectroMagn) *field.Field { return em.Bz },
	)
}

// ExchangeBm refreshes the ghost nodes of B_m
func (vp *VectorPatch) ExchangeBm() {
	vp.copyAll(
		func(em *electromagn.ElectroMagn) *field.Field { return em.BxM },
		func(em *electromagn.ElectroMagn) *field.Field { return em.ByM },
		func(em *electromagn.ElectroMagn) *field.Field { return em.BzM },
	)
}

// ExchangeJ refreshes the ghost nodes of J
func (vp *VectorPatch) ExchangeJ() {
	vp.copyAll(
		func(em *electromagn.ElectroMagn) *field.Field { return em.Jx },
		func(em *electromagn.ElectroMagn) *field.Field { return em.Jy },
		func(em *electromagn.ElectroMagn) *field.Field { return em.Jz },
	)
}

// IsRhoNull reports whether the total charge vanishes on every rank
func (vp *VectorPatch) IsRhoNull() bool {
	charged := 0.0
	for _, id := range vp.held {
		if !vp.Patches[id].IsRhoNull() {
			charged++
		}
	}
	return vp.Comm.AllReduceSum(charged) == 0
}

// SolvePoisson computes E from the summed total charge. A null charge
// leaves E untouched.
func (vp *VectorPatch) SolvePoisson() (poisson.Result, error) {
	if vp.IsRhoNull() {
		log.Debug("total charge is null, skipping Poisson")
		return poisson.Result{Converged: true}, nil
	}
	return vp.checkSolve(vp.Poisson.Solve(vp.Patches))
}

// SolveRelativisticPoisson adds the self-consistent fields of one species
// drifting along x. The solve runs on the species charge alone; the total
// Rho is restored before returning.
func (vp *VectorPatch) SolveRelativisticPoisson(ispec int) (poisson.Result, error) {
	s := vp.Species[ispec]
	saved := make([]*field.Field, len(vp.Patches))
	vp.each(func(em *electromagn.ElectroMagn) { saved[em.Patch.ID] = em.Rho.Clone("Rho") })
	defer vp.each(func(em *electromagn.ElectroMagn) { em.Rho.CopyFrom(saved[em.Patch.ID]) })

	err := vp.forEach(func(em *electromagn.ElectroMagn) error {
		em.RestartRhoJs(ispec, false)
		em.Rho.Zero()
		if err := vp.projectSpecies(em, ispec, s); err != nil {
			return err
		}
		if em.RhoS[ispec] != nil {
			em.Rho.CopyFrom(em.RhoS[ispec])
		}
		return nil
	})
	if err != nil {
		return poisson.Result{}, err
	}
	vp.Exchanger.SumField(vp.collect(func(em *electromagn.ElectroMagn) *field.Field { return em.Rho }))
	if vp.IsRhoNull() {
		return poisson.Result{Converged: true}, nil
	}
	log.WithFields(log.Fields{"species": s.Name, "gamma": s.MeanGamma}).Info("relativistic field initialisation")
	return vp.checkSolve(vp.Poisson.SolveRelativistic(vp.Patches, s.MeanGamma))
}

// checkSolve applies the divergence policy
func (vp *VectorPatch) checkSolve(res poisson.Result, err error) (poisson.Result, error) {
	if errors.Is(err, poisson.ErrNotConverged) && !vp.FailOnDivergence {
		log.WithError(err).Warn("continuing with the unconverged Poisson fields")
		return res, nil
	}
	return res, err
}

// ApplyAntennas adds the antenna currents at time t
func (vp *VectorPatch) ApplyAntennas(t float64) {
	vp.each(func(em *electromagn.ElectroMagn) { em.ApplyAntennas(t) })
}

// FilterCurrents smooths J with FilterPasses binomial passes, refreshing
// the ghosts after every axis
func (vp *VectorPatch) FilterCurrents() {
	for pass := 0; pass < vp.FilterPasses; pass++ {
		for axis := 0; axis < grid.NDim; axis++ {
			vp.each(func(em *electromagn.ElectroMagn) { em.FilterCurrentAxis(axis) })
			vp.ExchangeJ()
		}
	}
}

// SolveMaxwell advances E and B by one leapfrog step and leaves the
// time-centred B in B_m
func (vp *VectorPatch) SolveMaxwell() {
	vp.each(func(em *electromagn.ElectroMagn) {
		em.SaveMagneticFields()
		em.SolveMaxwellAmpere()
	})
	vp.ExchangeE()
	vp.each(func(em *electromagn.ElectroMagn) { em.SolveMaxwellFaraday() })
	vp.ExchangeB()
	vp.each(func(em *electromagn.ElectroMagn) { em.CenterMagneticFields() })
}

// AccumulatePoynting integrates the flux of this step on every patch and
// returns the global instantaneous and cumulative tables
func (vp *VectorPatch) AccumulatePoynting() (inst, total [2][grid.NDim]float64) {
	vp.each(func(em *electromagn.ElectroMagn) { em.AccumulatePoynting() })

	buf := make([]float64, 2*grid.NDim)
	for _, id := range vp.held {
		for side := 0; side < 2; side++ {
			for axis := 0; axis < grid.NDim; axis++ {
				buf[side*grid.NDim+axis] += vp.Patches[id].PoyntingInst[side][axis]
			}
		}
	}
	vp.Comm.AllReduceSumSlice(buf)
	for side := 0; side < 2; side++ {
		for axis := 0; axis < grid.NDim; axis++ {
			inst[side][axis] = buf[side*grid.NDim+axis]
			vp.Poynting[side][axis] += inst[side][axis]
		}
	}
	return inst, vp.Poynting
}

// Energy is the global electromagnetic energy
func (vp *VectorPatch) Energy() float64 {
	u := 0.0
	for _, id := range vp.held {
		u += vp.Patches[id].ComputeEnergy()
	}
	return vp.Comm.AllReduceSum(u)
}

// Initialize prepares the fields before the first step: antennas, the
// electrostatic field of the initial charge, the fields of relativistic
// species and finally the external fields
func (vp *VectorPatch) Initialize() error {
	if err := vp.forEach(func(em *electromagn.ElectroMagn) error { return em.InitAntennas() }); err != nil {
		return err
	}

	vp.RestartRhoJ()
	if err := vp.Project(); err != nil {
		return err
	}
	vp.ComputeTotalRhoJ()
	vp.SumDensities(false)
	res, err := vp.SolvePoisson()
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"iterations": res.Iterations, "residual": res.Residual}).Debug("initial fields")

	for ispec, s := range vp.Species {
		if !s.RelativisticInit {
			continue
		}
		if _, err := vp.SolveRelativisticPoisson(ispec); err != nil {
			return err
		}
	}

	if err := vp.forEach(func(em *electromagn.ElectroMagn) error { return em.ApplyExternalFields() }); err != nil {
		return err
	}
	vp.ExchangeE()
	vp.ExchangeB()
	vp.ExchangeBm()
	return nil
}

// Step runs one field cycle: deposition, totals, their exchange, antennas
// at the dual time, the Maxwell update and the Poynting bookkeeping
func (vp *VectorPatch) Step(timeDual float64) (inst [2][grid.NDim]float64, err error) {
	vp.RestartRhoJ()
	if err := vp.Project(); err != nil {
		return inst, err
	}
	vp.ComputeTotalRhoJ()
	vp.SumDensities(false)
	vp.ApplyAntennas(timeDual)
	vp.FilterCurrents()
	vp.SolveMaxwell()
	inst, _ = vp.AccumulatePoynting()
	return inst, nil
}
