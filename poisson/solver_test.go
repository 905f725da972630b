package poisson

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/PICKernel/comm"
	"github.com/notargets/PICKernel/electromagn"
	"github.com/notargets/PICKernel/exchange"
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/partitions"
)

type setup struct {
	layout *partitions.Layout
	ems    []*electromagn.ElectroMagn
	ex     *exchange.Exchanger
}

func newSetup(nPatches, nSpace, oversize [3]int, d [3]float64) *setup {
	layout := partitions.NewLayout(nPatches, 1)
	params := electromagn.Params{NSpace: nSpace, Oversize: oversize, CellLength: d, Timestep: 0.1}
	s := &setup{
		layout: layout,
		ems:    make([]*electromagn.ElectroMagn, layout.NumPatches()),
		ex:     exchange.NewExchanger(layout, nSpace, oversize),
	}
	for id := range s.ems {
		s.ems[id] = electromagn.New(params, layout.Patch(id))
	}
	return s
}

func (s *setup) solver(opts Options) *Solver {
	return NewSolver(comm.Serial{}, s.ex, opts)
}

// fillGlobal sets every node of f from its global index
func fillGlobal(f *field.Field, g *grid.Grid, fn func(gi, gj, gk int) float64) {
	for i := 0; i < f.Dims[0]; i++ {
		for j := 0; j < f.Dims[1]; j++ {
			for k := 0; k < f.Dims[2]; k++ {
				f.Set(i, j, k, fn(g.GlobalIndex(0, i), g.GlobalIndex(1, j), g.GlobalIndex(2, k)))
			}
		}
	}
}

func smoothCharge(gi, gj, gk int) float64 {
	x, y, z := float64(gi), float64(gj), float64(gk)
	return math.Sin(0.7*x+0.2) + 0.5*math.Cos(0.4*y*z) - 0.3*math.Sin(0.9*z-0.1*x)
}

func divergenceAt(em *electromagn.ElectroMagn, i, j, k int) float64 {
	d := em.Grid.CellLength
	return (em.Ex.At(i+1, j, k)-em.Ex.At(i, j, k))/d[0] +
		(em.Ey.At(i, j+1, k)-em.Ey.At(i, j, k))/d[1] +
		(em.Ez.At(i, j, k+1)-em.Ez.At(i, j, k))/d[2]
}

func TestLaplacianOfConstantDirichletFaces(t *testing.T) {
	s := newSetup([3]int{1, 1, 1}, [3]int{4, 3, 5}, [3]int{1, 1, 1}, [3]float64{0.5, 1, 2})
	em := s.ems[0]
	l := newLaplacian(em.Grid, em.Patch, 1)
	p := field.New("p", em.Grid, grid.Primal)
	p.AddConstant(1)
	ap := field.New("Ap", em.Grid, grid.Primal)
	l.apply(ap, p)
	w := [3]float64{4, 1, 0.25}

	t.Run("interior nodes vanish", func(t *testing.T) {
		for i := 1; i < p.Dims[0]-1; i++ {
			for j := 1; j < p.Dims[1]-1; j++ {
				for k := 1; k < p.Dims[2]-1; k++ {
					require.InDelta(t, 0, ap.At(i, j, k), 1e-12, "node (%d,%d,%d)", i, j, k)
				}
			}
		}
	})
	t.Run("extremal nodes drop missing neighbours", func(t *testing.T) {
		for i := 0; i < p.Dims[0]; i++ {
			for j := 0; j < p.Dims[1]; j++ {
				for k := 0; k < p.Dims[2]; k++ {
					want := 0.0
					for a, idx := range [3]int{i, j, k} {
						if idx == 0 {
							want -= w[a]
						}
						if idx == p.Dims[a]-1 {
							want -= w[a]
						}
					}
					require.InDelta(t, want, ap.At(i, j, k), 1e-12, "node (%d,%d,%d)", i, j, k)
				}
			}
		}
		last := [3]int{p.Dims[0] - 1, p.Dims[1] - 1, p.Dims[2] - 1}
		assert.InDelta(t, -w[0], ap.At(0, 1, 1), 1e-12)
		assert.InDelta(t, -w[0]-w[1], ap.At(last[0], 0, 2), 1e-12)
		assert.InDelta(t, -w[0]-w[1]-w[2], ap.At(last[0], last[1], last[2]), 1e-12)
	})
}

func TestLaplacianPatchFaces(t *testing.T) {
	t.Run("interior face is left to the exchange", func(t *testing.T) {
		s := newSetup([3]int{2, 1, 1}, [3]int{4, 4, 4}, [3]int{1, 1, 1}, [3]float64{1, 1, 1})
		em := s.ems[1]
		require.False(t, em.Patch.IsMin(0))
		l := newLaplacian(em.Grid, em.Patch, 1)
		p := field.New("p", em.Grid, grid.Primal)
		p.AddConstant(1)
		ap := field.New("Ap", em.Grid, grid.Primal)
		ap.AddConstant(-7)
		l.apply(ap, p)

		assert.Equal(t, -7.0, ap.At(0, 2, 2))
		assert.InDelta(t, 0, ap.At(1, 2, 2), 1e-12)
		// Physical max face along x
		assert.InDelta(t, -1, ap.At(p.Dims[0]-1, 2, 2), 1e-12)
	})
	t.Run("relativistic scaling of x terms", func(t *testing.T) {
		s := newSetup([3]int{1, 1, 1}, [3]int{4, 4, 4}, [3]int{0, 0, 0}, [3]float64{1, 1, 1})
		em := s.ems[0]
		l := newLaplacian(em.Grid, em.Patch, 2)
		assert.Equal(t, 0.25, l.weight[0])
		assert.Equal(t, -2*(0.25+1+1), l.diag)
	})
}

func TestSolveDiscreteEigenmode(t *testing.T) {
	s := newSetup([3]int{1, 1, 1}, [3]int{7, 5, 4}, [3]int{0, 0, 0}, [3]float64{0.5, 0.4, 0.3})
	em := s.ems[0]
	dims := em.Grid.PrimalDims()
	d := em.Grid.CellLength

	mode := func(i, j, k int) float64 {
		v := 1.0
		for a, idx := range [3]int{i, j, k} {
			v *= math.Sin(math.Pi * float64(idx+1) / float64(dims[a]+1))
		}
		return v
	}
	lambda := 0.0
	for a := 0; a < 3; a++ {
		lambda -= (2 - 2*math.Cos(math.Pi/float64(dims[a]+1))) / (d[a] * d[a])
	}
	fillGlobal(em.Rho, em.Grid, func(i, j, k int) float64 { return -lambda * mode(i, j, k) })

	solver := s.solver(Options{MaxError: 1e-14, MaxIterations: 100})
	st := solver.init(s.ems, 1)
	res, err := solver.iterate(st)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, 2)

	phi := st.patches[0].phi
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				require.InDelta(t, mode(i, j, k), phi.At(i, j, k), 1e-10)
			}
		}
	}

	solver.finalize(st)
	for i := 1; i < em.Ex.Dims[0]-1; i++ {
		assert.InDelta(t, (mode(i-1, 2, 2)-mode(i, 2, 2))/d[0], em.Ex.At(i, 2, 2), 1e-8)
	}
}

// potentialError solves on a unit cube with phi = 0 one node beyond the
// outer ghosts, n cells per axis, and returns the largest deviation of phi
// from the continuum potential
func potentialError(t *testing.T, n int) float64 {
	h := 1 / float64(n+2)
	s := newSetup([3]int{1, 1, 1}, [3]int{n, n, n}, [3]int{0, 0, 0}, [3]float64{h, h, h})
	em := s.ems[0]

	modes := []struct {
		amp float64
		k   [3]float64
	}{
		{1, [3]float64{1, 1, 1}},
		{0.5, [3]float64{2, 1, 3}},
	}
	potential := func(gi, gj, gk int) (phi, rho float64) {
		for _, m := range modes {
			v, k2 := m.amp, 0.0
			for a, idx := range [3]int{gi, gj, gk} {
				v *= math.Sin(m.k[a] * math.Pi * float64(idx+1) * h)
				k2 += m.k[a] * m.k[a] * math.Pi * math.Pi
			}
			phi += v
			rho += k2 * v
		}
		return phi, rho
	}
	fillGlobal(em.Rho, em.Grid, func(i, j, k int) float64 {
		_, rho := potential(i, j, k)
		return rho
	})

	solver := s.solver(Options{MaxError: 1e-13, MaxIterations: 500})
	st := solver.init(s.ems, 1)
	_, err := solver.iterate(st)
	require.NoError(t, err)

	phi := st.patches[0].phi
	var worst float64
	for i := 0; i < phi.Dims[0]; i++ {
		for j := 0; j < phi.Dims[1]; j++ {
			for k := 0; k < phi.Dims[2]; k++ {
				want, _ := potential(em.Grid.GlobalIndex(0, i), em.Grid.GlobalIndex(1, j), em.Grid.GlobalIndex(2, k))
				worst = math.Max(worst, math.Abs(phi.At(i, j, k)-want))
			}
		}
	}
	solver.finalize(st)
	return worst
}

func TestSolveSecondOrderRefinement(t *testing.T) {
	coarse := potentialError(t, 6)
	fine := potentialError(t, 14)
	require.Greater(t, fine, 0.0)
	assert.Less(t, coarse, 0.1)
	assert.InDelta(t, 4, coarse/fine, 0.5, "coarse %g fine %g", coarse, fine)
}

func TestSolveMatchesAcrossDecompositions(t *testing.T) {
	d := [3]float64{0.5, 0.5, 0.25}
	single := newSetup([3]int{1, 1, 1}, [3]int{8, 8, 8}, [3]int{1, 1, 1}, d)
	multi := newSetup([3]int{2, 2, 1}, [3]int{4, 4, 8}, [3]int{1, 1, 1}, d)
	for _, s := range []*setup{single, multi} {
		for _, em := range s.ems {
			fillGlobal(em.Rho, em.Grid, smoothCharge)
		}
	}

	opts := Options{MaxError: 1e-13, MaxIterations: 5000, CenterE: true}
	_, err := single.solver(opts).Solve(single.ems)
	require.NoError(t, err)
	_, err = multi.solver(opts).Solve(multi.ems)
	require.NoError(t, err)

	ref := single.ems[0]
	for _, em := range multi.ems {
		for c, f := range []*field.Field{em.Ex, em.Ey, em.Ez} {
			rf := []*field.Field{ref.Ex, ref.Ey, ref.Ez}[c]
			owned := em.Boundary.OwnedRange(f.Centering)
			for i := owned.Lo[0]; i <= owned.Hi[0]; i++ {
				for j := owned.Lo[1]; j <= owned.Hi[1]; j++ {
					for k := owned.Lo[2]; k <= owned.Hi[2]; k++ {
						gi := em.Grid.GlobalIndex(0, i) - ref.Grid.CellStart[0]
						gj := em.Grid.GlobalIndex(1, j) - ref.Grid.CellStart[1]
						gk := em.Grid.GlobalIndex(2, k) - ref.Grid.CellStart[2]
						require.InDelta(t, rf.At(gi, gj, gk), f.At(i, j, k), 1e-7,
							"%s patch %d node (%d,%d,%d)", f.Name, em.Patch.ID, i, j, k)
					}
				}
			}
		}
	}
}

func TestGaussLaw(t *testing.T) {
	build := func() *setup {
		s := newSetup([3]int{1, 1, 1}, [3]int{6, 5, 4}, [3]int{1, 1, 1}, [3]float64{0.5, 0.4, 0.3})
		rng := rand.New(rand.NewSource(3))
		for i := range s.ems[0].Rho.Data() {
			s.ems[0].Rho.Data()[i] = rng.Float64() - 0.5
		}
		return s
	}
	opts := Options{MaxError: 1e-12, MaxIterations: 2000, CenterE: true}

	t.Run("x faces closed by default", func(t *testing.T) {
		s := build()
		_, err := s.solver(opts).Solve(s.ems)
		require.NoError(t, err)
		em := s.ems[0]
		p := em.Grid.PrimalDims()
		for i := 0; i < p[0]; i++ {
			for j := 1; j < p[1]-1; j++ {
				for k := 1; k < p[2]-1; k++ {
					require.InDelta(t, em.Rho.At(i, j, k), divergenceAt(em, i, j, k), 1e-8)
				}
			}
		}
	})
	t.Run("all faces closed with transverse closure", func(t *testing.T) {
		s := build()
		o := opts
		o.TransverseClosure = true
		_, err := s.solver(o).Solve(s.ems)
		require.NoError(t, err)
		em := s.ems[0]
		p := em.Grid.PrimalDims()
		for i := 0; i < p[0]; i++ {
			for j := 0; j < p[1]; j++ {
				for k := 0; k < p[2]; k++ {
					require.InDelta(t, em.Rho.At(i, j, k), divergenceAt(em, i, j, k), 1e-8,
						"node (%d,%d,%d)", i, j, k)
				}
			}
		}
	})
}

func TestCenterE(t *testing.T) {
	s := newSetup([3]int{2, 1, 1}, [3]int{4, 4, 4}, [3]int{1, 1, 1}, [3]float64{1, 1, 1})
	for _, em := range s.ems {
		fillGlobal(em.Rho, em.Grid, smoothCharge)
	}
	_, err := s.solver(Options{MaxError: 1e-12, MaxIterations: 2000, CenterE: true}).Solve(s.ems)
	require.NoError(t, err)

	var sum [3]float64
	for _, em := range s.ems {
		for c, f := range []*field.Field{em.Ex, em.Ey, em.Ez} {
			sum[c] += f.SumRange(em.Boundary.OwnedRange(f.Centering))
		}
	}
	for c := range sum {
		assert.InDelta(t, 0, sum[c], 1e-9)
	}
}

func TestSolveZeroCharge(t *testing.T) {
	s := newSetup([3]int{1, 1, 1}, [3]int{4, 4, 4}, [3]int{1, 1, 1}, [3]float64{1, 1, 1})
	res, err := s.solver(DefaultOptions()).Solve(s.ems)
	require.NoError(t, err)
	assert.Equal(t, Result{Iterations: 0, Residual: 0, Converged: true}, res)
	assert.Equal(t, 0.0, s.ems[0].Ex.MaxAbs())
}

// zeroExchanger wipes every field it is asked to exchange
type zeroExchanger struct{}

func (zeroExchanger) CopyField(fields []*field.Field) {
	for _, f := range fields {
		if f != nil {
			f.Zero()
		}
	}
}

func TestSolveVanishingDirection(t *testing.T) {
	t.Run("exact zero residual converges", func(t *testing.T) {
		s := newSetup([3]int{1, 1, 1}, [3]int{4, 4, 4}, [3]int{1, 1, 1}, [3]float64{1, 1, 1})
		res, err := s.solver(Options{MaxError: -1, MaxIterations: 10}).Solve(s.ems)
		require.NoError(t, err)
		assert.True(t, res.Converged)
		assert.Equal(t, 1, res.Iterations)
		assert.Equal(t, 0.0, res.Residual)
	})
	t.Run("non zero residual is reported", func(t *testing.T) {
		s := newSetup([3]int{1, 1, 1}, [3]int{4, 4, 4}, [3]int{1, 1, 1}, [3]float64{1, 1, 1})
		fillGlobal(s.ems[0].Rho, s.ems[0].Grid, smoothCharge)
		solver := NewSolver(comm.Serial{}, zeroExchanger{}, Options{MaxError: 1e-14, MaxIterations: 10})
		res, err := solver.Solve(s.ems)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotConverged))
		assert.Equal(t, 1, res.Iterations)
		assert.False(t, res.Converged)
		assert.Greater(t, res.Residual, 0.0)
	})
}

func TestSolveConvergenceFailure(t *testing.T) {
	s := newSetup([3]int{1, 1, 1}, [3]int{6, 6, 6}, [3]int{1, 1, 1}, [3]float64{1, 1, 1})
	fillGlobal(s.ems[0].Rho, s.ems[0].Grid, smoothCharge)

	res, err := s.solver(Options{MaxError: 1e-14, MaxIterations: 1}).Solve(s.ems)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConverged))
	var ce *ConvergenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Iterations)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.Converged)
	assert.Greater(t, res.Residual, 1e-14)
	// The best-effort potential still produces a field
	assert.Greater(t, s.ems[0].Ex.MaxAbs(), 0.0)
}

func TestSolveRequiresOversize(t *testing.T) {
	s := newSetup([3]int{2, 1, 1}, [3]int{4, 4, 4}, [3]int{0, 1, 1}, [3]float64{1, 1, 1})
	s.ems[0].Rho.Set(2, 2, 2, 1)
	assert.Panics(t, func() { _, _ = s.solver(DefaultOptions()).Solve(s.ems) })
}

func TestSolveOnLocalWorld(t *testing.T) {
	// Two ranks each holding one patch, all patches in one exchanger
	layout := partitions.NewLayout([3]int{2, 1, 1}, 2)
	nSpace, ov, d := [3]int{4, 4, 4}, [3]int{1, 1, 1}, [3]float64{1, 1, 1}
	params := electromagn.Params{NSpace: nSpace, Oversize: ov, CellLength: d, Timestep: 0.1}
	all := make([]*electromagn.ElectroMagn, layout.NumPatches())
	for id := range all {
		all[id] = electromagn.New(params, layout.Patch(id))
		fillGlobal(all[id].Rho, all[id].Grid, smoothCharge)
	}
	worlds := comm.NewLocalWorld(2)
	ex := exchange.NewLocal(exchange.NewExchanger(layout, nSpace, ov), worlds)

	results := make([]Result, 2)
	errs := make([]error, 2)
	done := make(chan struct{})
	for rank := 0; rank < 2; rank++ {
		go func(rank int) {
			defer func() { done <- struct{}{} }()
			held := make([]*electromagn.ElectroMagn, len(all))
			for _, id := range layout.RankPatches(rank) {
				held[id] = all[id]
			}
			s := &Solver{Comm: worlds[rank], Exchanger: ex[rank], Engine: HostEngine{},
				Options: Options{MaxError: 1e-12, MaxIterations: 2000}}
			results[rank], errs[rank] = s.Solve(held)
		}(rank)
	}
	<-done
	<-done
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
}

func TestHostEngineSkipsMissingPatches(t *testing.T) {
	g := grid.NewGrid([3]int{2, 2, 2}, [3]int{0, 0, 0}, [3]float64{1, 1, 1}, [3]int{})
	mk := func(v float64) []*field.Field {
		f := field.New("f", g, grid.Primal)
		f.AddConstant(v)
		return []*field.Field{nil, f}
	}
	phi, r, p, ap := mk(1), mk(2), mk(3), mk(4)
	var eng HostEngine
	require.NoError(t, eng.UpdatePhiAndR(phi, r, p, ap, 0.5))
	assert.Equal(t, 2.5, phi[1].At(1, 1, 1))
	assert.Equal(t, 0.0, r[1].At(0, 0, 0))
	require.NoError(t, eng.UpdateP(p, r, 2))
	assert.Equal(t, 6.0, p[1].At(1, 0, 1))
}
