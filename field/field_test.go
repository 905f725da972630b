package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/PICKernel/grid"
)

func TestFieldShapeFollowsCentering(t *testing.T) {
	g := grid.NewGrid([3]int{4, 3, 2}, [3]int{1, 0, 2}, [3]float64{1, 1, 1}, [3]int{})
	testCases := []struct {
		name string
		c    grid.Centering
	}{
		{"Ex", grid.CenterEx}, {"Ey", grid.CenterEy}, {"Ez", grid.CenterEz},
		{"Bx", grid.CenterBx}, {"By", grid.CenterBy}, {"Bz", grid.CenterBz},
		{"Rho", grid.CenterRho},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := New(tc.name, g, tc.c)
			for a := 0; a < grid.NDim; a++ {
				assert.Equal(t, g.Dimension(a, tc.c.IsDual(a)), f.Dims[a])
			}
			assert.Equal(t, f.Dims[0]*f.Dims[1]*f.Dims[2], len(f.Data()))
		})
	}
}

func TestFieldIndexing(t *testing.T) {
	f := NewWithDims("a", [3]int{3, 4, 5}, grid.Primal)
	f.Set(2, 3, 4, 7)
	assert.Equal(t, 7.0, f.Data()[len(f.Data())-1])
	assert.Equal(t, 7.0, f.Array().Get(2, 3, 4))
	f.Add(0, 1, 2, 1.5)
	assert.Equal(t, 1.5, f.Data()[1*5+2])
}

func TestFieldArithmetic(t *testing.T) {
	a := NewWithDims("a", [3]int{2, 2, 2}, grid.Primal)
	b := NewWithDims("b", [3]int{2, 2, 2}, grid.Primal)
	for i := range a.Data() {
		a.Data()[i] = float64(i)
		b.Data()[i] = 1
	}

	t.Run("add", func(t *testing.T) {
		c := a.Clone("c")
		c.AddField(b)
		for i, v := range c.Data() {
			assert.Equal(t, float64(i)+1, v)
		}
		// Clone must not alias
		assert.Equal(t, 0.0, a.Data()[0])
	})

	t.Run("copy", func(t *testing.T) {
		c := NewWithDims("c", [3]int{2, 2, 2}, grid.Primal)
		c.CopyFrom(a)
		assert.Equal(t, a.Data(), c.Data())
	})

	t.Run("ranges", func(t *testing.T) {
		r := a.Full()
		assert.Equal(t, 8, r.Count())
		assert.Equal(t, 28.0, a.SumRange(r))
		assert.Equal(t, 28.0, a.DotRange(b, r))
		sub := Range{Lo: [3]int{1, 0, 0}, Hi: [3]int{1, 1, 1}}
		assert.Equal(t, 4+5+6+7.0, a.SumRange(sub))
		assert.Equal(t, 16+25+36+49.0, a.Norm2Range(sub))
		assert.True(t, Range{Lo: [3]int{1, 0, 0}, Hi: [3]int{0, 1, 1}}.Empty())
	})

	t.Run("shape mismatch panics", func(t *testing.T) {
		c := NewWithDims("c", [3]int{2, 2, 3}, grid.Primal)
		require.Panics(t, func() { c.AddField(a) })
		d := NewWithDims("d", [3]int{2, 2, 2}, grid.CenterEx)
		require.Panics(t, func() { d.CopyFrom(a) })
	})

	t.Run("scale", func(t *testing.T) {
		c := a.Clone("c")
		c.Scale(-2)
		assert.Equal(t, 14.0, c.MaxAbs())
		c.AddConstant(14)
		assert.Equal(t, 0.0, c.Data()[7])
	})
}
