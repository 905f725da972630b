package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGridDimensions(t *testing.T) {
	testCases := []struct {
		name     string
		nSpace   [NDim]int
		oversize [NDim]int
	}{
		{"no ghosts", [NDim]int{4, 5, 6}, [NDim]int{0, 0, 0}},
		{"uniform ghosts", [NDim]int{8, 8, 8}, [NDim]int{2, 2, 2}},
		{"mixed ghosts", [NDim]int{3, 10, 1}, [NDim]int{1, 0, 3}},
	}

	centerings := []Centering{CenterEx, CenterEy, CenterEz, CenterBx, CenterBy, CenterBz, CenterRho}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGrid(tc.nSpace, tc.oversize, [NDim]float64{1, 1, 1}, [NDim]int{})
			for a := 0; a < NDim; a++ {
				assert.Equal(t, g.Dimension(a, false)+1, g.Dimension(a, true),
					"dual extent must exceed primal by one along %s", AxisNames[a])
				assert.Equal(t, tc.nSpace[a]+1+2*tc.oversize[a], g.Dimension(a, false))
			}
			for _, c := range centerings {
				dims := g.FieldDims(c)
				for a := 0; a < NDim; a++ {
					if c.IsDual(a) {
						assert.Equal(t, g.DualDims()[a], dims[a], "centering %s axis %s", c, AxisNames[a])
					} else {
						assert.Equal(t, g.PrimalDims()[a], dims[a], "centering %s axis %s", c, AxisNames[a])
					}
				}
			}
		})
	}
}

func TestGridPosition(t *testing.T) {
	g := NewGrid([NDim]int{4, 4, 4}, [NDim]int{2, 2, 2}, [NDim]float64{0.5, 1, 2}, [NDim]int{1, 0, 0})

	// Patch 1 along x starts at global cell 4, two ghosts before it
	assert.Equal(t, 2, g.CellStart[X])
	assert.Equal(t, -2, g.CellStart[Y])

	t.Run("primal", func(t *testing.T) {
		assert.InDelta(t, 2*0.5, g.Position(X, 0, false), 1e-15)
		assert.InDelta(t, 4*0.5, g.Position(X, 2, false), 1e-15)
		assert.InDelta(t, -2.0, g.Position(Y, 0, false), 1e-15)
	})
	t.Run("dual", func(t *testing.T) {
		assert.InDelta(t, 3.5*0.5, g.Position(X, 2, true), 1e-15)
		assert.InDelta(t, -2.5*2, g.Position(Z, 0, true), 1e-15)
	})
}

func TestCenteringString(t *testing.T) {
	assert.Equal(t, "(d,p,p)", CenterEx.String())
	assert.Equal(t, "(p,d,d)", CenterBx.String())
	assert.Equal(t, 1, CenterBz.Offset(Y))
	assert.Equal(t, 0, CenterBz.Offset(Z))
}
