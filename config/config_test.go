package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/PICKernel/comm"
	"github.com/notargets/PICKernel/exchange"
)

const namelist = `
timestep = 0.1
n_time = 20
threads = 2
current_filter_passes = 1

[grid]
n_space = [8, 8, 8]
cell_length = [0.25, 0.25, 0.25]
oversize = [1, 1, 1]
number_of_patches = [2, 1, 1]

[poisson]
max_error = 1e-12
fail_on_divergence = true

[[species]]
name = "electron"
charge = -1
density = "1 + 0.1*sin(2*pi*x)"
particles_per_cell = [2, 2, 1]
tracked = true

[[species]]
name = "ion"
charge = 1
density = "1"

[[external_field]]
field = "Bz"
profile = "0.5"

[[antenna]]
field = "Jy"
space_profile = "gauss(x, 1, 0.3)"
time_profile = "sin(t)"

[output]
plot = "energy.png"
every = 5
`

func TestParseDefaults(t *testing.T) {
	c, err := Parse(namelist)
	require.NoError(t, err)

	assert.Equal(t, [3]int{8, 8, 8}, c.Grid.NSpace)
	assert.Equal(t, 1e-12, c.Poisson.MaxError)
	assert.Equal(t, 50000, c.Poisson.MaxIterations)
	assert.True(t, c.Poisson.CenterE)
	assert.True(t, c.Poisson.FailOnDivergence)
	assert.Equal(t, 1, c.Ranks)
	assert.Equal(t, [3]int{1, 1, 1}, c.Species[1].ParticlesPerCell)
	assert.Equal(t, 1.0, c.Species[1].MeanGamma)
	assert.Equal(t, 5, c.Output.Every)

	params := c.Params()
	assert.Equal(t, []string{"electron", "ion"}, params.Species)
	assert.Equal(t, 0.1, params.Timestep)

	minimal, err := Parse(`
timestep = 0.1
[grid]
n_space = [4, 4, 4]
cell_length = [1.0, 1.0, 1.0]
`)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, minimal.Grid.Oversize)
	assert.Equal(t, [3]int{1, 1, 1}, minimal.Grid.NumberOfPatches)
	assert.False(t, minimal.Poisson.TransverseClosure)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		edit   func(c *Config)
		reason string
	}{
		{"CFL", func(c *Config) { c.Timestep = 0.2 }, "CFL"},
		{"ThinPatches", func(c *Config) { c.Grid.NSpace[0] = 3 }, "too small"},
		{"NoOversize", func(c *Config) { c.Grid.Oversize[0] = 0 }, "at least 1"},
		{"DuplicateSpecies", func(c *Config) { c.Species[1].Name = "electron" }, "twice"},
		{"BadDensity", func(c *Config) { c.Species[0].Density = "1 + q" }, "density"},
		{"SlowBeam", func(c *Config) { c.Species[0].MeanGamma = 0.5 }, "mean_gamma"},
		{"UnknownField", func(c *Config) { c.ExternalFields[0].Field = "Potential" }, "unknown field name"},
		{"FieldPrefixOnly", func(c *Config) { c.ExternalFields[0].Field = "Bz_foo" }, "unknown field name"},
		{"AntennaOnE", func(c *Config) { c.Antennas[0].Field = "Ex" }, "antenna"},
		{"TooManyRanks", func(c *Config) { c.Ranks = 3 }, "ranks"},
		{"Charge", func(c *Config) { c.Species[0].Charge = 1 << 20 }, "charge"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse(namelist)
			require.NoError(t, err)
			tc.edit(c)
			err = c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tc.reason)
		})
	}

	t.Run("ReportsAll", func(t *testing.T) {
		c, err := Parse(namelist)
		require.NoError(t, err)
		c.Timestep = -1
		c.NTime = -1
		err = c.Validate()
		assert.Len(t, strings.Split(err.Error(), "\n"), 2)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(namelist), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Species, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Parse("timestep = [")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	c, err := Parse(namelist)
	require.NoError(t, err)
	layout := c.Layout()
	ex := exchange.NewExchanger(layout, c.Grid.NSpace, c.Grid.Oversize)
	vp, err := c.Build(layout, comm.Serial{}, ex)
	require.NoError(t, err)

	assert.Equal(t, 2, vp.Workers)
	assert.True(t, vp.FailOnDivergence)
	assert.Equal(t, 1, vp.FilterPasses)
	require.Len(t, vp.Species, 2)
	assert.Equal(t, int16(-1), vp.Species[0].Charge)
	assert.Equal(t, 2*2*8*8*8, vp.Species[0].Particles[0].Size())
	assert.NotNil(t, vp.Species[0].Particles[1].ID())
	assert.Nil(t, vp.Species[1].Particles[0].ID())

	for _, id := range vp.Held() {
		em := vp.Patches[id]
		require.Len(t, em.ExtFields, 1)
		require.Len(t, em.Antennas, 1)
	}

	require.NoError(t, vp.Initialize())
	assert.InDelta(t, 0.5, vp.Patches[0].Bz.At(3, 3, 3), 1e-15)
}
