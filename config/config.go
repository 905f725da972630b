// Package config reads the TOML namelist of a run, fills the defaults,
// validates it and builds the simulation objects it describes.
package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/electromagn"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/poisson"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

type Grid struct {
	NSpace          [grid.NDim]int     `toml:"n_space"`
	CellLength      [grid.NDim]float64 `toml:"cell_length"`
	Oversize        [grid.NDim]int     `toml:"oversize"`
	NumberOfPatches [grid.NDim]int     `toml:"number_of_patches"`
}

type Species struct {
	Name             string         `toml:"name"`
	Charge           int            `toml:"charge"`
	Density          string         `toml:"density"`
	ParticlesPerCell [grid.NDim]int `toml:"particles_per_cell"`
	MeanGamma        float64        `toml:"mean_gamma"`
	RelativisticInit bool           `toml:"relativistic_field_initialization"`
	Tracked          bool           `toml:"tracked"`
}

type Poisson struct {
	MaxError          float64 `toml:"max_error"`
	MaxIterations     int     `toml:"max_iterations"`
	FailOnDivergence  bool    `toml:"fail_on_divergence"`
	TransverseClosure bool    `toml:"transverse_closure"`
	CenterE           bool    `toml:"center_e"`
}

type ExternalField struct {
	Field   string `toml:"field"`
	Profile string `toml:"profile"`
}

type Antenna struct {
	Field        string `toml:"field"`
	SpaceProfile string `toml:"space_profile"`
	TimeProfile  string `toml:"time_profile"`
}

type Output struct {
	// Snapshot is the directory receiving one field dump per patch
	Snapshot string `toml:"snapshot"`
	Plot     string `toml:"plot"`
	Table    string `toml:"table"`
	// Every is the step interval of the energy records
	Every int `toml:"every"`
}

// Config is the whole namelist
type Config struct {
	Grid     Grid    `toml:"grid"`
	Timestep float64 `toml:"timestep"`
	NTime    int     `toml:"n_time"`
	// Threads bounds the goroutines working on patches of one rank
	Threads int `toml:"threads"`
	// Ranks is the number of goroutine ranks sharing the patches
	Ranks               int  `toml:"ranks"`
	Spectral            bool `toml:"spectral"`
	CurrentFilterPasses int  `toml:"current_filter_passes"`

	Species        []Species       `toml:"species"`
	Poisson        Poisson         `toml:"poisson"`
	ExternalFields []ExternalField `toml:"external_field"`
	Antennas       []Antenna       `toml:"antenna"`
	Output         Output          `toml:"output"`
}

// Load decodes, completes and validates the namelist at path
func Load(path string) (*Config, error) {
	var c Config
	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return finish(&c, meta)
}

// Parse is Load for a namelist held in memory
func Parse(data string) (*Config, error) {
	var c Config
	meta, err := toml.Decode(data, &c)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return finish(&c, meta)
}

func finish(c *Config, meta toml.MetaData) (*Config, error) {
	for _, key := range meta.Undecoded() {
		log.WithField("key", key.String()).Warn("ignoring unknown configuration key")
	}
	c.setDefaults(meta)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults(meta toml.MetaData) {
	for a := 0; a < grid.NDim; a++ {
		if !meta.IsDefined("grid", "oversize") {
			c.Grid.Oversize[a] = 2
		}
		if c.Grid.NumberOfPatches[a] == 0 {
			c.Grid.NumberOfPatches[a] = 1
		}
	}
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.Ranks <= 0 {
		c.Ranks = 1
	}

	def := poisson.DefaultOptions()
	if !meta.IsDefined("poisson", "max_error") {
		c.Poisson.MaxError = def.MaxError
	}
	if !meta.IsDefined("poisson", "max_iterations") {
		c.Poisson.MaxIterations = def.MaxIterations
	}
	if !meta.IsDefined("poisson", "center_e") {
		c.Poisson.CenterE = def.CenterE
	}

	for i := range c.Species {
		s := &c.Species[i]
		for a := 0; a < grid.NDim; a++ {
			if s.ParticlesPerCell[a] == 0 {
				s.ParticlesPerCell[a] = 1
			}
		}
		if s.MeanGamma == 0 {
			s.MeanGamma = 1
		}
	}
	if c.Output.Every <= 0 {
		c.Output.Every = 1
	}
}

// Validate reports every inconsistency of the namelist at once
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	g := c.Grid
	invDx2 := 0.0
	nPatches := 1
	for a := 0; a < grid.NDim; a++ {
		axis := grid.AxisNames[a]
		if g.NSpace[a] <= 0 {
			bad("grid.n_space along %s must be positive, got %d", axis, g.NSpace[a])
		}
		if g.CellLength[a] <= 0 {
			bad("grid.cell_length along %s must be positive, got %g", axis, g.CellLength[a])
		} else {
			invDx2 += 1 / (g.CellLength[a] * g.CellLength[a])
		}
		if g.Oversize[a] < 0 {
			bad("grid.oversize along %s is negative", axis)
		}
		if g.NumberOfPatches[a] < 1 {
			bad("grid.number_of_patches along %s must be positive, got %d", axis, g.NumberOfPatches[a])
			continue
		}
		nPatches *= g.NumberOfPatches[a]
		if g.NumberOfPatches[a] > 1 {
			if g.Oversize[a] < 1 {
				bad("grid.oversize along %s must be at least 1 with %d patches", axis, g.NumberOfPatches[a])
			}
			if g.NSpace[a] < 2*g.Oversize[a]+2 {
				bad("grid.n_space=%d along %s too small for oversize %d", g.NSpace[a], axis, g.Oversize[a])
			}
		}
	}

	if c.Timestep <= 0 {
		bad("timestep must be positive, got %g", c.Timestep)
	} else if invDx2 > 0 && c.Timestep >= 1/math.Sqrt(invDx2) {
		bad("timestep %g violates the CFL limit %g", c.Timestep, 1/math.Sqrt(invDx2))
	}
	if c.NTime < 0 {
		bad("n_time is negative")
	}
	if c.Ranks > nPatches {
		bad("%d ranks for %d patches", c.Ranks, nPatches)
	}
	if c.CurrentFilterPasses < 0 {
		bad("current_filter_passes is negative")
	}

	if c.Poisson.MaxError <= 0 {
		bad("poisson.max_error must be positive")
	}
	if c.Poisson.MaxIterations <= 0 {
		bad("poisson.max_iterations must be positive")
	}

	seen := make(map[string]bool)
	for i, s := range c.Species {
		if s.Name == "" {
			bad("species %d has no name", i)
		} else if seen[s.Name] {
			bad("species %q declared twice", s.Name)
		}
		seen[s.Name] = true
		if s.Charge < math.MinInt16 || s.Charge > math.MaxInt16 {
			bad("species %q: charge %d out of range", s.Name, s.Charge)
		}
		if _, err := parseSpatial(s.Density); err != nil {
			bad("species %q density: %v", s.Name, err)
		}
		for a := 0; a < grid.NDim; a++ {
			if s.ParticlesPerCell[a] < 1 {
				bad("species %q: particles_per_cell along %s must be positive", s.Name, grid.AxisNames[a])
			}
		}
		if s.MeanGamma < 1 {
			bad("species %q: mean_gamma %g below 1", s.Name, s.MeanGamma)
		}
	}

	fieldNames := electromagn.FieldNames(c.Params())
	for _, ext := range c.ExternalFields {
		if !slices.Contains(fieldNames, ext.Field) {
			bad("external_field: %v %q", electromagn.ErrUnknownFieldName, ext.Field)
		}
		if _, err := parseSpatial(ext.Profile); err != nil {
			bad("external_field %s: %v", ext.Field, err)
		}
	}
	for _, ant := range c.Antennas {
		switch ant.Field {
		case "Jx", "Jy", "Jz":
		default:
			bad("antenna: %v %q", electromagn.ErrAntennaField, ant.Field)
		}
		if _, err := parseSpatial(ant.SpaceProfile); err != nil {
			bad("antenna %s space_profile: %v", ant.Field, err)
		}
		if _, err := parseTemporal(ant.TimeProfile); err != nil {
			bad("antenna %s time_profile: %v", ant.Field, err)
		}
	}
	return errors.Join(errs...)
}
