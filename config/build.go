package config

import (
	"errors"
	"fmt"

	"github.com/notargets/PICKernel/comm"
	"github.com/notargets/PICKernel/electromagn"
	"github.com/notargets/PICKernel/particles"
	"github.com/notargets/PICKernel/partitions"
	"github.com/notargets/PICKernel/poisson"
	"github.com/notargets/PICKernel/profile"
	"github.com/notargets/PICKernel/vectorpatch"
)

var errEmptyProfile = errors.New("empty profile")

func parseSpatial(src string) (profile.Spatial, error) {
	if src == "" {
		return nil, errEmptyProfile
	}
	return profile.NewExpression(src)
}

// parseTemporal defaults an empty profile to a constant 1
func parseTemporal(src string) (profile.Temporal, error) {
	if src == "" {
		return profile.Constant(1), nil
	}
	return profile.NewExpression(src)
}

// Params is the per-patch input of the field sets
func (c *Config) Params() electromagn.Params {
	names := make([]string, len(c.Species))
	for i, s := range c.Species {
		names[i] = s.Name
	}
	return electromagn.Params{
		NSpace:     c.Grid.NSpace,
		Oversize:   c.Grid.Oversize,
		CellLength: c.Grid.CellLength,
		Timestep:   c.Timestep,
		Species:    names,
		Spectral:   c.Spectral,
	}
}

// PoissonOptions are the solver settings of the namelist
func (c *Config) PoissonOptions() poisson.Options {
	return poisson.Options{
		MaxError:          c.Poisson.MaxError,
		MaxIterations:     c.Poisson.MaxIterations,
		CenterE:           c.Poisson.CenterE,
		TransverseClosure: c.Poisson.TransverseClosure,
	}
}

// Layout is the patch decomposition over Ranks ranks
func (c *Config) Layout() *partitions.Layout {
	return partitions.NewLayout(c.Grid.NumberOfPatches, c.Ranks)
}

// Build creates the patches of one rank with their external fields,
// antennas and species
func (c *Config) Build(layout *partitions.Layout, cm comm.Communicator, ex vectorpatch.Exchanger) (*vectorpatch.VectorPatch, error) {
	vp := vectorpatch.New(layout, c.Params(), cm, ex, c.PoissonOptions())
	vp.Workers = c.Threads
	vp.FailOnDivergence = c.Poisson.FailOnDivergence
	vp.FilterPasses = c.CurrentFilterPasses

	var exts []electromagn.ExtField
	for _, e := range c.ExternalFields {
		p, err := parseSpatial(e.Profile)
		if err != nil {
			return nil, fmt.Errorf("external field %s: %w", e.Field, err)
		}
		exts = append(exts, electromagn.ExtField{Field: e.Field, Profile: p})
	}
	var antennas []electromagn.Antenna
	for _, a := range c.Antennas {
		sp, err := parseSpatial(a.SpaceProfile)
		if err != nil {
			return nil, fmt.Errorf("antenna %s: %w", a.Field, err)
		}
		tp, err := parseTemporal(a.TimeProfile)
		if err != nil {
			return nil, fmt.Errorf("antenna %s: %w", a.Field, err)
		}
		antennas = append(antennas, electromagn.Antenna{Field: a.Field, SpaceProfile: sp, TimeProfile: tp})
	}
	for _, id := range vp.Held() {
		em := vp.Patches[id]
		em.ExtFields = append([]electromagn.ExtField(nil), exts...)
		em.Antennas = append([]electromagn.Antenna(nil), antennas...)
	}

	for _, s := range c.Species {
		density, err := parseSpatial(s.Density)
		if err != nil {
			return nil, fmt.Errorf("species %s: %w", s.Name, err)
		}
		err = vp.AddSpecies(&vectorpatch.Species{
			Name:             s.Name,
			Charge:           int16(s.Charge),
			Density:          density,
			PerCell:          s.ParticlesPerCell,
			MeanGamma:        s.MeanGamma,
			RelativisticInit: s.RelativisticInit,
		}, particles.Capabilities{Tracked: s.Tracked})
		if err != nil {
			return nil, err
		}
	}
	return vp, nil
}
