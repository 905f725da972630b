package electromagn

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/partitions"
	"github.com/notargets/PICKernel/profile"
)

var (
	// ErrUnknownFieldName is returned for names without a known component prefix
	ErrUnknownFieldName = errors.New("unknown field name")
	// ErrAntennaField is returned for antennas driving something other than J
	ErrAntennaField = errors.New("antenna cannot be applied to field")
)

// Params is the per-simulation input shared by every patch
type Params struct {
	NSpace     [grid.NDim]int
	Oversize   [grid.NDim]int
	CellLength [grid.NDim]float64
	Timestep   float64
	Species    []string
	// Spectral solvers advance B without leapfrog, B_m then aliases B
	Spectral bool
}

// ExtField is a field component initialised from a spatial profile
type ExtField struct {
	Field   string
	Profile profile.Spatial
}

// Antenna injects current J += TimeProfile(t) * SpaceProfile(x)
type Antenna struct {
	Field        string
	SpaceProfile profile.Spatial
	TimeProfile  profile.Temporal
	current      *field.Field
}

// Current returns the precomputed spatial current of the antenna
func (a *Antenna) Current() *field.Field {
	return a.current
}

// ElectroMagn owns every field array of one patch
type ElectroMagn struct {
	Params   Params
	Grid     *grid.Grid
	Patch    partitions.Patch
	Boundary partitions.Boundary

	Ex, Ey, Ez    *field.Field
	Bx, By, Bz    *field.Field
	BxM, ByM, BzM *field.Field // B at the previous half step
	Jx, Jy, Jz    *field.Field
	Rho           *field.Field

	// Per-species densities, nil where the species holds no data
	JxS, JyS, JzS, RhoS []*field.Field

	// Energy flux through the physical faces, [side][axis]
	Poynting     [2][grid.NDim]float64
	PoyntingInst [2][grid.NDim]float64

	ExtFields []ExtField
	Antennas  []Antenna
}

// New allocates all fields of a patch with their Yee centering
func New(params Params, patch partitions.Patch) *ElectroMagn {
	em := newEmpty(params, patch)
	nSpecies := len(params.Species)
	em.JxS = make([]*field.Field, nSpecies)
	em.JyS = make([]*field.Field, nSpecies)
	em.JzS = make([]*field.Field, nSpecies)
	em.RhoS = make([]*field.Field, nSpecies)
	for ispec := 0; ispec < nSpecies; ispec++ {
		em.AllocateSpecies(ispec)
	}
	return em
}

// NewFrom builds the field set of a patch after the decomposition changed.
// Per-species arrays are allocated only where old had them; values are not
// carried over.
func NewFrom(old *ElectroMagn, patch partitions.Patch) *ElectroMagn {
	em := newEmpty(old.Params, patch)
	nSpecies := len(old.Params.Species)
	em.JxS = make([]*field.Field, nSpecies)
	em.JyS = make([]*field.Field, nSpecies)
	em.JzS = make([]*field.Field, nSpecies)
	em.RhoS = make([]*field.Field, nSpecies)
	for ispec := 0; ispec < nSpecies; ispec++ {
		if old.JxS[ispec] != nil {
			em.JxS[ispec] = field.New(old.JxS[ispec].Name, em.Grid, old.JxS[ispec].Centering)
		}
		if old.JyS[ispec] != nil {
			em.JyS[ispec] = field.New(old.JyS[ispec].Name, em.Grid, old.JyS[ispec].Centering)
		}
		if old.JzS[ispec] != nil {
			em.JzS[ispec] = field.New(old.JzS[ispec].Name, em.Grid, old.JzS[ispec].Centering)
		}
		if old.RhoS[ispec] != nil {
			em.RhoS[ispec] = field.New(old.RhoS[ispec].Name, em.Grid, old.RhoS[ispec].Centering)
		}
	}
	em.ExtFields = append(em.ExtFields, old.ExtFields...)
	for _, a := range old.Antennas {
		em.Antennas = append(em.Antennas, Antenna{Field: a.Field, SpaceProfile: a.SpaceProfile, TimeProfile: a.TimeProfile})
	}
	return em
}

func newEmpty(params Params, patch partitions.Patch) *ElectroMagn {
	g := grid.NewGrid(params.NSpace, params.Oversize, params.CellLength, patch.Coordinates)
	em := &ElectroMagn{
		Params:   params,
		Grid:     g,
		Patch:    patch,
		Boundary: partitions.NewBoundary(params.NSpace, params.Oversize, patch),
	}
	em.Ex = em.mustCreate("Ex")
	em.Ey = em.mustCreate("Ey")
	em.Ez = em.mustCreate("Ez")
	em.Bx = em.mustCreate("Bx")
	em.By = em.mustCreate("By")
	em.Bz = em.mustCreate("Bz")
	em.BxM = em.mustCreate("Bx_m")
	em.ByM = em.mustCreate("By_m")
	em.BzM = em.mustCreate("Bz_m")
	em.Jx = em.mustCreate("Jx")
	em.Jy = em.mustCreate("Jy")
	em.Jz = em.mustCreate("Jz")
	em.Rho = em.mustCreate("Rho")

	log.WithFields(log.Fields{
		"patch": patch.ID,
		"coord": patch.Coordinates,
		"dims":  g.PrimalDims(),
	}).Debug("allocated electromagnetic fields")
	return em
}

func (em *ElectroMagn) mustCreate(name string) *field.Field {
	f, err := em.CreateField(name)
	if err != nil {
		panic(err)
	}
	return f
}

// CenteringOf resolves the Yee centering of a field from its name prefix
func CenteringOf(name string) (grid.Centering, error) {
	switch {
	case strings.HasPrefix(name, "Rho"):
		return grid.CenterRho, nil
	case strings.HasPrefix(name, "Ex"), strings.HasPrefix(name, "Jx"):
		return grid.CenterEx, nil
	case strings.HasPrefix(name, "Ey"), strings.HasPrefix(name, "Jy"):
		return grid.CenterEy, nil
	case strings.HasPrefix(name, "Ez"), strings.HasPrefix(name, "Jz"):
		return grid.CenterEz, nil
	case strings.HasPrefix(name, "Bx"):
		return grid.CenterBx, nil
	case strings.HasPrefix(name, "By"):
		return grid.CenterBy, nil
	case strings.HasPrefix(name, "Bz"):
		return grid.CenterBz, nil
	}
	return grid.Centering{}, fmt.Errorf("%w: %q", ErrUnknownFieldName, name)
}

// CreateField allocates a zeroed field whose centering follows its name
func (em *ElectroMagn) CreateField(name string) (*field.Field, error) {
	c, err := CenteringOf(name)
	if err != nil {
		return nil, err
	}
	return field.New(name, em.Grid, c), nil
}

// AllocateSpecies creates the density arrays of one species
func (em *ElectroMagn) AllocateSpecies(ispec int) {
	name := em.Params.Species[ispec]
	em.JxS[ispec] = em.mustCreate("Jx_" + name)
	em.JyS[ispec] = em.mustCreate("Jy_" + name)
	em.JzS[ispec] = em.mustCreate("Jz_" + name)
	em.RhoS[ispec] = em.mustCreate("Rho_" + name)
}

// ReleaseSpecies drops the density arrays of one species
func (em *ElectroMagn) ReleaseSpecies(ispec int) {
	em.JxS[ispec], em.JyS[ispec], em.JzS[ispec], em.RhoS[ispec] = nil, nil, nil, nil
}

// FieldByName returns the named field owned by the set
func (em *ElectroMagn) FieldByName(name string) (*field.Field, error) {
	for _, f := range em.AllFields() {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFieldName, name)
}

// FieldNames lists the names FieldByName resolves on a set created from
// params
func FieldNames(params Params) []string {
	names := []string{"Ex", "Ey", "Ez", "Bx", "By", "Bz", "Bx_m", "By_m", "Bz_m", "Jx", "Jy", "Jz", "Rho"}
	for _, sp := range params.Species {
		names = append(names, "Jx_"+sp, "Jy_"+sp, "Jz_"+sp, "Rho_"+sp)
	}
	return names
}

// AllFields lists the global fields followed by the allocated per-species ones
func (em *ElectroMagn) AllFields() []*field.Field {
	fs := []*field.Field{em.Ex, em.Ey, em.Ez, em.Bx, em.By, em.Bz}
	if em.BxM != em.Bx {
		fs = append(fs, em.BxM, em.ByM, em.BzM)
	}
	fs = append(fs, em.Jx, em.Jy, em.Jz, em.Rho)
	for ispec := range em.RhoS {
		for _, f := range []*field.Field{em.JxS[ispec], em.JyS[ispec], em.JzS[ispec], em.RhoS[ispec]} {
			if f != nil {
				fs = append(fs, f)
			}
		}
	}
	return fs
}

// RestartRhoJ zeroes the total charge and current
func (em *ElectroMagn) RestartRhoJ() {
	em.Jx.Zero()
	em.Jy.Zero()
	em.Jz.Zero()
	em.Rho.Zero()
}

// RestartRhoJs zeroes the arrays of one species, currents optional
func (em *ElectroMagn) RestartRhoJs(ispec int, currents bool) {
	if em.RhoS[ispec] != nil {
		em.RhoS[ispec].Zero()
	}
	if !currents {
		return
	}
	for _, f := range []*field.Field{em.JxS[ispec], em.JyS[ispec], em.JzS[ispec]} {
		if f != nil {
			f.Zero()
		}
	}
}

// ComputeTotalRhoJ adds every allocated species array into the totals. The
// totals are not cleared first.
func (em *ElectroMagn) ComputeTotalRhoJ() {
	for ispec := range em.RhoS {
		if em.JxS[ispec] != nil {
			em.Jx.AddField(em.JxS[ispec])
		}
		if em.JyS[ispec] != nil {
			em.Jy.AddField(em.JyS[ispec])
		}
		if em.JzS[ispec] != nil {
			em.Jz.AddField(em.JzS[ispec])
		}
		if em.RhoS[ispec] != nil {
			em.Rho.AddField(em.RhoS[ispec])
		}
	}
}

// SaveMagneticFields stores B into B_m. In spectral mode B_m is B.
func (em *ElectroMagn) SaveMagneticFields() {
	if em.Params.Spectral {
		em.BxM, em.ByM, em.BzM = em.Bx, em.By, em.Bz
		return
	}
	em.BxM.CopyFrom(em.Bx)
	em.ByM.CopyFrom(em.By)
	em.BzM.CopyFrom(em.Bz)
}

// CenterMagneticFields replaces B_m by the time-centred (B + B_m)/2
func (em *ElectroMagn) CenterMagneticFields() {
	for _, p := range [][2]*field.Field{{em.BxM, em.Bx}, {em.ByM, em.By}, {em.BzM, em.Bz}} {
		m, b := p[0].Data(), p[1].Data()
		for i := range m {
			m[i] = 0.5 * (m[i] + b[i])
		}
	}
}

// IsRhoNull reports whether the owned part of the total charge vanishes
func (em *ElectroMagn) IsRhoNull() bool {
	return em.Rho.Norm2Range(em.Boundary.OwnedRange(em.Rho.Centering)) == 0
}
