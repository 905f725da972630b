package particles

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotTracked is returned by operations that need particle ids
var ErrNotTracked = errors.New("particles are not tracked")

// Capabilities selects the optional columns, fixed at construction
type Capabilities struct {
	Tracked bool // uint64 Id column
	// RadReaction adds the quantum parameter Chi
	RadReaction bool
	// DiscRadReaction adds the optical depth Tau of the Monte-Carlo emission
	DiscRadReaction bool
}

// Particles stores macro-particles as equal-length columns. Moving a
// particle moves the same row of every registered column.
type Particles struct {
	NDim int
	Caps Capabilities

	position []*Column[float64]
	momentum [3]*Column[float64]
	weight   *Column[float64]
	charge   *Column[int16]
	id       *Column[uint64]
	chi      *Column[float64]
	tau      *Column[float64]

	columns []column
}

// New creates an empty set with nDim position components
func New(nDim int, caps Capabilities) *Particles {
	if nDim < 1 || nDim > 3 {
		panic(fmt.Sprintf("particles: nDim %d outside [1,3]", nDim))
	}
	p := &Particles{NDim: nDim, Caps: caps}
	for d := 0; d < nDim; d++ {
		c := newColumn[float64](fmt.Sprintf("Position%d", d))
		p.position = append(p.position, c)
		p.columns = append(p.columns, c)
	}
	for d := 0; d < 3; d++ {
		p.momentum[d] = newColumn[float64](fmt.Sprintf("Momentum%d", d))
		p.columns = append(p.columns, p.momentum[d])
	}
	p.weight = newColumn[float64]("Weight")
	p.charge = newColumn[int16]("Charge")
	p.columns = append(p.columns, p.weight, p.charge)
	if caps.Tracked {
		p.id = newColumn[uint64]("Id")
		p.columns = append(p.columns, p.id)
	}
	if caps.RadReaction {
		p.chi = newColumn[float64]("Chi")
		p.columns = append(p.columns, p.chi)
	}
	if caps.DiscRadReaction {
		p.tau = newColumn[float64]("Tau")
		p.columns = append(p.columns, p.tau)
	}
	return p
}

// NewLike creates n zeroed particles with the layout of other
func NewLike(other *Particles, n int) *Particles {
	p := New(other.NDim, other.Caps)
	p.Initialize(n)
	return p
}

// Initialize sets the number of particles to n, new rows zeroed
func (p *Particles) Initialize(n int) {
	p.Resize(n)
}

// Resize truncates or extends every column to n rows
func (p *Particles) Resize(n int) {
	for _, c := range p.columns {
		c.resize(n)
	}
}

// ShrinkToFit drops spare capacity
func (p *Particles) ShrinkToFit() {
	for _, c := range p.columns {
		c.clip()
	}
}

// Size is the number of particles
func (p *Particles) Size() int {
	return p.weight.Len()
}

// Clear removes every particle
func (p *Particles) Clear() {
	for _, c := range p.columns {
		c.clear()
	}
}

// ColumnNames lists the registered columns in storage order
func (p *Particles) ColumnNames() []string {
	names := make([]string, len(p.columns))
	for i, c := range p.columns {
		names[i] = c.Name()
	}
	return names
}

func (p *Particles) mustMatch(dest *Particles) {
	if p.NDim != dest.NDim || p.Caps != dest.Caps {
		panic(fmt.Sprintf("particles: layout mismatch %d%+v vs %d%+v", p.NDim, p.Caps, dest.NDim, dest.Caps))
	}
}

// CopyParticle appends particle i to dest
func (p *Particles) CopyParticle(i int, dest *Particles) {
	p.mustMatch(dest)
	for n, c := range dest.columns {
		c.appendFrom(p.columns[n], i)
	}
}

// InsertParticles inserts n particles starting at i into dest before row at
func (p *Particles) InsertParticles(i, n int, dest *Particles, at int) {
	p.mustMatch(dest)
	for k, c := range dest.columns {
		c.insertFrom(p.columns[k], i, n, at)
	}
}

// EraseParticle removes particle i
func (p *Particles) EraseParticle(i int) {
	p.EraseParticles(i, 1)
}

// EraseParticles removes n particles starting at i
func (p *Particles) EraseParticles(i, n int) {
	for _, c := range p.columns {
		c.erase(i, n)
	}
}

// EraseParticleTrail removes every particle from i to the end
func (p *Particles) EraseParticleTrail(i int) {
	p.EraseParticles(i, p.Size()-i)
}

// SwapParticles exchanges rows i and j
func (p *Particles) SwapParticles(i, j int) {
	for _, c := range p.columns {
		c.swap(i, j)
	}
}

// SwapParticleRanges exchanges the n rows starting at i with those at j.
// The ranges must not overlap.
func (p *Particles) SwapParticleRanges(i, j, n int) {
	if i < j && i+n > j || j < i && j+n > i {
		panic(fmt.Sprintf("particles: swap ranges [%d,%d) and [%d,%d) overlap", i, i+n, j, j+n))
	}
	for k := 0; k < n; k++ {
		p.SwapParticles(i+k, j+k)
	}
}

// OverwriteParticle copies particle i over particle j
func (p *Particles) OverwriteParticle(i, j int) {
	p.OverwriteParticles(i, p, j, 1)
}

// OverwriteParticles copies n particles starting at i over the rows of dest
// starting at j. dest may be p.
func (p *Particles) OverwriteParticles(i int, dest *Particles, j, n int) {
	p.mustMatch(dest)
	for k, c := range dest.columns {
		c.overwriteFrom(p.columns[k], i, j, n)
	}
}

// CreateParticle appends a zeroed particle and returns its index
func (p *Particles) CreateParticle() int {
	for _, c := range p.columns {
		c.create()
	}
	return p.Size() - 1
}

// InDomain reports whether particle i lies in [lo, hi) on every axis
func (p *Particles) InDomain(i int, lo, hi [3]float64) bool {
	for d := 0; d < p.NDim; d++ {
		x := p.position[d].Data[i]
		if x < lo[d] || x >= hi[d] {
			return false
		}
	}
	return true
}

type byID struct{ p *Particles }

func (s byID) Len() int           { return s.p.Size() }
func (s byID) Less(i, j int) bool { return s.p.id.Data[i] < s.p.id.Data[j] }
func (s byID) Swap(i, j int)      { s.p.SwapParticles(i, j) }

// SortByID orders tracked particles by increasing id
func (p *Particles) SortByID() error {
	if !p.Caps.Tracked {
		return ErrNotTracked
	}
	sort.Stable(byID{p})
	return nil
}

// Position returns the column of position component d
func (p *Particles) Position(d int) []float64 { return p.position[d].Data }

// Momentum returns the column of momentum component d
func (p *Particles) Momentum(d int) []float64 { return p.momentum[d].Data }

func (p *Particles) Weight() []float64 { return p.weight.Data }
func (p *Particles) Charge() []int16   { return p.charge.Data }

// ID is nil unless the particles are tracked
func (p *Particles) ID() []uint64 {
	if p.id == nil {
		return nil
	}
	return p.id.Data
}

// Chi is nil without radiation reaction
func (p *Particles) Chi() []float64 {
	if p.chi == nil {
		return nil
	}
	return p.chi.Data
}

// Tau is nil without the Monte-Carlo radiation reaction
func (p *Particles) Tau() []float64 {
	if p.tau == nil {
		return nil
	}
	return p.tau.Data
}
