package electromagn

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/profile"
)

// ApplyExternalField overwrites every node of f, ghosts included, with the
// profile evaluated at the node position
func (em *ElectroMagn) ApplyExternalField(f *field.Field, p profile.Spatial) {
	var pos [grid.NDim]float64
	for i := 0; i < f.Dims[0]; i++ {
		pos[0] = em.Grid.Position(grid.X, i, f.Centering.IsDual(grid.X))
		for j := 0; j < f.Dims[1]; j++ {
			pos[1] = em.Grid.Position(grid.Y, j, f.Centering.IsDual(grid.Y))
			for k := 0; k < f.Dims[2]; k++ {
				pos[2] = em.Grid.Position(grid.Z, k, f.Centering.IsDual(grid.Z))
				f.Set(i, j, k, p.ValueAt(pos))
			}
		}
	}
}

// ApplyExternalFields applies every configured external field. A magnetic
// component is mirrored into B_m so the first centring sees it.
func (em *ElectroMagn) ApplyExternalFields() error {
	for _, ext := range em.ExtFields {
		f, err := em.FieldByName(ext.Field)
		if err != nil {
			return fmt.Errorf("external field: %w", err)
		}
		em.ApplyExternalField(f, ext.Profile)

		var mirror *field.Field
		switch f {
		case em.Bx:
			mirror = em.BxM
		case em.By:
			mirror = em.ByM
		case em.Bz:
			mirror = em.BzM
		}
		if mirror != nil && mirror != f {
			mirror.CopyFrom(f)
		}
		log.WithFields(log.Fields{"patch": em.Patch.ID, "field": ext.Field}).Debug("applied external field")
	}
	return nil
}

// InitAntennas evaluates the spatial profile of every antenna once
func (em *ElectroMagn) InitAntennas() error {
	for i := range em.Antennas {
		a := &em.Antennas[i]
		switch a.Field {
		case "Jx", "Jy", "Jz":
		default:
			return fmt.Errorf("%w %q", ErrAntennaField, a.Field)
		}
		f, err := em.CreateField(a.Field)
		if err != nil {
			return err
		}
		em.ApplyExternalField(f, a.SpaceProfile)
		a.current = f
	}
	return nil
}

// ApplyAntennas adds the antenna currents at time t into J
func (em *ElectroMagn) ApplyAntennas(t float64) {
	for i := range em.Antennas {
		a := &em.Antennas[i]
		if a.current == nil {
			continue
		}
		var j *field.Field
		switch a.Field {
		case "Jx":
			j = em.Jx
		case "Jy":
			j = em.Jy
		case "Jz":
			j = em.Jz
		}
		j.AddScaled(a.TimeProfile.ValueAtTime(t), a.current)
	}
}
