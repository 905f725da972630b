package poisson

import (
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/PICKernel/field"
)

// VectorEngine performs the two element-wise sweeps of a CG iteration over
// every node of every held patch. Slices are indexed by patch id and nil
// entries are skipped.
type VectorEngine interface {
	// UpdatePhiAndR computes phi += alpha p and r -= alpha Ap
	UpdatePhiAndR(phi, r, p, ap []*field.Field, alpha float64) error
	// UpdateP computes p = r + beta p
	UpdateP(p, r []*field.Field, beta float64) error
}

// HostEngine runs the sweeps in process
type HostEngine struct{}

func (HostEngine) UpdatePhiAndR(phi, r, p, ap []*field.Field, alpha float64) error {
	for id := range phi {
		if phi[id] == nil {
			continue
		}
		floats.AddScaled(phi[id].Data(), alpha, p[id].Data())
		floats.AddScaled(r[id].Data(), -alpha, ap[id].Data())
	}
	return nil
}

func (HostEngine) UpdateP(p, r []*field.Field, beta float64) error {
	for id := range p {
		if p[id] == nil {
			continue
		}
		floats.Scale(beta, p[id].Data())
		floats.Add(p[id].Data(), r[id].Data())
	}
	return nil
}
