package diag

import (
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/notargets/PICKernel/grid"
)

// ErrEmpty is returned when there is nothing to report
var ErrEmpty = errors.New("empty history")

// Record holds the global scalars of one step
type Record struct {
	Step int
	Time float64
	// Uelm is the electromagnetic energy in the domain
	Uelm float64
	// Poynting is the cumulative flux through the physical faces along
	// +axis, [side][axis]
	Poynting [2][grid.NDim]float64
}

// Outflow is the energy that left through the faces so far
func (r Record) Outflow() float64 {
	out := 0.0
	for a := 0; a < grid.NDim; a++ {
		out += r.Poynting[1][a] - r.Poynting[0][a]
	}
	return out
}

// History collects one record per step
type History struct {
	Records []Record
}

// Add appends a record
func (h *History) Add(r Record) {
	h.Records = append(h.Records, r)
	log.WithFields(log.Fields{
		"step":    r.Step,
		"Uelm":    r.Uelm,
		"outflow": r.Outflow(),
	}).Debug("field energy")
}

// Balance is the energy gained since the first record once the outflow
// is accounted for. It stays near zero without sources.
func (h *History) Balance(i int) float64 {
	r0 := h.Records[0]
	r := h.Records[i]
	return r.Uelm - r0.Uelm + r.Outflow() - r0.Outflow()
}

// WriteTable writes one tab separated line per record
func (h *History) WriteTable(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "step\ttime\tUelm\toutflow\tbalance"); err != nil {
		return err
	}
	for _, side := range []string{"min", "max"} {
		for a := 0; a < grid.NDim; a++ {
			if _, err := fmt.Fprintf(w, "\tpoynting_%s_%s", grid.AxisNames[a], side); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	for i, r := range h.Records {
		if _, err := fmt.Fprintf(w, "%d\t%.10g\t%.10g\t%.10g\t%.10g",
			r.Step, r.Time, r.Uelm, r.Outflow(), h.Balance(i)); err != nil {
			return err
		}
		for side := 0; side < 2; side++ {
			for a := 0; a < grid.NDim; a++ {
				if _, err := fmt.Fprintf(w, "\t%.10g", r.Poynting[side][a]); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func (h *History) series(value func(i int) float64) plotter.XYs {
	pts := make(plotter.XYs, len(h.Records))
	for i, r := range h.Records {
		pts[i].X = r.Time
		pts[i].Y = value(i)
	}
	return pts
}

// Plot draws the energy, the outflow and the balance against time. The
// image format follows the extension of path.
func (h *History) Plot(path string) error {
	if len(h.Records) == 0 {
		return ErrEmpty
	}
	p := plot.New()
	p.Title.Text = "Electromagnetic energy balance"
	p.X.Label.Text = "time"
	p.Y.Label.Text = "energy"

	err := plotutil.AddLines(p,
		"Uelm", h.series(func(i int) float64 { return h.Records[i].Uelm }),
		"outflow", h.series(func(i int) float64 { return h.Records[i].Outflow() }),
		"balance", h.series(h.Balance),
	)
	if err != nil {
		return fmt.Errorf("plot energy: %w", err)
	}
	p.Legend.Top = true
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	log.WithField("path", path).Info("wrote energy plot")
	return nil
}
