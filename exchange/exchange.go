package exchange

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/partitions"
	"github.com/notargets/PICKernel/utils"
)

// Exchanger reconciles the duplicated nodes of adjacent patches. Densities
// and currents are summed over the overlap; fields are overwritten from the
// patch that owns each node. Axes are processed in turn so edge and corner
// ghosts pick up contributions through two or three passes.
type Exchanger struct {
	Layout   *partitions.Layout
	NSpace   [grid.NDim]int
	Oversize [grid.NDim]int

	boundaries []partitions.Boundary
	mu         sync.Mutex
	connectors map[connectorKey]*utils.GhostConnector
}

type connectorKey struct {
	axis       int
	centering  grid.Centering
	leftLast   int
	rightFirst int
}

// NewExchanger prepares the exchange for all patches of a layout
func NewExchanger(layout *partitions.Layout, nSpace, oversize [grid.NDim]int) *Exchanger {
	for a := 0; a < grid.NDim; a++ {
		// Overlaps of the two neighbours of a patch must not intersect
		if layout.NumberOfPatches[a] > 1 && nSpace[a] < 2*oversize[a]+2 {
			panic(fmt.Sprintf("n_space=%d along %s too small for oversize %d with %d patches",
				nSpace[a], grid.AxisNames[a], oversize[a], layout.NumberOfPatches[a]))
		}
	}
	ex := &Exchanger{
		Layout:     layout,
		NSpace:     nSpace,
		Oversize:   oversize,
		boundaries: make([]partitions.Boundary, layout.NumPatches()),
		connectors: make(map[connectorKey]*utils.GhostConnector),
	}
	for id := range ex.boundaries {
		ex.boundaries[id] = partitions.NewBoundary(nSpace, oversize, layout.Patch(id))
	}
	return ex
}

// Boundary returns the ownership descriptor of a patch
func (ex *Exchanger) Boundary(id int) partitions.Boundary {
	return ex.boundaries[id]
}

type pair struct {
	left, right int
}

// pairs lists adjacent patch pairs along an axis, min side first
func (ex *Exchanger) pairs(axis int) []pair {
	ps := make([]pair, 0)
	for id := 0; id < ex.Layout.NumPatches(); id++ {
		if nb := ex.Layout.Patch(id).Neighbor(axis, partitions.Max); nb != partitions.NoNeighbor {
			ps = append(ps, pair{left: id, right: nb})
		}
	}
	return ps
}

func (ex *Exchanger) connector(axis int, f *field.Field, p pair) *utils.GhostConnector {
	dual := f.Centering.IsDual(axis)
	_, leftLast := ex.boundaries[p.left].Owned(axis, dual)
	rightFirst, _ := ex.boundaries[p.right].Owned(axis, dual)
	key := connectorKey{axis: axis, centering: f.Centering, leftLast: leftLast, rightFirst: rightFirst}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	if gc, ok := ex.connectors[key]; ok && gc.Dims == f.Dims {
		return gc
	}
	gc, err := utils.NewGhostConnector(axis, f.Dims, ex.NSpace[axis], leftLast, rightFirst)
	if err != nil {
		panic(fmt.Sprintf("exchange of %s along %s: %v", f.Name, grid.AxisNames[axis], err))
	}
	ex.connectors[key] = gc
	return gc
}

func (ex *Exchanger) checkFields(fields []*field.Field) {
	if len(fields) != ex.Layout.NumPatches() {
		panic(fmt.Sprintf("exchange needs one field per patch, got %d for %d patches",
			len(fields), ex.Layout.NumPatches()))
	}
}

func pick(data []float64, indices []int) []float64 {
	buf := make([]float64, len(indices))
	for n, idx := range indices {
		buf[n] = data[idx]
	}
	return buf
}

func place(data []float64, indices []int, buf []float64) {
	for n, idx := range indices {
		data[idx] = buf[n]
	}
}

// SumField adds the contributions both patches hold for every duplicated
// node and stores the total on both sides. fields is indexed by patch id;
// pairs with a nil member are skipped.
func (ex *Exchanger) SumField(fields []*field.Field) {
	ex.checkFields(fields)
	for axis := 0; axis < grid.NDim; axis++ {
		for _, p := range ex.pairs(axis) {
			l, r := fields[p.left], fields[p.right]
			if l == nil || r == nil {
				continue
			}
			gc := ex.connector(axis, l, p)
			sum := pick(l.Data(), gc.OverlapLeft)
			floats.Add(sum, pick(r.Data(), gc.OverlapRight))
			place(l.Data(), gc.OverlapLeft, sum)
			place(r.Data(), gc.OverlapRight, sum)
		}
	}
	log.WithField("field", firstName(fields)).Trace("summed patch overlaps")
}

// CopyField overwrites every non-owned node that has a neighbour with the
// value held by the owning patch
func (ex *Exchanger) CopyField(fields []*field.Field) {
	ex.checkFields(fields)
	for axis := 0; axis < grid.NDim; axis++ {
		for _, p := range ex.pairs(axis) {
			l, r := fields[p.left], fields[p.right]
			if l == nil || r == nil {
				continue
			}
			gc := ex.connector(axis, l, p)
			toRight := pick(l.Data(), gc.PickFromLeft)
			toLeft := pick(r.Data(), gc.PickFromRight)
			place(r.Data(), gc.PlaceOnRight, toRight)
			place(l.Data(), gc.PlaceOnLeft, toLeft)
		}
	}
	log.WithField("field", firstName(fields)).Trace("copied owned nodes to ghosts")
}

func firstName(fields []*field.Field) string {
	for _, f := range fields {
		if f != nil {
			return f.Name
		}
	}
	return ""
}
