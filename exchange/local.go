package exchange

import (
	"fmt"

	"github.com/notargets/PICKernel/comm"
	"github.com/notargets/PICKernel/field"
)

// Local shares one Exchanger between goroutine ranks of a local world.
// Each rank hands in the fields of its own patches; once every rank has
// arrived the slices are merged by patch id and exchanged on rank 0.
type Local struct {
	ex    *Exchanger
	comms []comm.Communicator
	all   [][]*field.Field
}

// RankExchanger is the view of a Local exchange used by one rank
type RankExchanger struct {
	parent *Local
	rank   int
}

// NewLocal returns one exchanger per communicator of the world
func NewLocal(ex *Exchanger, comms []comm.Communicator) []*RankExchanger {
	if len(comms) != ex.Layout.NumRanks {
		panic(fmt.Sprintf("local exchange: %d communicators for %d ranks", len(comms), ex.Layout.NumRanks))
	}
	l := &Local{ex: ex, comms: comms, all: make([][]*field.Field, len(comms))}
	views := make([]*RankExchanger, len(comms))
	for r := range comms {
		views[r] = &RankExchanger{parent: l, rank: r}
	}
	return views
}

func (r *RankExchanger) run(fields []*field.Field, op func([]*field.Field)) {
	l := r.parent
	l.all[r.rank] = fields
	l.comms[r.rank].Barrier()
	if r.rank == 0 {
		merged := make([]*field.Field, len(fields))
		for _, fs := range l.all {
			for id, f := range fs {
				if f != nil {
					merged[id] = f
				}
			}
		}
		op(merged)
	}
	l.comms[r.rank].Barrier()
}

// SumField is Exchanger.SumField over the patches of all ranks
func (r *RankExchanger) SumField(fields []*field.Field) {
	r.run(fields, r.parent.ex.SumField)
}

// CopyField is Exchanger.CopyField over the patches of all ranks
func (r *RankExchanger) CopyField(fields []*field.Field) {
	r.run(fields, r.parent.ex.CopyField)
}
