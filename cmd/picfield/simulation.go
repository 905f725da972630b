package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/comm"
	"github.com/notargets/PICKernel/config"
	"github.com/notargets/PICKernel/diag"
	"github.com/notargets/PICKernel/exchange"
	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
	"github.com/notargets/PICKernel/runner"
	"github.com/notargets/PICKernel/snapshot"
	"github.com/notargets/PICKernel/utils"
	"github.com/notargets/PICKernel/vectorpatch"
)

// Simulation drives every rank of a run through initialisation and the
// time loop, then writes the outputs
type Simulation struct {
	Config *config.Config
	// Device is empty for host vector updates, "auto" for the first OCCA
	// backend that works, or an OCCA property string
	Device string

	History diag.History
	// Ranks holds the patches of every rank once Run returns
	Ranks []*vectorpatch.VectorPatch
}

// Run builds the patches of all ranks and advances them NTime steps. Ranks
// run as goroutines sharing one exchange.
func (s *Simulation) Run() error {
	c := s.Config
	layout := c.Layout()
	ex := exchange.NewExchanger(layout, c.Grid.NSpace, c.Grid.Oversize)

	var comms []comm.Communicator
	var exchangers []vectorpatch.Exchanger
	if c.Ranks == 1 {
		comms = []comm.Communicator{comm.Serial{}}
		exchangers = []vectorpatch.Exchanger{ex}
	} else {
		comms = comm.NewLocalWorld(c.Ranks)
		for _, v := range exchange.NewLocal(ex, comms) {
			exchangers = append(exchangers, v)
		}
	}

	s.Ranks = make([]*vectorpatch.VectorPatch, c.Ranks)
	for rank := range s.Ranks {
		vp, err := c.Build(layout, comms[rank], exchangers[rank])
		if err != nil {
			return err
		}
		s.Ranks[rank] = vp
	}

	start := time.Now()
	errs := make([]error, c.Ranks)
	var wg sync.WaitGroup
	for rank, vp := range s.Ranks {
		wg.Add(1)
		go func(rank int, vp *vectorpatch.VectorPatch) {
			defer wg.Done()
			errs[rank] = s.runRank(vp)
		}(rank, vp)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
	}
	log.WithFields(log.Fields{
		"steps":   c.NTime,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("run complete")
	return nil
}

func (s *Simulation) runRank(vp *vectorpatch.VectorPatch) error {
	c := s.Config
	if s.Device != "" {
		free, err := attachDevice(vp, s.Device)
		if err != nil {
			return err
		}
		defer free()
	}

	if err := vp.Initialize(); err != nil {
		return err
	}
	s.record(vp, 0)

	dt := c.Timestep
	for it := 1; it <= c.NTime; it++ {
		if _, err := vp.Step((float64(it) - 0.5) * dt); err != nil {
			return fmt.Errorf("step %d: %w", it, err)
		}
		if it%c.Output.Every == 0 || it == c.NTime {
			s.record(vp, it)
		}
	}
	return nil
}

// record is collective; only rank 0 keeps the result
func (s *Simulation) record(vp *vectorpatch.VectorPatch, it int) {
	u := vp.Energy()
	if vp.Rank != 0 {
		return
	}
	s.History.Add(diag.Record{
		Step:     it,
		Time:     float64(it) * s.Config.Timestep,
		Uelm:     u,
		Poynting: vp.Poynting,
	})
}

// attachDevice moves the conjugate gradient sweeps of vp onto an OCCA device
func attachDevice(vp *vectorpatch.VectorPatch, props string) (func(), error) {
	if props == "auto" {
		props = ""
	}
	device, err := utils.NewDevice(props)
	if err != nil {
		return nil, err
	}
	var sizes []int
	for _, id := range vp.Held() {
		g := vp.Patches[id].Grid
		sizes = append(sizes, field.New("phi", g, grid.Primal).Size())
	}
	cr, err := runner.NewCGRunner(device, sizes)
	if err != nil {
		device.Free()
		return nil, err
	}
	vp.Poisson.Engine = cr
	return func() {
		cr.Free()
		device.Free()
	}, nil
}

// Output writes the energy table, the plot and the field dumps requested
// by the namelist
func (s *Simulation) Output() error {
	out := s.Config.Output
	if out.Table != "" {
		fp, err := os.Create(out.Table)
		if err != nil {
			return err
		}
		if err := s.History.WriteTable(fp); err != nil {
			fp.Close()
			return err
		}
		if err := fp.Close(); err != nil {
			return err
		}
	}
	if out.Plot != "" {
		if err := s.History.Plot(out.Plot); err != nil {
			return err
		}
	}
	if out.Snapshot != "" {
		if err := os.MkdirAll(out.Snapshot, 0o755); err != nil {
			return err
		}
		for _, vp := range s.Ranks {
			for _, id := range vp.Held() {
				path := filepath.Join(out.Snapshot, fmt.Sprintf("patch_%04d.picf", id))
				if err := snapshot.WriteFile(path, vp.Patches[id].AllFields()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
