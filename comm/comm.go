package comm

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Communicator is the blocking collective layer the solvers rely on. Every
// call is one collective: all ranks must make the same sequence of calls.
type Communicator interface {
	Rank() int
	Size() int
	// AllReduceSum returns the sum of v over all ranks
	AllReduceSum(v float64) float64
	// AllReduceSumSlice replaces v by its elementwise sum over all ranks
	AllReduceSumSlice(v []float64)
	Barrier()
}

// Serial is the single-rank communicator
type Serial struct{}

func (Serial) Rank() int { return 0 }
func (Serial) Size() int { return 1 }
func (Serial) AllReduceSum(v float64) float64 { return v }
func (Serial) AllReduceSumSlice(v []float64) {}
func (Serial) Barrier() {}

// world is the shared rendezvous of goroutine ranks
type world struct {
	size       int
	mu         sync.Mutex
	cond       *sync.Cond
	arrived    int
	generation int
	contrib    [][]float64
	result     []float64
}

type local struct {
	rank int
	w    *world
}

// NewLocalWorld returns n communicators whose ranks run as goroutines of
// the same process. Sums are formed in rank order so results do not depend
// on arrival order.
func NewLocalWorld(n int) []Communicator {
	if n < 1 {
		panic(fmt.Sprintf("world size must be positive, got %d", n))
	}
	w := &world{
		size:    n,
		contrib: make([][]float64, n),
	}
	w.cond = sync.NewCond(&w.mu)
	comms := make([]Communicator, n)
	for r := 0; r < n; r++ {
		comms[r] = &local{rank: r, w: w}
	}
	return comms
}

func (c *local) Rank() int { return c.rank }
func (c *local) Size() int { return c.w.size }

func (c *local) AllReduceSum(v float64) float64 {
	buf := []float64{v}
	c.AllReduceSumSlice(buf)
	return buf[0]
}

func (c *local) AllReduceSumSlice(v []float64) {
	w := c.w
	w.mu.Lock()
	defer w.mu.Unlock()

	gen := w.generation
	w.contrib[c.rank] = append([]float64(nil), v...)
	w.arrived++
	if w.arrived == w.size {
		sum := make([]float64, len(v))
		for r := 0; r < w.size; r++ {
			if len(w.contrib[r]) != len(v) {
				panic(fmt.Sprintf("rank %d reduced %d values, rank %d reduced %d",
					r, len(w.contrib[r]), c.rank, len(v)))
			}
			floats.Add(sum, w.contrib[r])
			w.contrib[r] = nil
		}
		w.result = sum
		w.arrived = 0
		w.generation++
		w.cond.Broadcast()
	} else {
		for gen == w.generation {
			w.cond.Wait()
		}
	}
	copy(v, w.result)
}

func (c *local) Barrier() {
	c.AllReduceSumSlice(nil)
}
