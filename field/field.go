package field

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/PICKernel/grid"
)

// Field is a dense 3D array tagged with its staggering. The storage is row
// major with z varying fastest.
type Field struct {
	Name      string
	Centering grid.Centering
	Dims      [grid.NDim]int
	data      *sparse.DenseArray
}

// New allocates a zeroed field shaped for the grid and centering
func New(name string, g *grid.Grid, c grid.Centering) *Field {
	return NewWithDims(name, g.FieldDims(c), c)
}

// NewWithDims allocates a zeroed field with explicit extents
func NewWithDims(name string, dims [grid.NDim]int, c grid.Centering) *Field {
	for a := 0; a < grid.NDim; a++ {
		if dims[a] <= 0 {
			panic(fmt.Sprintf("field %s: extent along %s must be positive, got %d",
				name, grid.AxisNames[a], dims[a]))
		}
	}
	return &Field{
		Name:      name,
		Centering: c,
		Dims:      dims,
		data:      sparse.ZerosDense(dims[0], dims[1], dims[2]),
	}
}

// Size is the number of stored nodes
func (f *Field) Size() int {
	return f.Dims[0] * f.Dims[1] * f.Dims[2]
}

// Index returns the flat offset of node (i,j,k)
func (f *Field) Index(i, j, k int) int {
	return (i*f.Dims[1]+j)*f.Dims[2] + k
}

func (f *Field) At(i, j, k int) float64 {
	return f.data.Elements[f.Index(i, j, k)]
}

func (f *Field) Set(i, j, k int, v float64) {
	f.data.Elements[f.Index(i, j, k)] = v
}

func (f *Field) Add(i, j, k int, v float64) {
	f.data.Elements[f.Index(i, j, k)] += v
}

// Data exposes the flat storage
func (f *Field) Data() []float64 {
	return f.data.Elements
}

// Array exposes the underlying dense array
func (f *Field) Array() *sparse.DenseArray {
	return f.data
}

// Zero clears every node
func (f *Field) Zero() {
	for i := range f.data.Elements {
		f.data.Elements[i] = 0
	}
}

// SameShape reports whether both fields share extents and centering
func (f *Field) SameShape(other *Field) bool {
	return f.Dims == other.Dims && f.Centering == other.Centering
}

func (f *Field) mustMatch(other *Field, op string) {
	if !f.SameShape(other) {
		panic(fmt.Sprintf("%s: field %s %v%s does not match %s %v%s", op,
			f.Name, f.Dims, f.Centering, other.Name, other.Dims, other.Centering))
	}
}

// CopyFrom overwrites f with the values of src
func (f *Field) CopyFrom(src *Field) {
	f.mustMatch(src, "copy")
	copy(f.data.Elements, src.data.Elements)
}

// AddField adds src elementwise into f
func (f *Field) AddField(src *Field) {
	f.mustMatch(src, "add")
	f.data.AddDense(src.data)
}

// AddScaled adds alpha*src elementwise into f
func (f *Field) AddScaled(alpha float64, src *Field) {
	f.mustMatch(src, "add scaled")
	floats.AddScaled(f.data.Elements, alpha, src.data.Elements)
}

// Scale multiplies every node by s
func (f *Field) Scale(s float64) {
	floats.Scale(s, f.data.Elements)
}

// AddConstant adds c to every node
func (f *Field) AddConstant(c float64) {
	floats.AddConst(c, f.data.Elements)
}

// Clone deep-copies the field under a new name
func (f *Field) Clone(name string) *Field {
	return &Field{
		Name:      name,
		Centering: f.Centering,
		Dims:      f.Dims,
		data:      f.data.Copy(),
	}
}

// Range is an inclusive index box [Lo, Hi] per axis
type Range struct {
	Lo, Hi [grid.NDim]int
}

// Full returns the range covering every node of the field
func (f *Field) Full() Range {
	return Range{Hi: [grid.NDim]int{f.Dims[0] - 1, f.Dims[1] - 1, f.Dims[2] - 1}}
}

// Empty reports whether the range holds no node
func (r Range) Empty() bool {
	for a := 0; a < grid.NDim; a++ {
		if r.Hi[a] < r.Lo[a] {
			return true
		}
	}
	return false
}

// Count is the number of nodes in the range
func (r Range) Count() int {
	if r.Empty() {
		return 0
	}
	n := 1
	for a := 0; a < grid.NDim; a++ {
		n *= r.Hi[a] - r.Lo[a] + 1
	}
	return n
}

// SumRange sums the nodes inside r
func (f *Field) SumRange(r Range) (sum float64) {
	for i := r.Lo[0]; i <= r.Hi[0]; i++ {
		for j := r.Lo[1]; j <= r.Hi[1]; j++ {
			row := f.Index(i, j, 0)
			for k := r.Lo[2]; k <= r.Hi[2]; k++ {
				sum += f.data.Elements[row+k]
			}
		}
	}
	return
}

// DotRange is the inner product of f and g restricted to r
func (f *Field) DotRange(g *Field, r Range) (sum float64) {
	f.mustMatch(g, "dot")
	for i := r.Lo[0]; i <= r.Hi[0]; i++ {
		for j := r.Lo[1]; j <= r.Hi[1]; j++ {
			row := f.Index(i, j, 0)
			lo, hi := row+r.Lo[2], row+r.Hi[2]+1
			if hi > lo {
				sum += floats.Dot(f.data.Elements[lo:hi], g.data.Elements[lo:hi])
			}
		}
	}
	return
}

// Norm2Range is the sum of squares over r
func (f *Field) Norm2Range(r Range) float64 {
	return f.DotRange(f, r)
}

// MaxAbs returns the largest magnitude stored
func (f *Field) MaxAbs() float64 {
	return floats.Norm(f.data.Elements, math.Inf(1))
}
