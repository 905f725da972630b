package particles

import "slices"

// Value is the set of element types a particle column may hold
type Value interface {
	float64 | int16 | uint64
}

// column is the type-erased view used to move whole particles
type column interface {
	Name() string
	Len() int
	resize(n int)
	clear()
	clip()
	erase(i, n int)
	swap(i, j int)
	create()
	// appendFrom, insertFrom and overwriteFrom read rows of src, which must
	// be a column of the same type
	appendFrom(src column, i int)
	insertFrom(src column, i, n, at int)
	overwriteFrom(src column, i, at, n int)
}

// Column is one named property stored for every particle
type Column[T Value] struct {
	name string
	Data []T
}

func newColumn[T Value](name string) *Column[T] {
	return &Column[T]{name: name}
}

func (c *Column[T]) Name() string { return c.name }
func (c *Column[T]) Len() int     { return len(c.Data) }

func (c *Column[T]) resize(n int) {
	if n <= len(c.Data) {
		c.Data = c.Data[:n]
		return
	}
	c.Data = append(c.Data, make([]T, n-len(c.Data))...)
}

func (c *Column[T]) clear() { c.Data = c.Data[:0] }
func (c *Column[T]) clip()  { c.Data = slices.Clip(c.Data) }

func (c *Column[T]) erase(i, n int) {
	c.Data = slices.Delete(c.Data, i, i+n)
}

func (c *Column[T]) swap(i, j int) {
	c.Data[i], c.Data[j] = c.Data[j], c.Data[i]
}

func (c *Column[T]) create() {
	var zero T
	c.Data = append(c.Data, zero)
}

func (c *Column[T]) appendFrom(src column, i int) {
	c.Data = append(c.Data, src.(*Column[T]).Data[i])
}

func (c *Column[T]) insertFrom(src column, i, n, at int) {
	c.Data = slices.Insert(c.Data, at, src.(*Column[T]).Data[i:i+n]...)
}

func (c *Column[T]) overwriteFrom(src column, i, at, n int) {
	copy(c.Data[at:at+n], src.(*Column[T]).Data[i:i+n])
}
