package partitions

import (
	"fmt"
)

// PartitionStrategy defines how items are grouped into buckets
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive items
	RoundRobin                              // Distribute cyclically
)

// Buckets assigns NumItems items (patches, species) to NumBuckets workers
type Buckets struct {
	NumItems   int
	NumBuckets int
	Strategy   PartitionStrategy
	Owner      []int   // item → bucket
	Items      [][]int // bucket → items
}

// NewBuckets partitions items over buckets. Empty buckets are dropped when
// there are fewer items than buckets.
func NewBuckets(numItems, numBuckets int, strategy PartitionStrategy) *Buckets {
	if numItems < 0 {
		panic(fmt.Sprintf("negative item count %d", numItems))
	}
	if numBuckets < 1 {
		numBuckets = 1
	}
	if numItems > 0 && numBuckets > numItems {
		numBuckets = numItems
	}

	b := &Buckets{
		NumItems:   numItems,
		NumBuckets: numBuckets,
		Strategy:   strategy,
		Owner:      make([]int, numItems),
		Items:      make([][]int, numBuckets),
	}

	switch strategy {
	case RoundRobin:
		for i := 0; i < numItems; i++ {
			b.Owner[i] = i % numBuckets
		}
	default:
		// Even block sizes, the first numItems%numBuckets buckets get one more
		base := numItems / numBuckets
		extra := numItems % numBuckets
		item := 0
		for bk := 0; bk < numBuckets; bk++ {
			size := base
			if bk < extra {
				size++
			}
			for n := 0; n < size; n++ {
				b.Owner[item] = bk
				item++
			}
		}
	}

	for i, bk := range b.Owner {
		b.Items[bk] = append(b.Items[bk], i)
	}
	return b
}

// MaxBucketSize is the largest bucket
func (b *Buckets) MaxBucketSize() int {
	m := 0
	for _, items := range b.Items {
		m = max(m, len(items))
	}
	return m
}

// Validate checks that every item sits in exactly one bucket
func (b *Buckets) Validate() error {
	seen := make([]int, b.NumItems)
	for bk, items := range b.Items {
		for _, i := range items {
			if i < 0 || i >= b.NumItems {
				return fmt.Errorf("bucket %d holds invalid item %d", bk, i)
			}
			seen[i]++
		}
	}
	for i, n := range seen {
		if n != 1 {
			return fmt.Errorf("item %d assigned %d times", i, n)
		}
	}
	return nil
}
