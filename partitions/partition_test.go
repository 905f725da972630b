package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutCoordinates(t *testing.T) {
	l := NewLayout([3]int{3, 2, 2}, 1)
	require.Equal(t, 12, l.NumPatches())
	for id := 0; id < l.NumPatches(); id++ {
		assert.Equal(t, id, l.PatchID(l.Coordinates(id)))
	}
	assert.Equal(t, [3]int{1, 1, 0}, l.Coordinates(4))
}

func TestPatchNeighbors(t *testing.T) {
	l := NewLayout([3]int{3, 1, 2}, 1)

	t.Run("corner patch", func(t *testing.T) {
		p := l.Patch(0)
		assert.True(t, p.IsMin(0))
		assert.False(t, p.IsMax(0))
		assert.True(t, p.IsMin(1) && p.IsMax(1))
		assert.Equal(t, NoNeighbor, p.Neighbor(0, Min))
		assert.Equal(t, 1, p.Neighbor(0, Max))
		assert.Equal(t, NoNeighbor, p.Neighbor(1, Min))
		assert.Equal(t, NoNeighbor, p.Neighbor(1, Max))
		assert.Equal(t, 3, p.Neighbor(2, Max))
	})

	t.Run("middle patch", func(t *testing.T) {
		p := l.Patch(4)
		assert.Equal(t, [3]int{1, 0, 1}, p.Coordinates)
		assert.Equal(t, 3, p.Neighbor(0, Min))
		assert.Equal(t, 5, p.Neighbor(0, Max))
		assert.Equal(t, 1, p.Neighbor(2, Min))
		assert.Equal(t, NoNeighbor, p.Neighbor(2, Max))
	})
}

func TestLayoutOwners(t *testing.T) {
	l := NewLayout([3]int{4, 1, 1}, 2)
	assert.Equal(t, []int{0, 1}, l.RankPatches(0))
	assert.Equal(t, []int{2, 3}, l.RankPatches(1))
	p := l.Patch(1)
	assert.Equal(t, 1, p.NeighborRank(0, Max))
	assert.Equal(t, 0, p.NeighborRank(0, Min))
	assert.Panics(t, func() { NewLayout([3]int{1, 1, 1}, 2) })
}

func TestBoundaryOwnership(t *testing.T) {
	nSpace := [3]int{6, 4, 5}
	oversize := [3]int{2, 1, 0}

	testCases := []struct {
		name    string
		patches [3]int
	}{
		{"single patch", [3]int{1, 1, 1}},
		{"two along x", [3]int{2, 1, 1}},
		{"three along every axis", [3]int{3, 3, 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLayout(tc.patches, 1)
			for a := 0; a < 3; a++ {
				for dual := 0; dual < 2; dual++ {
					// Each global node along the axis must be owned exactly once
					nGlobal := tc.patches[a]*nSpace[a] + 1 + dual
					count := make([]int, nGlobal)
					for c := 0; c < tc.patches[a]; c++ {
						coords := [3]int{}
						coords[a] = c
						p := l.Patch(l.PatchID(coords))
						b := NewBoundary(nSpace, oversize, p)
						first, last := b.Owned(a, dual == 1)
						for i := first; i <= last; i++ {
							g := c*nSpace[a] + i - oversize[a]
							require.True(t, g >= 0 && g < nGlobal, "global index %d", g)
							count[g]++
						}
					}
					for g, n := range count {
						assert.Equal(t, 1, n, "axis %d dual %d global node %d", a, dual, g)
					}
				}
			}
		})
	}
}

func TestBoundaryDescriptorValues(t *testing.T) {
	l := NewLayout([3]int{3, 1, 1}, 1)
	nSpace := [3]int{8, 8, 8}
	oversize := [3]int{2, 2, 2}

	first := NewBoundary(nSpace, oversize, l.Patch(0))
	middle := NewBoundary(nSpace, oversize, l.Patch(1))
	last := NewBoundary(nSpace, oversize, l.Patch(2))

	assert.Equal(t, [2]int{2, 2}, first.IStart[0])
	assert.Equal(t, [2]int{9, 9}, first.BufSize[0])
	assert.Equal(t, [2]int{3, 3}, middle.IStart[0])
	assert.Equal(t, [2]int{8, 8}, middle.BufSize[0])
	assert.Equal(t, [2]int{3, 3}, last.IStart[0])
	assert.Equal(t, [2]int{8, 9}, last.BufSize[0])

	// Single patch along y keeps both physical nodes
	assert.Equal(t, [2]int{9, 10}, first.BufSize[1])
}

func TestBuckets(t *testing.T) {
	testCases := []struct {
		name     string
		items    int
		buckets  int
		strategy PartitionStrategy
		want     [][]int
		maxSize  int
	}{
		{"block even", 4, 2, BlockPartition, [][]int{{0, 1}, {2, 3}}, 2},
		{"block uneven", 5, 2, BlockPartition, [][]int{{0, 1, 2}, {3, 4}}, 3},
		{"round robin", 5, 2, RoundRobin, [][]int{{0, 2, 4}, {1, 3}}, 3},
		{"more buckets than items", 2, 8, BlockPartition, [][]int{{0}, {1}}, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuckets(tc.items, tc.buckets, tc.strategy)
			assert.Equal(t, tc.want, b.Items)
			assert.Equal(t, tc.maxSize, b.MaxBucketSize())
			assert.NoError(t, b.Validate())
		})
	}
}
