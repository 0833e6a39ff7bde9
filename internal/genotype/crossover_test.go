package genotype

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinevox/internal/model"
)

func TestCombinePartitionsByCutPoint(t *testing.T) {
	b := testBounds()
	parentA := NewRandom(rand.New(rand.NewSource(1)), b)
	parentB := NewRandom(rand.New(rand.NewSource(2)), b)

	seed := int64(99)
	point := uint32(rand.New(rand.NewSource(seed)).Intn(b.Samples))
	child0, child1, subs := parentA.Combine(parentB, rand.New(rand.NewSource(seed)), b)
	require.Zero(t, subs, "random parents with many genes should not produce empty children")

	for _, g := range parentA.Genes() {
		if g.Start <= point {
			assert.True(t, child0.Has(g))
		} else {
			assert.True(t, child1.Has(g))
		}
	}
	for _, g := range parentB.Genes() {
		if g.Start <= point {
			assert.True(t, child1.Has(g))
		} else {
			assert.True(t, child0.Has(g))
		}
	}

	union := parentA.Clone()
	for _, g := range parentB.Genes() {
		union.Insert(g)
	}
	merged := child0.Clone()
	for _, g := range child1.Genes() {
		merged.Insert(g)
	}
	assert.True(t, union.Equal(merged), "children must carry exactly the parents' genes")
}

func TestCombineSubstitutesEmptyChildren(t *testing.T) {
	b := testBounds()
	last := uint32(b.Samples - 1)
	parentA := FromGenes(model.Gene{Start: 0, Length: 5, Frequency: 440})
	parentB := FromGenes(model.Gene{Start: last, Length: 5, Frequency: 880})

	for seed := int64(0); seed < 50; seed++ {
		point := uint32(rand.New(rand.NewSource(seed)).Intn(b.Samples))
		wantSubs := 1
		if point == last {
			wantSubs = 0
		}

		child0, child1, subs := parentA.Combine(parentB, rand.New(rand.NewSource(seed)), b)
		require.False(t, child0.Empty())
		require.False(t, child1.Empty())
		assert.Equal(t, wantSubs, subs, "seed %d point %d", seed, point)
		if wantSubs == 1 {
			assert.Equal(t, 2, child0.Len(), "both parents' genes land in child0")
		}
	}
}

func TestCombineNeverEmpty(t *testing.T) {
	b := testBounds()
	rng := rand.New(rand.NewSource(17))
	for i := 0; i < 200; i++ {
		a := FromGenes(model.Gene{Start: uint32(rng.Intn(b.Samples)), Length: 10, Frequency: 100})
		c := FromGenes(model.Gene{Start: uint32(rng.Intn(b.Samples)), Length: 10, Frequency: 200})
		child0, child1, _ := a.Combine(c, rng, b)
		require.False(t, child0.Empty())
		require.False(t, child1.Empty())
	}
}

func TestCombineWithSelfKeepsBufferLength(t *testing.T) {
	b := testBounds()
	ind := FromGenes(model.Gene{Start: 100, Length: 200, Frequency: 440})
	buf, err := ind.Render(b.Samples)
	require.NoError(t, err)
	assert.Len(t, buf, b.Samples)
	assert.Equal(t, 1, ind.Len())

	child0, child1, _ := ind.Combine(ind, rand.New(rand.NewSource(8)), b)
	for _, child := range []*Individual{child0, child1} {
		out, err := child.Render(b.Samples)
		require.NoError(t, err)
		assert.Len(t, out, b.Samples)
	}
	assert.Equal(t, 1, ind.Len(), "parents are not modified")
}

func TestCombineDeterministic(t *testing.T) {
	b := testBounds()
	a := NewRandom(rand.New(rand.NewSource(1)), b)
	c := NewRandom(rand.New(rand.NewSource(2)), b)

	x0, x1, _ := a.Combine(c, rand.New(rand.NewSource(3)), b)
	y0, y1, _ := a.Combine(c, rand.New(rand.NewSource(3)), b)
	assert.True(t, x0.Equal(y0))
	assert.True(t, x1.Equal(y1))
}
