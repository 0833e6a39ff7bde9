package genotype

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinevox/internal/model"
	"sinevox/internal/waveform"
)

func testBounds() Bounds {
	return DefaultBounds(waveform.Format{SampleRate: 1000, DurationSeconds: 1})
}

func TestDefaultBounds(t *testing.T) {
	b := DefaultBounds(waveform.DefaultFormat())
	require.NoError(t, b.Validate())
	assert.Equal(t, 16000, b.Samples)
	assert.Equal(t, 320, b.MinLength)
	assert.Equal(t, 3200, b.MaxLength)
}

func TestBoundsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Bounds)
	}{
		{name: "zero samples", mutate: func(b *Bounds) { b.Samples = 0 }},
		{name: "inverted waves", mutate: func(b *Bounds) { b.MinWaves, b.MaxWaves = 5, 4 }},
		{name: "zero min waves", mutate: func(b *Bounds) { b.MinWaves = 0 }},
		{name: "inverted freq", mutate: func(b *Bounds) { b.MinFreq, b.MaxFreq = 100, 50 }},
		{name: "empty length range", mutate: func(b *Bounds) { b.MinLength, b.MaxLength = 10, 10 }},
		{name: "length beyond buffer", mutate: func(b *Bounds) { b.MaxLength = b.Samples + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBounds()
			tt.mutate(&b)
			require.Error(t, b.Validate())
		})
	}
}

func TestNewRandomRespectsBounds(t *testing.T) {
	b := testBounds()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		ind := NewRandom(rng, b)
		require.False(t, ind.Empty())
		assert.LessOrEqual(t, ind.Len(), b.MaxWaves)
		for _, g := range ind.Genes() {
			assert.Less(t, int(g.Start), b.Samples)
			assert.GreaterOrEqual(t, int(g.Length), b.MinLength)
			assert.Less(t, int(g.Length), b.MaxLength)
			assert.GreaterOrEqual(t, int(g.Frequency), b.MinFreq)
			assert.LessOrEqual(t, int(g.Frequency), b.MaxFreq)
		}
	}
}

func TestNewRandomDeterministic(t *testing.T) {
	b := testBounds()
	a := NewRandom(rand.New(rand.NewSource(42)), b)
	c := NewRandom(rand.New(rand.NewSource(42)), b)
	assert.True(t, a.Equal(c))
	assert.Equal(t, a.Fingerprint(), c.Fingerprint())
}

func TestGeneSetCollapsesDuplicates(t *testing.T) {
	g := model.Gene{Start: 1, Length: 2, Frequency: 3}
	ind := FromGenes(g, g, g)
	assert.Equal(t, 1, ind.Len())
	assert.False(t, ind.Insert(g))
	assert.True(t, ind.Insert(model.Gene{Start: 1, Length: 2, Frequency: 4}))
	assert.True(t, ind.Remove(g))
	assert.False(t, ind.Remove(g))
}

func TestGenesSorted(t *testing.T) {
	ind := FromGenes(
		model.Gene{Start: 5, Length: 1, Frequency: 1},
		model.Gene{Start: 1, Length: 9, Frequency: 2},
		model.Gene{Start: 1, Length: 9, Frequency: 1},
		model.Gene{Start: 1, Length: 3, Frequency: 7},
	)
	assert.Equal(t, []model.Gene{
		{Start: 1, Length: 3, Frequency: 7},
		{Start: 1, Length: 9, Frequency: 1},
		{Start: 1, Length: 9, Frequency: 2},
		{Start: 5, Length: 1, Frequency: 1},
	}, ind.Genes())
}

func TestCloneIsIndependent(t *testing.T) {
	ind := FromGenes(model.Gene{Start: 1, Length: 2, Frequency: 3})
	clone := ind.Clone()
	clone.Insert(model.Gene{Start: 9, Length: 9, Frequency: 9})
	assert.Equal(t, 1, ind.Len())
	assert.Equal(t, 2, clone.Len())
	assert.False(t, ind.Equal(clone))
}

func TestRenderIsPure(t *testing.T) {
	b := testBounds()
	ind := NewRandom(rand.New(rand.NewSource(3)), b)
	first, err := ind.Render(b.Samples)
	require.NoError(t, err)
	second, err := ind.Render(b.Samples)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, b.Samples)
}

func TestRecordRoundTrip(t *testing.T) {
	ind := NewRandom(rand.New(rand.NewSource(11)), testBounds())
	rec := ind.Record("g1")
	assert.Equal(t, "g1", rec.ID)
	assert.Equal(t, ind.Fingerprint(), rec.Fingerprint)
	assert.True(t, FromRecord(rec).Equal(ind))
}

func TestSummarize(t *testing.T) {
	ind := FromGenes(
		model.Gene{Start: 0, Length: 10, Frequency: 100},
		model.Gene{Start: 5, Length: 10, Frequency: 300},
		model.Gene{Start: 95, Length: 50, Frequency: 200},
	)
	s := ind.Summarize(100)
	assert.Equal(t, 3, s.Genes)
	assert.Equal(t, uint32(100), s.MinFrequency)
	assert.Equal(t, uint32(300), s.MaxFrequency)
	assert.InDelta(t, 0.20, s.Coverage, 1e-9)

	assert.Equal(t, GenomeSummary{}, New().Summarize(100))
}
