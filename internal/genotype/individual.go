package genotype

import (
	"math/rand"
	"sort"

	"sinevox/internal/model"
	"sinevox/internal/waveform"
)

// Individual is a genome: a set of genes it owns exclusively.
type Individual struct {
	genes map[model.Gene]struct{}
}

func New() *Individual {
	return &Individual{genes: make(map[model.Gene]struct{})}
}

func FromGenes(genes ...model.Gene) *Individual {
	ind := &Individual{genes: make(map[model.Gene]struct{}, len(genes))}
	for _, g := range genes {
		ind.genes[g] = struct{}{}
	}
	return ind
}

// NewRandom draws a gene count in [MinWaves, MaxWaves] and fills the genome
// with independently drawn genes. Duplicate draws collapse.
func NewRandom(rng *rand.Rand, b Bounds) *Individual {
	count := b.MinWaves + rng.Intn(b.MaxWaves-b.MinWaves+1)
	ind := &Individual{genes: make(map[model.Gene]struct{}, count)}
	for i := 0; i < count; i++ {
		ind.genes[randomGene(rng, b)] = struct{}{}
	}
	return ind
}

func randomGene(rng *rand.Rand, b Bounds) model.Gene {
	freq := b.MinFreq + rng.Intn(b.MaxFreq-b.MinFreq+1)
	start := rng.Intn(b.Samples)
	length := b.MinLength + rng.Intn(b.MaxLength-b.MinLength)
	return model.Gene{Start: uint32(start), Length: uint32(length), Frequency: uint32(freq)}
}

func (ind *Individual) Len() int {
	return len(ind.genes)
}

func (ind *Individual) Empty() bool {
	return len(ind.genes) == 0
}

func (ind *Individual) Has(g model.Gene) bool {
	_, ok := ind.genes[g]
	return ok
}

// Insert adds g and reports whether the genome changed.
func (ind *Individual) Insert(g model.Gene) bool {
	if _, ok := ind.genes[g]; ok {
		return false
	}
	ind.genes[g] = struct{}{}
	return true
}

func (ind *Individual) Remove(g model.Gene) bool {
	if _, ok := ind.genes[g]; !ok {
		return false
	}
	delete(ind.genes, g)
	return true
}

// Genes returns the genome ordered by start, length, then frequency. Any
// code drawing random numbers per gene must iterate this order, never the
// underlying map, to stay reproducible under a fixed seed.
func (ind *Individual) Genes() []model.Gene {
	out := make([]model.Gene, 0, len(ind.genes))
	for g := range ind.genes {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Length != b.Length {
			return a.Length < b.Length
		}
		return a.Frequency < b.Frequency
	})
	return out
}

func (ind *Individual) Clone() *Individual {
	out := &Individual{genes: make(map[model.Gene]struct{}, len(ind.genes))}
	for g := range ind.genes {
		out.genes[g] = struct{}{}
	}
	return out
}

func (ind *Individual) Equal(other *Individual) bool {
	if len(ind.genes) != len(other.genes) {
		return false
	}
	for g := range ind.genes {
		if _, ok := other.genes[g]; !ok {
			return false
		}
	}
	return true
}

// Render mixes every gene into one buffer of n samples.
func (ind *Individual) Render(n int) (waveform.Buffer, error) {
	return waveform.Render(ind.Genes(), n)
}

func (ind *Individual) Record(id string) model.GenomeRecord {
	return model.GenomeRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: SchemaVersion, CodecVersion: CodecVersion},
		ID:              id,
		Fingerprint:     ind.Fingerprint(),
		Genes:           ind.Genes(),
	}
}

func FromRecord(rec model.GenomeRecord) *Individual {
	return FromGenes(rec.Genes...)
}

const (
	SchemaVersion = 1
	CodecVersion  = 1
)
