package evo

import (
	"math/rand"

	"sinevox/internal/genotype"
	"sinevox/internal/model"
)

const (
	OperatorAddGene          = "add_gene"
	OperatorPerturbFrequency = "perturb_frequency"
)

// AddGene inserts one brand-new tone. Its start is uniform over the buffer
// and its length uniform over [1, Samples-start], so the tone may run to the
// end of the buffer but never past it.
type AddGene struct {
	Bounds genotype.Bounds
}

func (AddGene) Name() string {
	return OperatorAddGene
}

func (o AddGene) Apply(rng *rand.Rand, ind *genotype.Individual, rate float64) bool {
	if !chance(rng, rate) {
		return false
	}
	b := o.Bounds
	freq := b.MinFreq + rng.Intn(b.MaxFreq-b.MinFreq+1)
	start := rng.Intn(b.Samples)
	length := 1 + rng.Intn(b.Samples-start)
	return ind.Insert(model.Gene{Start: uint32(start), Length: uint32(length), Frequency: uint32(freq)})
}

// PerturbFrequency replaces one existing tone by a tone with the same timing
// and a freshly drawn frequency.
type PerturbFrequency struct {
	Bounds genotype.Bounds
}

func (PerturbFrequency) Name() string {
	return OperatorPerturbFrequency
}

func (o PerturbFrequency) Apply(rng *rand.Rand, ind *genotype.Individual, rate float64) bool {
	if !chance(rng, rate) {
		return false
	}
	if ind.Empty() {
		return false
	}
	genes := ind.Genes()
	old := genes[rng.Intn(len(genes))]
	b := o.Bounds
	next := old
	next.Frequency = uint32(b.MinFreq + rng.Intn(b.MaxFreq-b.MinFreq+1))
	if next == old || ind.Has(next) {
		return false
	}
	ind.Remove(old)
	ind.Insert(next)
	return true
}

// chance always consumes exactly one draw so that the random stream does not
// depend on the outcome.
func chance(rng *rand.Rand, rate float64) bool {
	return rng.Float64() < rate
}
