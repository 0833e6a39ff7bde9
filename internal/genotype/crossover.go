package genotype

import "math/rand"

// Combine recombines two parents around one cut-point p drawn uniformly
// from [0, Samples). Genes starting at or before p stay on their parent's
// "before" side: ind's before-genes and other's after-genes form child0,
// the rest form child1. An empty child is replaced by a fresh random
// individual; the number of such substitutions is returned.
func (ind *Individual) Combine(other *Individual, rng *rand.Rand, b Bounds) (*Individual, *Individual, int) {
	point := uint32(rng.Intn(b.Samples))
	child0 := New()
	child1 := New()

	for g := range ind.genes {
		if g.Start <= point {
			child0.genes[g] = struct{}{}
		} else {
			child1.genes[g] = struct{}{}
		}
	}
	for g := range other.genes {
		if g.Start <= point {
			child1.genes[g] = struct{}{}
		} else {
			child0.genes[g] = struct{}{}
		}
	}

	substitutions := 0
	if child0.Empty() {
		child0 = NewRandom(rng, b)
		substitutions++
	}
	if child1.Empty() {
		child1 = NewRandom(rng, b)
		substitutions++
	}
	return child0, child1, substitutions
}
