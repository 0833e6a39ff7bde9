package evo

import (
	"math/rand"

	"sinevox/internal/genotype"
)

// Operator mutates an individual in place with probability rate and reports
// whether the genome changed. A run applies a single operator to every
// survivor; operators are never mixed within a run.
type Operator interface {
	Name() string
	Apply(rng *rand.Rand, ind *genotype.Individual, rate float64) bool
}
