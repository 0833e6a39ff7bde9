package evo

import (
	"fmt"
	"sort"

	"sinevox/internal/fitness"
	"sinevox/internal/genotype"
)

// ScoredIndividual pairs a genome with its most recent evaluation.
type ScoredIndividual struct {
	Individual *genotype.Individual
	fitness.Score
}

// member is a population slot. A mutated member keeps its pre-mutation
// genome and score until the next evaluation decides whether the mutation
// stands.
type member struct {
	ScoredIndividual
	stale bool
	prev  ScoredIndividual
}

// rankMembers sorts ascending by fitness. Ties keep their current order so
// that ranking never consumes randomness.
func rankMembers(members []member) {
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Fitness < members[j].Fitness
	})
}

// truncate keeps the first n members of an already ranked slice.
func truncate(ranked []member, n int) ([]member, error) {
	if n <= 0 || n > len(ranked) {
		return nil, fmt.Errorf("invalid survivor count: %d of %d", n, len(ranked))
	}
	out := make([]member, n)
	copy(out, ranked[:n])
	return out, nil
}

// adjacentPairs returns (0,1), (2,3), ... over a population of size n.
func adjacentPairs(n int) ([][2]int, error) {
	if n <= 0 || n%2 != 0 {
		return nil, fmt.Errorf("population size must be even and > 0, got %d", n)
	}
	pairs := make([][2]int, 0, n/2)
	for i := 0; i < n; i += 2 {
		pairs = append(pairs, [2]int{i, i + 1})
	}
	return pairs, nil
}
