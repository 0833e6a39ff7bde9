package evo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sourcegraph/conc/pool"

	"sinevox/internal/fitness"
	"sinevox/internal/genotype"
	"sinevox/internal/metrics"
	"sinevox/internal/model"
	"sinevox/internal/recognizer"
)

type GenerationDiagnostics = model.GenerationDiagnostics

type RunResult struct {
	BestByGeneration []float64
	Diagnostics      []GenerationDiagnostics
	FinalPopulation  []ScoredIndividual
	Evaluations      int
	StoppedEarly     bool
}

// Best returns the top-ranked individual of the final population.
func (r RunResult) Best() (ScoredIndividual, bool) {
	if len(r.FinalPopulation) == 0 {
		return ScoredIndividual{}, false
	}
	return r.FinalPopulation[0], true
}

// MonitorConfig parameterizes a search. Every survivor is offered to
// Mutator once per generation; a mutant that scores worse than the genome it
// came from at the next evaluation is reverted to that genome, so accepted
// mutations never lower a survivor's fitness. Diagnostics report these as
// Reverted.
type MonitorConfig struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	Mutator        Operator
	Bounds         genotype.Bounds
	Evaluator      *fitness.Evaluator
	Recognizers    *recognizer.Pool
	Seed           int64
	StopOnMatch    bool
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	OnGeneration   func(GenerationDiagnostics)
}

type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.PopulationSize <= 0 || cfg.PopulationSize%2 != 0 {
		return nil, fmt.Errorf("population size must be even and > 0, got %d", cfg.PopulationSize)
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be in [0, 1], got %v", cfg.MutationRate)
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("bounds: %w", err)
	}
	if cfg.Evaluator == nil {
		return nil, errors.New("fitness evaluator is required")
	}
	if err := cfg.Evaluator.Validate(); err != nil {
		return nil, fmt.Errorf("fitness evaluator: %w", err)
	}
	if samples := cfg.Evaluator.Format.Samples(); samples != cfg.Bounds.Samples {
		return nil, fmt.Errorf("bounds cover %d samples but the evaluator renders %d", cfg.Bounds.Samples, samples)
	}
	if cfg.Recognizers == nil {
		return nil, errors.New("recognizer pool is required")
	}
	if cfg.Mutator == nil {
		cfg.Mutator = AddGene{Bounds: cfg.Bounds}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run executes the search. All random draws happen on the calling goroutine
// in a fixed order; only recognizer round trips run concurrently, so a fixed
// seed and a deterministic recognizer reproduce every generation exactly.
func (m *PopulationMonitor) Run(ctx context.Context) (RunResult, error) {
	size := m.cfg.PopulationSize
	pairs, err := adjacentPairs(size)
	if err != nil {
		return RunResult{}, err
	}

	seeds := make([]*genotype.Individual, size)
	for i := range seeds {
		seeds[i] = genotype.NewRandom(m.rng, m.cfg.Bounds)
	}
	scores, err := m.evaluate(ctx, seeds)
	if err != nil {
		return RunResult{}, fmt.Errorf("seed population: %w", err)
	}
	population := make([]member, size)
	for i := range population {
		population[i] = member{ScoredIndividual: ScoredIndividual{Individual: seeds[i], Score: scores[i]}}
	}
	evaluations := size

	result := RunResult{
		BestByGeneration: make([]float64, 0, m.cfg.Generations),
		Diagnostics:      make([]GenerationDiagnostics, 0, m.cfg.Generations),
	}

	for gen := 1; gen <= m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		diag := GenerationDiagnostics{Generation: gen}
		if gen == 1 {
			diag.Evaluations = size
		}

		refreshed, reverted, err := m.refresh(ctx, population)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen, err)
		}
		diag.Evaluations += refreshed
		diag.Reverted = reverted
		evaluations += refreshed

		rankMembers(population)
		summarize(&diag, population)
		result.BestByGeneration = append(result.BestByGeneration, diag.BestFitness)
		if diag.BestFitness >= m.cfg.Evaluator.Worst() {
			m.cfg.Logger.Warn("recognizer heard nothing from any individual",
				slog.Int("generation", gen),
				slog.Float64("best_fitness", diag.BestFitness),
			)
		}

		if m.cfg.StopOnMatch && diag.BestFitness == 0 {
			m.finishGeneration(&result, diag)
			result.StoppedEarly = true
			m.cfg.Logger.Info("target matched, stopping early", slog.Int("generation", gen))
			break
		}

		offspring := make([]*genotype.Individual, 0, size)
		for _, pair := range pairs {
			a, b := population[pair[0]].Individual, population[pair[1]].Individual
			child0, child1, subs := a.Combine(b, m.rng, m.cfg.Bounds)
			offspring = append(offspring, child0, child1)
			diag.Substitutions += subs
		}
		diag.Pairs = len(pairs)
		diag.Offspring = len(offspring)

		childScores, err := m.evaluate(ctx, offspring)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d offspring: %w", gen, err)
		}
		diag.Evaluations += len(offspring)
		evaluations += len(offspring)

		merged := make([]member, 0, size+len(offspring))
		merged = append(merged, population...)
		for i, child := range offspring {
			merged = append(merged, member{ScoredIndividual: ScoredIndividual{Individual: child, Score: childScores[i]}})
		}
		diag.MergedSize = len(merged)

		rankMembers(merged)
		population, err = truncate(merged, size)
		if err != nil {
			return RunResult{}, err
		}
		diag.Survivors = len(population)

		diag.Mutations = m.mutate(population)
		m.finishGeneration(&result, diag)
	}

	refreshed, _, err := m.refresh(ctx, population)
	if err != nil {
		return RunResult{}, fmt.Errorf("final evaluation: %w", err)
	}
	evaluations += refreshed
	rankMembers(population)

	result.FinalPopulation = make([]ScoredIndividual, len(population))
	for i, mb := range population {
		result.FinalPopulation[i] = mb.ScoredIndividual
	}
	result.Evaluations = evaluations
	return result, nil
}

func (m *PopulationMonitor) finishGeneration(result *RunResult, diag GenerationDiagnostics) {
	result.Diagnostics = append(result.Diagnostics, diag)
	m.cfg.Logger.Info("generation complete",
		slog.Int("generation", diag.Generation),
		slog.Float64("best_fitness", diag.BestFitness),
		slog.Float64("worst_fitness", diag.WorstFitness),
		slog.String("best_transcript", diag.BestTranscript),
		slog.Int("mutations", diag.Mutations),
		slog.Int("reverted", diag.Reverted),
		slog.Int("substitutions", diag.Substitutions),
	)
	m.cfg.Metrics.RecordGeneration(diag.BestFitness, diag.WorstFitness, diag.Diversity, diag.Mutations, diag.Reverted, diag.Substitutions)
	if m.cfg.OnGeneration != nil {
		m.cfg.OnGeneration(diag)
	}
}

// mutate applies the run's operator to every survivor in rank order. A
// changed survivor keeps its previous genome and score so the next refresh
// can undo a harmful mutation.
func (m *PopulationMonitor) mutate(population []member) int {
	mutated := 0
	for i := range population {
		candidate := population[i].Individual.Clone()
		if !m.cfg.Mutator.Apply(m.rng, candidate, m.cfg.MutationRate) {
			continue
		}
		population[i].prev = population[i].ScoredIndividual
		population[i].Individual = candidate
		population[i].stale = true
		mutated++
	}
	return mutated
}

// refresh re-scores stale members. A mutant scoring worse than its
// pre-mutation self reverts, so accepted mutations never lower a member's
// standing.
func (m *PopulationMonitor) refresh(ctx context.Context, population []member) (int, int, error) {
	var idx []int
	var stale []*genotype.Individual
	for i := range population {
		if population[i].stale {
			idx = append(idx, i)
			stale = append(stale, population[i].Individual)
		}
	}
	if len(stale) == 0 {
		return 0, 0, nil
	}

	scores, err := m.evaluate(ctx, stale)
	if err != nil {
		return 0, 0, err
	}
	reverted := 0
	for k, i := range idx {
		mb := &population[i]
		if scores[k].Fitness > mb.prev.Fitness {
			mb.ScoredIndividual = mb.prev
			reverted++
		} else {
			mb.Score = scores[k]
		}
		mb.stale = false
		mb.prev = ScoredIndividual{}
	}
	return len(stale), reverted, nil
}

// evaluate scores every individual concurrently, one recognizer per task,
// and returns the scores in input order.
func (m *PopulationMonitor) evaluate(ctx context.Context, individuals []*genotype.Individual) ([]fitness.Score, error) {
	scores := make([]fitness.Score, len(individuals))
	if len(individuals) == 0 {
		return scores, nil
	}

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(m.cfg.Recognizers.Size()).
		WithCancelOnError().
		WithFirstError()
	for i, ind := range individuals {
		p.Go(func(ctx context.Context) error {
			rec, err := m.cfg.Recognizers.Acquire(ctx)
			if err != nil {
				return err
			}
			defer m.cfg.Recognizers.Release(rec)

			start := time.Now()
			score, err := m.cfg.Evaluator.Score(ctx, rec, ind)
			m.cfg.Metrics.RecordEvaluation(time.Since(start).Seconds(), err)
			if err != nil {
				return fmt.Errorf("evaluate individual %d: %w", i, err)
			}
			scores[i] = score
			m.cfg.Logger.Debug("individual evaluated",
				slog.Int("index", i),
				slog.Int("genes", ind.Len()),
				slog.Float64("fitness", score.Fitness),
				slog.String("transcript", score.Transcript),
			)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func summarize(diag *GenerationDiagnostics, ranked []member) {
	if len(ranked) == 0 {
		return
	}
	total := 0.0
	genes := 0
	fingerprints := make(map[string]struct{}, len(ranked))
	for _, mb := range ranked {
		total += mb.Fitness
		genes += mb.Individual.Len()
		fingerprints[mb.Individual.Fingerprint()] = struct{}{}
	}
	diag.BestFitness = ranked[0].Fitness
	diag.WorstFitness = ranked[len(ranked)-1].Fitness
	diag.MeanFitness = total / float64(len(ranked))
	diag.MeanGenomeSize = float64(genes) / float64(len(ranked))
	diag.Diversity = len(fingerprints)
	diag.BestTranscript = ranked[0].Transcript
}
