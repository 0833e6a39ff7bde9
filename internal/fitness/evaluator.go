package fitness

import (
	"context"
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"

	"sinevox/internal/genotype"
	"sinevox/internal/recognizer"
	"sinevox/internal/waveform"
)

const (
	DefaultTarget      = "hello"
	DefaultMaxDistance = 1000

	// distanceWeight scales the edit distance against the genome-size term
	// when parsimony is enabled.
	distanceWeight = 3
)

// Score is the outcome of one recognizer round trip. Lower Fitness is
// better; 0 means the transcription equals the target.
type Score struct {
	Fitness    float64 `json:"fitness"`
	Distance   int     `json:"distance"`
	Transcript string  `json:"transcript,omitempty"`
	Found      bool    `json:"found"`
}

// Evaluator turns an individual's audio into a normalized fitness.
//
// Without parsimony, fitness is distance/MaxDistance. With parsimony it is
// (3·distance + min(genes, GenomePenaltyCap)) / (3·MaxDistance + GenomePenaltyCap).
// Distances are clamped to MaxDistance and a missing transcription scores
// MaxDistance, so both forms stay within [0, 1].
type Evaluator struct {
	Target           string
	MaxDistance      int
	Parsimony        bool
	GenomePenaltyCap int
	Format           waveform.Format
}

func NewEvaluator(target string, format waveform.Format) *Evaluator {
	return &Evaluator{
		Target:           target,
		MaxDistance:      DefaultMaxDistance,
		GenomePenaltyCap: genotype.DefaultMaxWaves,
		Format:           format,
	}
}

func (e *Evaluator) Validate() error {
	if e.Target == "" {
		return errors.New("target word is required")
	}
	if e.MaxDistance <= 0 {
		return fmt.Errorf("max distance must be > 0, got %d", e.MaxDistance)
	}
	if e.Parsimony && e.GenomePenaltyCap <= 0 {
		return fmt.Errorf("genome penalty cap must be > 0 with parsimony, got %d", e.GenomePenaltyCap)
	}
	return e.Format.Validate()
}

// Score renders ind and runs one complete utterance through rec. The
// recognizer is reset afterwards even when the round trip fails, so it can
// be handed to the next caller.
func (e *Evaluator) Score(_ context.Context, rec recognizer.Recognizer, ind *genotype.Individual) (Score, error) {
	buf, err := ind.Render(e.Format.Samples())
	if err != nil {
		return Score{}, fmt.Errorf("render individual: %w", err)
	}
	result, err := e.transcribe(rec, buf)
	if err != nil {
		return Score{}, err
	}
	return e.Compute(result, ind.Len()), nil
}

func (e *Evaluator) transcribe(rec recognizer.Recognizer, buf waveform.Buffer) (result recognizer.Result, err error) {
	defer func() {
		if resetErr := rec.Reset(); resetErr != nil && err == nil {
			err = fmt.Errorf("reset recognizer: %w", resetErr)
		}
	}()
	if err := rec.AcceptWaveform(buf); err != nil {
		return recognizer.Result{}, fmt.Errorf("submit waveform: %w", err)
	}
	result, err = rec.FinalResult()
	if err != nil {
		return recognizer.Result{}, fmt.Errorf("final result: %w", err)
	}
	return result, nil
}

// Compute scores a transcription for a genome of the given size.
func (e *Evaluator) Compute(result recognizer.Result, genes int) Score {
	distance := e.MaxDistance
	if result.Found {
		distance = levenshtein.ComputeDistance(e.Target, result.Text)
		if distance > e.MaxDistance {
			distance = e.MaxDistance
		}
	}
	return Score{
		Fitness:    e.normalize(distance, genes),
		Distance:   distance,
		Transcript: result.Text,
		Found:      result.Found,
	}
}

func (e *Evaluator) normalize(distance, genes int) float64 {
	if !e.Parsimony {
		return float64(distance) / float64(e.MaxDistance)
	}
	penalty := genes
	if penalty > e.GenomePenaltyCap {
		penalty = e.GenomePenaltyCap
	}
	if penalty < 0 {
		penalty = 0
	}
	worst := distanceWeight*e.MaxDistance + e.GenomePenaltyCap
	return float64(distanceWeight*distance+penalty) / float64(worst)
}

// Worst is the fitness assigned when nothing is recognized and, with
// parsimony, the genome is at least GenomePenaltyCap genes.
func (e *Evaluator) Worst() float64 {
	return e.normalize(e.MaxDistance, e.GenomePenaltyCap)
}
