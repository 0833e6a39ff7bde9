package genotype

import (
	"fmt"

	"sinevox/internal/waveform"
)

const (
	DefaultMinWaves = 10
	DefaultMaxWaves = 400
	DefaultMinFreq  = 20
	DefaultMaxFreq  = 20000
)

// Bounds limits every random draw made while building or mutating genomes.
// Initial gene lengths are drawn from [MinLength, MaxLength).
type Bounds struct {
	Samples   int `json:"samples" yaml:"-"`
	MinWaves  int `json:"min_waves" yaml:"min_waves"`
	MaxWaves  int `json:"max_waves" yaml:"max_waves"`
	MinFreq   int `json:"min_freq" yaml:"min_freq"`
	MaxFreq   int `json:"max_freq" yaml:"max_freq"`
	MinLength int `json:"min_length" yaml:"min_length"`
	MaxLength int `json:"max_length" yaml:"max_length"`
}

func DefaultBounds(format waveform.Format) Bounds {
	samples := format.Samples()
	return Bounds{
		Samples:   samples,
		MinWaves:  DefaultMinWaves,
		MaxWaves:  DefaultMaxWaves,
		MinFreq:   DefaultMinFreq,
		MaxFreq:   DefaultMaxFreq,
		MinLength: samples / 50,
		MaxLength: samples / 5,
	}
}

func (b Bounds) Validate() error {
	if b.Samples <= 0 {
		return fmt.Errorf("samples must be > 0, got %d", b.Samples)
	}
	if b.MinWaves <= 0 || b.MaxWaves < b.MinWaves {
		return fmt.Errorf("waves per individual must satisfy 0 < min <= max, got [%d, %d]", b.MinWaves, b.MaxWaves)
	}
	if b.MinFreq <= 0 || b.MaxFreq < b.MinFreq {
		return fmt.Errorf("frequency must satisfy 0 < min <= max, got [%d, %d]", b.MinFreq, b.MaxFreq)
	}
	if b.MinLength < 0 || b.MaxLength <= b.MinLength {
		return fmt.Errorf("gene length must satisfy 0 <= min < max, got [%d, %d)", b.MinLength, b.MaxLength)
	}
	if b.MaxLength > b.Samples {
		return fmt.Errorf("max gene length %d exceeds buffer of %d samples", b.MaxLength, b.Samples)
	}
	return nil
}
