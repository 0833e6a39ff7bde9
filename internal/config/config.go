package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sinevox/internal/evo"
	"sinevox/internal/fitness"
	"sinevox/internal/genotype"
	"sinevox/internal/recognizer"
	"sinevox/internal/storage"
	"sinevox/internal/waveform"
)

// Config represents the complete configuration of a search run
type Config struct {
	Search     SearchConfig     `yaml:"search"`
	Audio      AudioConfig      `yaml:"audio"`
	Genome     GenomeConfig     `yaml:"genome"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Fitness    FitnessConfig    `yaml:"fitness"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SearchConfig contains the genetic algorithm parameters
type SearchConfig struct {
	PopulationSize int      `yaml:"population_size"`
	Generations    int      `yaml:"generations"`
	MutationRate   *float64 `yaml:"mutation_rate"`
	MutationPolicy string   `yaml:"mutation_policy"`
	Seed           int64    `yaml:"seed"`
	Workers        int      `yaml:"workers"`
	StopOnMatch    bool     `yaml:"stop_on_match"`
	Output         string   `yaml:"output"`
}

// AudioConfig contains the synthesized buffer format
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	DurationSeconds int `yaml:"duration_seconds"`
}

// GenomeConfig bounds random genome construction. Zero gene lengths fall
// back to fractions of the buffer.
type GenomeConfig struct {
	MinWaves  int `yaml:"min_waves"`
	MaxWaves  int `yaml:"max_waves"`
	MinFreq   int `yaml:"min_freq"`
	MaxFreq   int `yaml:"max_freq"`
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

// RecognizerConfig selects and configures the speech recognizer backend
type RecognizerConfig struct {
	Backend         string `yaml:"backend"`
	ModelPath       string `yaml:"model_path"`
	Endpoint        string `yaml:"endpoint"`
	APIKey          string `yaml:"api_key"`
	Timeout         int    `yaml:"timeout"` // seconds
	MaxAlternatives int    `yaml:"max_alternatives"`
}

// FitnessConfig contains the scoring parameters
type FitnessConfig struct {
	Target           string `yaml:"target"`
	MaxDistance      int    `yaml:"max_distance"`
	Parsimony        bool   `yaml:"parsimony"`
	GenomePenaltyCap int    `yaml:"genome_penalty_cap"`
}

// StorageConfig selects where run results are persisted
type StorageConfig struct {
	Kind         string `yaml:"kind"`
	DBPath       string `yaml:"db_path"`
	ArtifactsDir string `yaml:"artifacts_dir"`
}

// MetricsConfig enables the Prometheus endpoint when Address is set
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Default() Config {
	return Config{
		Search: SearchConfig{
			MutationPolicy: evo.OperatorAddGene,
			Seed:           1,
			Workers:        4,
			Output:         "result.wav",
		},
		Audio: AudioConfig{
			SampleRate:      waveform.DefaultSampleRate,
			DurationSeconds: waveform.DefaultDurationSeconds,
		},
		Genome: GenomeConfig{
			MinWaves: genotype.DefaultMinWaves,
			MaxWaves: genotype.DefaultMaxWaves,
			MinFreq:  genotype.DefaultMinFreq,
			MaxFreq:  genotype.DefaultMaxFreq,
		},
		Recognizer: RecognizerConfig{
			Backend:         recognizer.BackendVosk,
			Timeout:         30,
			MaxAlternatives: recognizer.DefaultMaxAlternatives,
		},
		Fitness: FitnessConfig{
			Target:           fitness.DefaultTarget,
			MaxDistance:      fitness.DefaultMaxDistance,
			GenomePenaltyCap: genotype.DefaultMaxWaves,
		},
		Storage: StorageConfig{
			Kind:         storage.KindMemory,
			DBPath:       "sinevox.db",
			ArtifactsDir: "runs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
			Output: "stderr",
		},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file keep
// their default values. The result is not validated, so that command-line
// flags can still fill required fields.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Bounds().Validate(); err != nil {
		return fmt.Errorf("genome config: %w", err)
	}
	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer config: %w", err)
	}
	if err := c.Fitness.Validate(); err != nil {
		return fmt.Errorf("fitness config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates search configuration
func (s *SearchConfig) Validate() error {
	if s.PopulationSize <= 0 || s.PopulationSize%2 != 0 {
		return fmt.Errorf("population_size must be even and positive, got %d", s.PopulationSize)
	}
	if s.Generations <= 0 {
		return fmt.Errorf("generations must be positive, got %d", s.Generations)
	}
	if s.MutationRate == nil {
		return fmt.Errorf("mutation_rate is required")
	}
	if rate := *s.MutationRate; rate < 0 || rate > 1 {
		return fmt.Errorf("mutation_rate must be between 0 and 1, got %f", rate)
	}
	if _, err := evo.ResolveOperator(s.MutationPolicy, genotype.Bounds{}); err != nil {
		return fmt.Errorf("mutation_policy: %w", err)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	return nil
}

// Rate returns the configured mutation rate, or 0 when none was given.
func (s SearchConfig) Rate() float64 {
	if s.MutationRate == nil {
		return 0
	}
	return *s.MutationRate
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	return a.Format().Validate()
}

// Validate validates recognizer configuration
func (r *RecognizerConfig) Validate() error {
	switch r.Backend {
	case recognizer.BackendVosk:
		if r.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the vosk backend")
		}
	case recognizer.BackendHTTP:
		if r.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http backend")
		}
	default:
		return fmt.Errorf("backend must be 'vosk' or 'http', got '%s'", r.Backend)
	}
	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}
	if r.MaxAlternatives < 0 {
		return fmt.Errorf("max_alternatives cannot be negative, got %d", r.MaxAlternatives)
	}
	return nil
}

// Validate validates fitness configuration
func (f *FitnessConfig) Validate() error {
	if f.Target == "" {
		return fmt.Errorf("target cannot be empty")
	}
	if f.MaxDistance < 1 {
		return fmt.Errorf("max_distance must be at least 1, got %d", f.MaxDistance)
	}
	if f.Parsimony && f.GenomePenaltyCap < 1 {
		return fmt.Errorf("genome_penalty_cap must be at least 1 with parsimony, got %d", f.GenomePenaltyCap)
	}
	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	switch s.Kind {
	case storage.KindMemory:
	case storage.KindSQLite:
		if s.DBPath == "" {
			return fmt.Errorf("db_path cannot be empty for the sqlite store")
		}
	default:
		return fmt.Errorf("kind must be 'memory' or 'sqlite', got '%s'", s.Kind)
	}
	if s.ArtifactsDir == "" {
		return fmt.Errorf("artifacts_dir cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "auto": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json', 'text' or 'auto', got '%s'", l.Format)
	}
	return nil
}

func (a *AudioConfig) Format() waveform.Format {
	return waveform.Format{SampleRate: a.SampleRate, DurationSeconds: a.DurationSeconds}
}

// Bounds derives genome bounds for the configured audio format.
func (c *Config) Bounds() genotype.Bounds {
	b := genotype.DefaultBounds(c.Audio.Format())
	b.MinWaves = c.Genome.MinWaves
	b.MaxWaves = c.Genome.MaxWaves
	b.MinFreq = c.Genome.MinFreq
	b.MaxFreq = c.Genome.MaxFreq
	if c.Genome.MinLength > 0 {
		b.MinLength = c.Genome.MinLength
	}
	if c.Genome.MaxLength > 0 {
		b.MaxLength = c.Genome.MaxLength
	}
	return b
}

// GetTimeoutDuration returns the recognizer timeout as a time.Duration
func (r *RecognizerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// Backend converts the recognizer section into a backend configuration.
func (c *Config) Backend() recognizer.BackendConfig {
	format := c.Audio.Format()
	return recognizer.BackendConfig{
		Backend:         c.Recognizer.Backend,
		ModelPath:       c.Recognizer.ModelPath,
		Endpoint:        c.Recognizer.Endpoint,
		APIKey:          c.Recognizer.APIKey,
		Timeout:         c.Recognizer.GetTimeoutDuration(),
		SampleRate:      format.SampleRate,
		Samples:         format.Samples(),
		MaxAlternatives: c.Recognizer.MaxAlternatives,
	}
}

// Evaluator builds the fitness evaluator for the configured target.
func (c *Config) Evaluator() *fitness.Evaluator {
	e := fitness.NewEvaluator(c.Fitness.Target, c.Audio.Format())
	e.MaxDistance = c.Fitness.MaxDistance
	e.Parsimony = c.Fitness.Parsimony
	e.GenomePenaltyCap = c.Fitness.GenomePenaltyCap
	return e
}
