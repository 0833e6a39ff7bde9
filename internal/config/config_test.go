package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Search.PopulationSize = 10
	cfg.Search.Generations = 5
	cfg.Search.MutationRate = rate(0.3)
	cfg.Recognizer.ModelPath = "model"
	return cfg
}

func rate(v float64) *float64 {
	return &v
}

func TestDefaultNeedsRunParameters(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sinevox.yaml")
	body := `
search:
  population_size: 20
  generations: 50
  mutation_rate: 0.25
  mutation_policy: perturb_frequency
recognizer:
  backend: http
  endpoint: http://localhost:9000/transcribe
fitness:
  target: world
  parsimony: true
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Search.PopulationSize)
	assert.Equal(t, "perturb_frequency", cfg.Search.MutationPolicy)
	assert.Equal(t, 0.25, cfg.Search.Rate())
	assert.Equal(t, "world", cfg.Fitness.Target)
	assert.True(t, cfg.Fitness.Parsimony)
	// untouched sections keep their defaults
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 4, cfg.Search.Workers)
	assert.Equal(t, "memory", cfg.Storage.Kind)

	backend := cfg.Backend()
	assert.Equal(t, "http", backend.Backend)
	assert.Equal(t, 16000, backend.Samples)
}

func TestExplicitZeroMutationRateIsAccepted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frozen.yaml")
	body := `
search:
  population_size: 4
  generations: 2
  mutation_rate: 0
recognizer:
  model_path: model
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Search.MutationRate)
	assert.Zero(t, cfg.Search.Rate())
	require.NoError(t, cfg.Validate())

	assert.Nil(t, Default().Search.MutationRate)
	assert.Zero(t, Default().Search.Rate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [oops"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"odd population":     func(c *Config) { c.Search.PopulationSize = 7 },
		"zero population":    func(c *Config) { c.Search.PopulationSize = 0 },
		"zero generations":   func(c *Config) { c.Search.Generations = 0 },
		"rate above one":     func(c *Config) { c.Search.MutationRate = rate(1.01) },
		"negative rate":      func(c *Config) { c.Search.MutationRate = rate(-0.5) },
		"missing rate":       func(c *Config) { c.Search.MutationRate = nil },
		"unknown policy":     func(c *Config) { c.Search.MutationPolicy = "swap" },
		"no workers":         func(c *Config) { c.Search.Workers = 0 },
		"vosk without model": func(c *Config) { c.Recognizer.ModelPath = "" },
		"http without url": func(c *Config) {
			c.Recognizer.Backend = "http"
			c.Recognizer.Endpoint = ""
		},
		"unknown backend":   func(c *Config) { c.Recognizer.Backend = "whisper" },
		"empty target":      func(c *Config) { c.Fitness.Target = "" },
		"zero sample rate":  func(c *Config) { c.Audio.SampleRate = 0 },
		"inverted waves":    func(c *Config) { c.Genome.MinWaves, c.Genome.MaxWaves = 10, 5 },
		"unknown store":     func(c *Config) { c.Storage.Kind = "postgres" },
		"bad log level":     func(c *Config) { c.Logging.Level = "trace" },
		"bad log format":    func(c *Config) { c.Logging.Format = "xml" },
		"sqlite without db": func(c *Config) { c.Storage.Kind, c.Storage.DBPath = "sqlite", "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestBoundsFollowAudioFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Audio.SampleRate = 8000
	cfg.Audio.DurationSeconds = 2

	b := cfg.Bounds()
	assert.Equal(t, 16000, b.Samples)
	assert.Equal(t, 16000/50, b.MinLength)
	assert.Equal(t, 16000/5, b.MaxLength)

	cfg.Genome.MinLength, cfg.Genome.MaxLength = 10, 20
	b = cfg.Bounds()
	assert.Equal(t, 10, b.MinLength)
	assert.Equal(t, 20, b.MaxLength)

	e := cfg.Evaluator()
	assert.Equal(t, 16000, e.Format.Samples())
	assert.Equal(t, "hello", e.Target)
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	slog.New(newHandler(&buf, "auto", false, opts)).Info("hello", slog.Int("n", 1))
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())

	buf.Reset()
	slog.New(newHandler(&buf, "auto", true, opts)).Info("hello", slog.Int("n", 1))
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	slog.New(newHandler(&buf, "text", false, opts)).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, closeFn, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("skipped")
	logger.Warn("kept")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "skipped")
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
}
