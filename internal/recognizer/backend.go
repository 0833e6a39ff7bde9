package recognizer

import (
	"fmt"
	"os"
	"time"
)

const (
	BackendVosk = "vosk"
	BackendHTTP = "http"

	DefaultMaxAlternatives = 2
)

// BackendConfig selects and configures a recognizer engine.
type BackendConfig struct {
	Backend         string
	ModelPath       string
	Endpoint        string
	APIKey          string
	Timeout         time.Duration
	SampleRate      int
	Samples         int
	MaxAlternatives int
}

// New builds a pool of workers recognizer instances for the configured
// backend. Instances share nothing mutable.
func New(cfg BackendConfig, workers int) (*Pool, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0, got %d", cfg.SampleRate)
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = DefaultMaxAlternatives
	}

	switch cfg.Backend {
	case "", BackendVosk:
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("model path is required for the %s backend", BackendVosk)
		}
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("read model path: %w", err)
		}
		return newVoskPool(cfg, workers)
	case BackendHTTP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("endpoint is required for the %s backend", BackendHTTP)
		}
		return NewPool(workers, func(int) (Recognizer, error) {
			return NewHTTP(cfg), nil
		})
	default:
		return nil, fmt.Errorf("unsupported recognizer backend: %s", cfg.Backend)
	}
}
