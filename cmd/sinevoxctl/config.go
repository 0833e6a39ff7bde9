package main

import (
	"fmt"

	"sinevox/internal/config"
	"sinevox/pkg/sinevox"
)

func loadOrDefaultConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// overrideFromFlags copies explicitly set flags over cfg, so that a config
// file value survives unless the flag was given on the command line.
func overrideFromFlags(cfg *config.Config, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "model":
			cfg.Recognizer.ModelPath = v.(string)
		case "backend":
			cfg.Recognizer.Backend = v.(string)
		case "endpoint":
			cfg.Recognizer.Endpoint = v.(string)
		case "target":
			cfg.Fitness.Target = v.(string)
		case "pop":
			cfg.Search.PopulationSize = v.(int)
		case "mutation":
			rate := v.(float64)
			cfg.Search.MutationRate = &rate
		case "mutation-policy":
			cfg.Search.MutationPolicy = v.(string)
		case "maxgen":
			cfg.Search.Generations = v.(int)
		case "seed":
			cfg.Search.Seed = v.(int64)
		case "workers":
			cfg.Search.Workers = v.(int)
		case "stop-on-match":
			cfg.Search.StopOnMatch = v.(bool)
		case "parsimony":
			cfg.Fitness.Parsimony = v.(bool)
		case "sample-rate":
			cfg.Audio.SampleRate = v.(int)
		case "duration":
			cfg.Audio.DurationSeconds = v.(int)
		case "out":
			cfg.Search.Output = v.(string)
		case "store":
			cfg.Storage.Kind = v.(string)
		case "db-path":
			cfg.Storage.DBPath = v.(string)
		case "artifacts-dir":
			cfg.Storage.ArtifactsDir = v.(string)
		case "metrics-addr":
			cfg.Metrics.Address = v.(string)
		case "log-level":
			cfg.Logging.Level = v.(string)
		case "log-format":
			cfg.Logging.Format = v.(string)
		case "log-output":
			cfg.Logging.Output = v.(string)
		default:
			return fmt.Errorf("flag %s cannot override config", name)
		}
	}
	return nil
}

func requestFromConfig(cfg config.Config) sinevox.RunRequest {
	b := cfg.Bounds()
	return sinevox.RunRequest{
		Target:           cfg.Fitness.Target,
		Backend:          cfg.Recognizer.Backend,
		ModelPath:        cfg.Recognizer.ModelPath,
		Endpoint:         cfg.Recognizer.Endpoint,
		APIKey:           cfg.Recognizer.APIKey,
		Timeout:          cfg.Recognizer.GetTimeoutDuration(),
		MaxAlternatives:  cfg.Recognizer.MaxAlternatives,
		SampleRate:       cfg.Audio.SampleRate,
		DurationSeconds:  cfg.Audio.DurationSeconds,
		MinWaves:         b.MinWaves,
		MaxWaves:         b.MaxWaves,
		MinFreq:          b.MinFreq,
		MaxFreq:          b.MaxFreq,
		MinLength:        b.MinLength,
		MaxLength:        b.MaxLength,
		PopulationSize:   cfg.Search.PopulationSize,
		Generations:      cfg.Search.Generations,
		MutationRate:     cfg.Search.Rate(),
		MutationPolicy:   cfg.Search.MutationPolicy,
		Seed:             cfg.Search.Seed,
		Workers:          cfg.Search.Workers,
		StopOnMatch:      cfg.Search.StopOnMatch,
		MaxDistance:      cfg.Fitness.MaxDistance,
		Parsimony:        cfg.Fitness.Parsimony,
		GenomePenaltyCap: cfg.Fitness.GenomePenaltyCap,
		Output:           cfg.Search.Output,
	}
}
