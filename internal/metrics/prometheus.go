package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for an evolution run
type Metrics struct {
	// Search progress
	Generations   prometheus.Counter
	Mutations     prometheus.Counter
	Reverted      prometheus.Counter
	Substitutions prometheus.Counter
	BestFitness   prometheus.Gauge
	WorstFitness  prometheus.Gauge
	Diversity     prometheus.Gauge

	// Recognizer round trips
	Evaluations        prometheus.Counter
	EvaluationFailures prometheus.Counter
	EvaluationDuration prometheus.Histogram
}

// NewMetrics creates the metrics and registers them on reg. A nil reg falls
// back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Generations: factory.NewCounter(prometheus.CounterOpts{
			Name: "sinevox_generations_total",
			Help: "Total number of completed generations",
		}),
		Mutations: factory.NewCounter(prometheus.CounterOpts{
			Name: "sinevox_mutations_total",
			Help: "Total number of mutations that changed a genome",
		}),
		Reverted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sinevox_mutations_reverted_total",
			Help: "Total number of mutations reverted because they worsened fitness",
		}),
		Substitutions: factory.NewCounter(prometheus.CounterOpts{
			Name: "sinevox_empty_child_substitutions_total",
			Help: "Total number of empty offspring replaced by random individuals",
		}),
		BestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sinevox_best_fitness",
			Help: "Best fitness of the current generation (lower is better)",
		}),
		WorstFitness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sinevox_worst_fitness",
			Help: "Worst fitness of the current generation",
		}),
		Diversity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sinevox_population_diversity",
			Help: "Distinct genome fingerprints in the current generation",
		}),

		Evaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "sinevox_evaluations_total",
			Help: "Total number of recognizer evaluations",
		}),
		EvaluationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sinevox_evaluation_failures_total",
			Help: "Total number of failed recognizer evaluations",
		}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sinevox_evaluation_duration_seconds",
			Help:    "Duration of one render and recognize round trip",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
	}
}

// RecordEvaluation records a recognizer round trip
func (m *Metrics) RecordEvaluation(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.Evaluations.Inc()
	if err != nil {
		m.EvaluationFailures.Inc()
	}
	m.EvaluationDuration.Observe(durationSeconds)
}

// RecordGeneration records the outcome of one generation
func (m *Metrics) RecordGeneration(best, worst float64, diversity, mutations, reverted, substitutions int) {
	if m == nil {
		return
	}
	m.Generations.Inc()
	m.BestFitness.Set(best)
	m.WorstFitness.Set(worst)
	m.Diversity.Set(float64(diversity))
	m.Mutations.Add(float64(mutations))
	m.Reverted.Add(float64(reverted))
	m.Substitutions.Add(float64(substitutions))
}

// Handler exposes the metrics gathered by g over HTTP.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
