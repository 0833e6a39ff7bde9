package stats

import "math"

// RunSummary condenses a best-fitness series. Fitness is a cost, so a
// positive Improvement means the search got closer to the target.
type RunSummary struct {
	Generations int     `json:"generations"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	Improvement float64 `json:"improvement"`
	MatchedAt   int     `json:"matched_at,omitempty"`
}

func Summarize(bestByGeneration []float64) RunSummary {
	summary := RunSummary{Generations: len(bestByGeneration)}
	if len(bestByGeneration) == 0 {
		return summary
	}
	summary.InitialBest = bestByGeneration[0]
	summary.FinalBest = bestByGeneration[len(bestByGeneration)-1]
	summary.Improvement = summary.InitialBest - summary.FinalBest

	total := 0.0
	for i, best := range bestByGeneration {
		total += best
		if best == 0 && summary.MatchedAt == 0 {
			summary.MatchedAt = i + 1
		}
	}
	summary.BestMean = total / float64(len(bestByGeneration))

	variance := 0.0
	for _, best := range bestByGeneration {
		d := best - summary.BestMean
		variance += d * d
	}
	summary.BestStd = math.Sqrt(variance / float64(len(bestByGeneration)))
	return summary
}
