package stats

import (
	"math"
	"sort"

	"nkinnov/internal/model"
)

// StrategyAggregate summarizes one strategy of one case across its runs.
type StrategyAggregate struct {
	Case          int            `json:"case"`
	Strategy      model.Strategy `json:"strategy"`
	Runs          int            `json:"runs"`
	MeanScore     float64        `json:"mean_score"`
	StdDevScore   float64        `json:"stddev_score"`
	BestScore     float64        `json:"best_score"`
	MeanRounds    float64        `json:"mean_rounds"`
	MeanTimestamp float64        `json:"mean_timestamp"`
}

// Aggregate groups results by case and strategy. MeanScore is the mean of
// each run's mean innovator score and StdDevScore its population standard
// deviation. Output is ordered by case, then strategy.
func Aggregate(summaries []model.RunSummary) []StrategyAggregate {
	type key struct {
		caseIndex int
		strategy  model.Strategy
	}
	grouped := map[key][]model.StrategyResult{}
	for _, s := range summaries {
		for _, r := range s.Results {
			k := key{s.Case, r.Strategy}
			grouped[k] = append(grouped[k], r)
		}
	}

	out := make([]StrategyAggregate, 0, len(grouped))
	for k, results := range grouped {
		agg := StrategyAggregate{Case: k.caseIndex, Strategy: k.strategy, Runs: len(results)}
		for i, r := range results {
			agg.MeanScore += r.MeanScore
			agg.MeanRounds += float64(r.Rounds)
			agg.MeanTimestamp += r.MeanTimestamp
			if i == 0 || r.BestScore > agg.BestScore {
				agg.BestScore = r.BestScore
			}
		}
		n := float64(len(results))
		agg.MeanScore /= n
		agg.MeanRounds /= n
		agg.MeanTimestamp /= n
		var ss float64
		for _, r := range results {
			d := r.MeanScore - agg.MeanScore
			ss += d * d
		}
		agg.StdDevScore = math.Sqrt(ss / n)
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Case != out[j].Case {
			return out[i].Case < out[j].Case
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}
