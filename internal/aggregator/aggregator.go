package aggregator

import (
	"math"

	"atc-insights-go/internal/types"
)

type IntentStats struct {
	Count         int     `json:"count"`
	MeanOverall   float64 `json:"mean_overall"`
	EfficientRate float64 `json:"efficient_rate"`
}

type Insight struct {
	Total         int                    `json:"total"`
	Succeeded     int                    `json:"succeeded"`
	Failed        int                    `json:"failed"`
	FailureRate   float64                `json:"failure_rate"`
	EfficientRate float64                `json:"efficient_rate"`
	MeanOverall   float64                `json:"mean_overall"`
	MeanIntent    float64                `json:"mean_intent"`
	MeanClarity   float64                `json:"mean_clarity"`
	MeanUrgency   float64                `json:"mean_urgency"`
	ByIntent      map[string]IntentStats `json:"by_intent"`
	// Agreement is the share of labeled records whose predicted top intent
	// matches the expected one. Zero when nothing is labeled.
	Labeled    int            `json:"labeled"`
	Agreement  float64        `json:"agreement"`
	Confusions map[string]int `json:"confusions"`
}

// Aggregate rolls batch results up into per-intent and overall statistics.
func Aggregate(items []types.BatchItem) Insight {
	ins := Insight{
		Total:      len(items),
		ByIntent:   map[string]IntentStats{},
		Confusions: map[string]int{},
	}
	sums := map[string]float64{}
	efficient := map[string]int{}
	var sumOverall, sumIntent, sumClarity, sumUrgency float64
	totalEfficient, agreed := 0, 0

	for _, it := range items {
		if it.Result == nil {
			ins.Failed++
			continue
		}
		ins.Succeeded++
		eff := it.Result.Efficiency
		top := it.Result.Intents.TopIntent

		sumOverall += eff.OverallScore
		sumIntent += eff.IntentScore
		sumClarity += eff.ClarityScore
		sumUrgency += eff.UrgencyScore

		st := ins.ByIntent[top]
		st.Count++
		ins.ByIntent[top] = st
		sums[top] += eff.OverallScore
		if eff.Status == types.StatusEfficient {
			efficient[top]++
			totalEfficient++
		}

		if exp := it.Record.ExpectedIntent; exp != "" {
			ins.Labeled++
			if exp == top {
				agreed++
			} else {
				ins.Confusions[exp+"->"+top]++
			}
		}
	}

	for label, st := range ins.ByIntent {
		st.MeanOverall = round3(sums[label] / float64(st.Count))
		st.EfficientRate = round3(float64(efficient[label]) / float64(st.Count))
		ins.ByIntent[label] = st
	}
	if ins.Total > 0 {
		ins.FailureRate = round3(float64(ins.Failed) / float64(ins.Total))
	}
	if n := float64(ins.Succeeded); n > 0 {
		ins.EfficientRate = round3(float64(totalEfficient) / n)
		ins.MeanOverall = round3(sumOverall / n)
		ins.MeanIntent = round3(sumIntent / n)
		ins.MeanClarity = round3(sumClarity / n)
		ins.MeanUrgency = round3(sumUrgency / n)
	}
	if ins.Labeled > 0 {
		ins.Agreement = round3(float64(agreed) / float64(ins.Labeled))
	}
	return ins
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
