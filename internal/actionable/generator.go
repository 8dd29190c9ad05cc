package actionable

import (
	"fmt"
	"sort"

	"atc-insights-go/internal/aggregator"
	"atc-insights-go/internal/efficiency"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

const (
	failureRateLimit = 0.2
	agreementFloor   = 0.7
	clarityFloor     = 0.7
)

// Generate picks the single most pressing finding in a batch insight. Checks
// run in priority order: pipeline failures, classifier disagreement, clarity,
// then overall efficiency against threshold.
func Generate(ins aggregator.Insight, threshold float64) ActionCard {
	if threshold <= 0 {
		threshold = efficiency.DefaultThreshold
	}
	if ins.Succeeded == 0 {
		return ActionCard{
			Insight: "No transmissions were scored",
			Action:  "Check transcriber and classifier configuration, then rerun the batch",
			Impact:  "No efficiency data available",
		}
	}
	if ins.FailureRate > failureRateLimit {
		return ActionCard{
			Insight: fmt.Sprintf("%.0f%% of transmissions failed to process", ins.FailureRate*100),
			Action:  "Inspect failing rows in the report; verify audio paths and model availability",
			Impact:  "Scores cover only part of the dataset",
		}
	}
	if ins.Labeled > 0 && ins.Agreement < agreementFloor {
		return ActionCard{
			Insight: fmt.Sprintf("Intent agreement with reference labels is %.0f%%%s", ins.Agreement*100, worstConfusion(ins.Confusions)),
			Action:  "Review classifier phraseology coverage or retrain on the confused labels",
			Impact:  "Intent and efficiency scores are unreliable for affected traffic",
		}
	}
	if ins.MeanClarity < clarityFloor {
		return ActionCard{
			Insight: fmt.Sprintf("Mean clarity %.2f is below %.2f", ins.MeanClarity, clarityFloor),
			Action:  "Coach controllers toward standard phraseology of 10-50 words per transmission",
			Impact:  "Fewer say-again exchanges and shorter frequency occupancy",
		}
	}
	if ins.MeanOverall < threshold {
		return ActionCard{
			Insight: fmt.Sprintf("Mean efficiency %.2f is below the %.2f threshold (weakest intent: %s)", ins.MeanOverall, threshold, weakestIntent(ins)),
			Action:  "Target refresher training at the weakest intent category",
			Impact:  "Raise the share of efficient transmissions",
		}
	}
	return ActionCard{
		Insight: fmt.Sprintf("Traffic is efficient: mean %.2f, %.0f%% above threshold", ins.MeanOverall, ins.EfficientRate*100),
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}

func worstConfusion(confusions map[string]int) string {
	if len(confusions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(confusions))
	for k := range confusions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if confusions[keys[i]] == confusions[keys[j]] {
			return keys[i] < keys[j]
		}
		return confusions[keys[i]] > confusions[keys[j]]
	})
	return fmt.Sprintf(" (most common: %s x%d)", keys[0], confusions[keys[0]])
}

func weakestIntent(ins aggregator.Insight) string {
	worst := ""
	lowest := 2.0
	for label, st := range ins.ByIntent {
		if st.MeanOverall < lowest || (st.MeanOverall == lowest && label < worst) {
			lowest = st.MeanOverall
			worst = label
		}
	}
	return worst
}
