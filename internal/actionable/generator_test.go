package actionable

import (
	"strings"
	"testing"

	"atc-insights-go/internal/aggregator"
)

func TestGeneratePriority(t *testing.T) {
	base := aggregator.Insight{
		Total: 10, Succeeded: 10,
		MeanOverall: 0.8, MeanClarity: 0.9, EfficientRate: 0.9,
		ByIntent: map[string]aggregator.IntentStats{
			"clearance": {Count: 6, MeanOverall: 0.85},
			"request":   {Count: 4, MeanOverall: 0.62},
		},
	}

	cases := []struct {
		name   string
		mutate func(*aggregator.Insight)
		want   string
	}{
		{"nothing scored", func(i *aggregator.Insight) { i.Succeeded = 0 }, "No transmissions"},
		{"failures", func(i *aggregator.Insight) { i.FailureRate = 0.5 }, "failed to process"},
		{"disagreement", func(i *aggregator.Insight) {
			i.Labeled, i.Agreement = 5, 0.4
			i.Confusions = map[string]int{"clearance->instruction": 2, "request->routine": 1}
		}, "clearance->instruction x2"},
		{"clarity", func(i *aggregator.Insight) { i.MeanClarity = 0.55 }, "Mean clarity"},
		{"below threshold", func(i *aggregator.Insight) { i.MeanOverall = 0.65 }, "weakest intent: request"},
		{"efficient", func(i *aggregator.Insight) {}, "Traffic is efficient"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ins := base
			tc.mutate(&ins)
			card := Generate(ins, 0.7)
			if !strings.Contains(card.Insight, tc.want) {
				t.Fatalf("insight %q does not contain %q", card.Insight, tc.want)
			}
			if card.Action == "" || card.Impact == "" {
				t.Fatalf("incomplete card %+v", card)
			}
		})
	}
}
