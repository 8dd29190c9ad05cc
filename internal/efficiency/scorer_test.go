package efficiency

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"atc-insights-go/internal/types"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("roger ", n))
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func uniform(top string, topScore float64) map[string]float64 {
	out := make(map[string]float64, len(types.IntentLabels))
	for _, l := range types.IntentLabels {
		out[l] = 0.01
	}
	out[top] = topScore
	return out
}

func TestScoreClarityBuckets(t *testing.T) {
	cases := []struct {
		words int
		want  float64
	}{
		{0, 0.5},
		{4, 0.5},
		{5, 0.7},
		{9, 0.7},
		{10, 0.9},
		{30, 0.9},
		{50, 0.9},
		{51, 0.7},
		{100, 0.7},
		{101, 0.4},
		{400, 0.4},
	}
	for _, tc := range cases {
		if got := ScoreClarity(tc.words); got != tc.want {
			t.Errorf("ScoreClarity(%d) = %v, want %v", tc.words, got, tc.want)
		}
	}
}

func TestScoreClarityOptimalRange(t *testing.T) {
	for n := 10; n <= 50; n++ {
		if got := ScoreClarity(n); got != 0.9 {
			t.Fatalf("ScoreClarity(%d) = %v, want 0.9", n, got)
		}
	}
}

func TestScoreIntentHighValueClamp(t *testing.T) {
	for _, label := range []string{types.IntentClearance, types.IntentInstruction, types.IntentConfirmation} {
		if got := ScoreIntent(map[string]float64{label: 0.95}, label); got != 1.0 {
			t.Errorf("%s at 0.95: got %v, want clamp to 1.0", label, got)
		}
		if got := ScoreIntent(map[string]float64{label: 0.81}, label); got != 1.0 {
			t.Errorf("%s at 0.81: got %v, want clamp to 1.0", label, got)
		}
		if got := ScoreIntent(map[string]float64{label: 0.5}, label); !approx(got, 0.7) {
			t.Errorf("%s at 0.5: got %v, want 0.7", label, got)
		}
	}
}

func TestScoreIntentDefaults(t *testing.T) {
	empty := map[string]float64{}
	cases := []struct {
		top  string
		want float64
	}{
		{types.IntentClearance, 0.7},
		{types.IntentRequest, 0.5},
		{types.IntentRoutine, 0.5},
		{types.IntentWarning, 0.3},
		{types.IntentEmergency, 0.3},
		{"unknown", 0.3},
	}
	for _, tc := range cases {
		if got := ScoreIntent(empty, tc.top); !approx(got, tc.want) {
			t.Errorf("ScoreIntent(empty, %q) = %v, want %v", tc.top, got, tc.want)
		}
	}
	if got := ScoreIntent(nil, types.IntentRoutine); got != 0.5 {
		t.Errorf("nil distribution: got %v, want 0.5", got)
	}
}

func TestScoreIntentRange(t *testing.T) {
	for _, label := range types.IntentLabels {
		for _, p := range []float64{0, 0.1, 0.5, 0.8, 0.81, 1} {
			got := ScoreIntent(map[string]float64{label: p}, label)
			if got < 0 || got > 1.0 {
				t.Fatalf("ScoreIntent(%s=%v) = %v out of [0,1]", label, p, got)
			}
		}
	}
}

func TestScoreUrgency(t *testing.T) {
	cases := []struct {
		name    string
		intents map[string]float64
		want    float64
	}{
		{"emergency", map[string]float64{types.IntentEmergency: 0.6}, 1.0},
		{"emergency wins over warning", map[string]float64{types.IntentEmergency: 0.51, types.IntentWarning: 0.9}, 1.0},
		{"warning", map[string]float64{types.IntentWarning: 0.7}, 0.8},
		{"exactly half is not a signal", map[string]float64{types.IntentEmergency: 0.5, types.IntentWarning: 0.5}, 0.6},
		{"missing keys", map[string]float64{}, 0.6},
	}
	for _, tc := range cases {
		if got := ScoreUrgency(tc.intents); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestScoreScenarioClearance(t *testing.T) {
	s := NewScorer(DefaultThreshold, nil)
	transcript := "cleared to land runway two seven"
	got := s.Score(transcript, uniform(types.IntentClearance, 0.9), types.IntentClearance)

	if got.WordCount != 6 || got.CharCount != len(transcript) {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.ClarityScore != 0.7 || got.IntentScore != 1.0 || got.UrgencyScore != 0.6 {
		t.Fatalf("unexpected sub-scores %+v", got)
	}
	if got.OverallScore != 0.8 {
		t.Fatalf("expected overall 0.8, got %v", got.OverallScore)
	}
	if got.Status != types.StatusEfficient {
		t.Fatalf("expected efficient, got %s", got.Status)
	}
}

func TestScoreScenarioEmptyTranscript(t *testing.T) {
	s := NewScorer(DefaultThreshold, nil)
	got := s.Score("", map[string]float64{types.IntentRoutine: 0.4}, types.IntentRoutine)

	want := types.EfficiencyMetrics{
		OverallScore: 0.48,
		IntentScore:  0.4,
		ClarityScore: 0.5,
		UrgencyScore: 0.6,
		Status:       types.StatusNeedsImprovement,
		WordCount:    0,
		CharCount:    0,
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestScoreScenarioEmergency(t *testing.T) {
	s := NewScorer(DefaultThreshold, nil)
	for _, transcript := range []string{"", "mayday mayday mayday", words(120)} {
		got := s.Score(transcript, map[string]float64{types.IntentEmergency: 0.6}, types.IntentEmergency)
		if got.UrgencyScore != 1.0 {
			t.Fatalf("transcript %q: expected urgency 1.0, got %v", transcript, got.UrgencyScore)
		}
		if got.IntentScore != 0.6 {
			t.Fatalf("transcript %q: expected intent 0.6, got %v", transcript, got.IntentScore)
		}
	}
}

func TestStatusThresholdBoundary(t *testing.T) {
	s := NewScorer(0.7, nil)
	transcript := words(10)

	at := s.Score(transcript, map[string]float64{types.IntentRoutine: 0.55}, types.IntentRoutine)
	if at.OverallScore != 0.7 || at.Status != types.StatusEfficient {
		t.Fatalf("expected 0.700 efficient, got %+v", at)
	}

	below := s.Score(transcript, map[string]float64{types.IntentRoutine: 0.5475}, types.IntentRoutine)
	if below.OverallScore != 0.699 || below.Status != types.StatusNeedsImprovement {
		t.Fatalf("expected 0.699 needs_improvement, got %+v", below)
	}
}

func TestStatusUsesUnroundedOverall(t *testing.T) {
	s := NewScorer(0.7, nil)
	// raw overall 0.6996 rounds to 0.7 but stays below the threshold
	got := s.Score(words(10), map[string]float64{types.IntentRoutine: 0.549}, types.IntentRoutine)
	if got.OverallScore != 0.7 {
		t.Fatalf("expected rounded overall 0.7, got %v", got.OverallScore)
	}
	if got.Status != types.StatusNeedsImprovement {
		t.Fatalf("expected needs_improvement for raw overall below threshold, got %s", got.Status)
	}
}

func TestConfiguredThreshold(t *testing.T) {
	transcript := "cleared to land runway two seven"
	intents := uniform(types.IntentClearance, 0.9)

	if got := NewScorer(0.85, nil).Score(transcript, intents, types.IntentClearance); got.Status != types.StatusNeedsImprovement {
		t.Fatalf("expected needs_improvement at threshold 0.85, got %s", got.Status)
	}
	if got := NewScorer(0.75, nil).Score(transcript, intents, types.IntentClearance); got.Status != types.StatusEfficient {
		t.Fatalf("expected efficient at threshold 0.75, got %s", got.Status)
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := NewScorer(DefaultThreshold, nil)
	transcript := "united four five six climb and maintain flight level three five zero"
	intents := uniform(types.IntentInstruction, 0.73)

	first, _ := json.Marshal(s.Score(transcript, intents, types.IntentInstruction))
	for i := 0; i < 20; i++ {
		again, _ := json.Marshal(s.Score(transcript, intents, types.IntentInstruction))
		if !bytes.Equal(first, again) {
			t.Fatalf("non deterministic result: %s vs %s", first, again)
		}
	}
}

func TestOverallNeverExceedsOne(t *testing.T) {
	s := NewScorer(DefaultThreshold, nil)
	for _, top := range types.IntentLabels {
		for _, n := range []int{0, 7, 25, 75, 150} {
			intents := uniform(top, 1.0)
			intents[types.IntentEmergency] = 1.0
			got := s.Score(words(n), intents, top)
			if got.OverallScore < 0 || got.OverallScore > 1.0 {
				t.Fatalf("overall %v out of range for %s/%d", got.OverallScore, top, n)
			}
		}
	}
}

func TestCharCountCountsRunes(t *testing.T) {
	got := NewScorer(DefaultThreshold, nil).Score("café", nil, types.IntentRoutine)
	if got.CharCount != 4 {
		t.Fatalf("expected 4 characters, got %d", got.CharCount)
	}
}
