// Package efficiency scores ATC transmissions with a fixed-weight heuristic
// combining intent confidence, message length and urgency handling.
package efficiency

import (
	"math"
	"strings"
	"unicode/utf8"

	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/types"
)

// DefaultThreshold is the overall score at or above which a transmission is efficient.
const DefaultThreshold = 0.7

const (
	intentWeight  = 0.4
	clarityWeight = 0.4
	urgencyWeight = 0.2

	highIntentBonus = 0.2

	defaultHighOrMediumConfidence = 0.5
	defaultOtherConfidence        = 0.3

	urgencySignal = 0.5
)

var (
	highValueIntents   = []string{types.IntentClearance, types.IntentInstruction, types.IntentConfirmation}
	mediumValueIntents = []string{types.IntentRequest, types.IntentRoutine}
)

// Scorer is stateless apart from its threshold and safe for concurrent use.
type Scorer struct {
	threshold float64
	log       *logger.Logger
}

// NewScorer builds a scorer. A nil logger disables logging.
func NewScorer(threshold float64, log *logger.Logger) *Scorer {
	if log == nil {
		log = logger.Discard()
	}
	return &Scorer{threshold: threshold, log: log.Component("efficiency")}
}

// Threshold returns the configured efficiency threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score computes the efficiency metrics for one transcript. It never fails:
// absent labels fall back to documented defaults.
func (s *Scorer) Score(transcript string, intents map[string]float64, topIntent string) types.EfficiencyMetrics {
	wordCount := len(strings.Fields(transcript))
	charCount := utf8.RuneCountInString(transcript)

	intentScore := ScoreIntent(intents, topIntent)
	clarityScore := ScoreClarity(wordCount)
	urgencyScore := ScoreUrgency(intents)

	// status is decided on the unrounded score; rounding is for output only
	raw := intentScore*intentWeight + clarityScore*clarityWeight + urgencyScore*urgencyWeight

	status := types.StatusNeedsImprovement
	if raw >= s.threshold {
		status = types.StatusEfficient
	}

	res := types.EfficiencyMetrics{
		OverallScore: round3(raw),
		IntentScore:  round3(intentScore),
		ClarityScore: round3(clarityScore),
		UrgencyScore: round3(urgencyScore),
		Status:       status,
		WordCount:    wordCount,
		CharCount:    charCount,
	}
	s.log.WithField("overall_score", res.OverallScore).
		WithField("status", res.Status).
		WithField("top_intent", topIntent).
		Debug("efficiency score calculated")
	return res
}

// ScoreIntent rewards clear, actionable intents.
func ScoreIntent(intents map[string]float64, topIntent string) float64 {
	switch {
	case contains(highValueIntents, topIntent):
		return math.Min(1.0, lookup(intents, topIntent, defaultHighOrMediumConfidence)+highIntentBonus)
	case contains(mediumValueIntents, topIntent):
		return lookup(intents, topIntent, defaultHighOrMediumConfidence)
	default:
		return lookup(intents, topIntent, defaultOtherConfidence)
	}
}

// ScoreClarity is a length proxy: 10-50 words is the sweet spot.
func ScoreClarity(wordCount int) float64 {
	switch {
	case wordCount >= 10 && wordCount <= 50:
		return 0.9
	case (wordCount >= 5 && wordCount < 10) || (wordCount > 50 && wordCount <= 100):
		return 0.7
	case wordCount < 5:
		return 0.5
	default:
		return 0.4
	}
}

// ScoreUrgency credits transmissions that carry an emergency or warning signal.
func ScoreUrgency(intents map[string]float64) float64 {
	switch {
	case lookup(intents, types.IntentEmergency, 0) > urgencySignal:
		return 1.0
	case lookup(intents, types.IntentWarning, 0) > urgencySignal:
		return 0.8
	default:
		return 0.6
	}
}

func lookup(intents map[string]float64, label string, fallback float64) float64 {
	if v, ok := intents[label]; ok {
		return v
	}
	return fallback
}

func contains(set []string, label string) bool {
	for _, s := range set {
		if s == label {
			return true
		}
	}
	return false
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
