package intent

import (
	"context"
	"strings"

	"atc-insights-go/internal/types"
)

const (
	keywordLogit = 2.0
	maxHitsLabel = 3
	routinePrior = 0.5
)

// phraseology maps each label to ICAO-style phrases that signal it.
var phraseology = map[string][]string{
	types.IntentClearance: {
		"cleared", "clearance", "cleared to land", "cleared for takeoff", "line up and wait",
	},
	types.IntentInstruction: {
		"climb", "descend", "maintain", "turn left", "turn right", "heading", "contact",
		"squawk", "hold short", "taxi", "reduce speed", "expedite", "proceed direct",
	},
	types.IntentRequest: {
		"request", "requesting", "requests", "would like", "are we able", "say again",
	},
	types.IntentConfirmation: {
		"roger", "wilco", "affirm", "affirmative", "readback correct", "copy", "copied",
	},
	types.IntentWarning: {
		"caution", "traffic alert", "traffic", "wind shear", "windshear", "terrain",
		"low altitude alert", "go around", "birds",
	},
	types.IntentEmergency: {
		"mayday", "pan pan", "emergency", "engine failure", "fire", "souls on board",
		"fuel emergency", "minimum fuel",
	},
	types.IntentRoutine: {
		"good day", "good morning", "good evening", "with you", "information", "atis", "checking in",
	},
}

// KeywordClassifier is the offline backend: softmax over phrase hit counts.
// It is deterministic and safe for concurrent use.
type KeywordClassifier struct {
	maxTokens int
}

func NewKeywordClassifier(maxTokens int) *KeywordClassifier {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &KeywordClassifier{maxTokens: maxTokens}
}

func (c *KeywordClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	normalized := strings.ToLower(TruncateWords(NormalizeText(text), c.maxTokens))
	padded := " " + stripPunctuation(normalized) + " "

	logits := make([]float64, len(types.IntentLabels))
	for i, label := range types.IntentLabels {
		hits := 0
		for _, phrase := range phraseology[label] {
			hits += strings.Count(padded, " "+phrase+" ")
		}
		if hits > maxHitsLabel {
			hits = maxHitsLabel
		}
		logits[i] = float64(hits) * keywordLogit
		if label == types.IntentRoutine {
			logits[i] += routinePrior
		}
	}
	return FromScores(Softmax(logits))
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '!', '?', ';', ':', '"', '(', ')':
			return ' '
		}
		return r
	}, s)
}
