// Package intent classifies ATC transcripts into a fixed set of
// communicative intents.
//
// Backends:
//   - mock: deterministic phraseology keyword classifier, no model needed
//   - onnx: BERT sequence classifier exported to ONNX, run in-process
//   - llm:  OpenAI-style chat gateway asked for a JSON distribution
//
// Every backend returns a score for each label in types.IntentLabels and the
// arg-max label.
package intent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"atc-insights-go/internal/types"
)

// DefaultMaxTokens bounds classifier input length.
const DefaultMaxTokens = 512

// Result is a classifier output.
type Result struct {
	TopIntent string
	Intents   map[string]float64
}

// Classifier maps text to an intent distribution.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// ErrLabelMismatch marks a classifier output that does not match the label set.
var ErrLabelMismatch = errors.New("classifier output does not match intent label set")

// Validate checks the output against the closed label set: every label is
// present, no unknown label appears and the top intent is one of the keys.
func (r Result) Validate() error {
	for label := range r.Intents {
		if !types.IsIntentLabel(label) {
			return fmt.Errorf("%w: unknown label %q", ErrLabelMismatch, label)
		}
	}
	for _, label := range types.IntentLabels {
		if _, ok := r.Intents[label]; !ok {
			return fmt.Errorf("%w: missing label %q", ErrLabelMismatch, label)
		}
	}
	if _, ok := r.Intents[r.TopIntent]; !ok {
		return fmt.Errorf("%w: top intent %q not in distribution", ErrLabelMismatch, r.TopIntent)
	}
	return nil
}

// Scores converts the result to its wire representation.
func (r Result) Scores() types.IntentScores {
	intents := make(map[string]float64, len(r.Intents))
	for k, v := range r.Intents {
		intents[k] = v
	}
	return types.IntentScores{TopIntent: r.TopIntent, Intents: intents}
}

// FromScores builds a Result from per-label scores given in types.IntentLabels order.
func FromScores(scores []float64) (Result, error) {
	if len(scores) != len(types.IntentLabels) {
		return Result{}, fmt.Errorf("%w: expected %d scores, got %d", ErrLabelMismatch, len(types.IntentLabels), len(scores))
	}
	intents := make(map[string]float64, len(scores))
	for i, label := range types.IntentLabels {
		intents[label] = scores[i]
	}
	return Result{TopIntent: types.IntentLabels[Argmax(scores)], Intents: intents}, nil
}

// Softmax converts logits to probabilities.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value; ties resolve to the first index.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// NormalizeText applies NFKC, drops control characters and collapses whitespace.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, normed)
	return strings.Join(strings.Fields(normed), " ")
}

// TruncateWords keeps at most maxWords whitespace separated words.
func TruncateWords(text string, maxWords int) string {
	if maxWords <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= maxWords {
		return text
	}
	return strings.Join(fields[:maxWords], " ")
}
