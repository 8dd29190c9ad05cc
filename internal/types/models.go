package types

// Intent labels understood by the classifier and the efficiency scorer.
const (
	IntentClearance    = "clearance"
	IntentInstruction  = "instruction"
	IntentRequest      = "request"
	IntentConfirmation = "confirmation"
	IntentWarning      = "warning"
	IntentEmergency    = "emergency"
	IntentRoutine      = "routine"
)

// IntentLabels is the closed label set in classifier output order.
var IntentLabels = []string{
	IntentClearance,
	IntentInstruction,
	IntentRequest,
	IntentConfirmation,
	IntentWarning,
	IntentEmergency,
	IntentRoutine,
}

// IsIntentLabel reports whether label belongs to the closed label set.
func IsIntentLabel(label string) bool {
	for _, l := range IntentLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Efficiency status values.
const (
	StatusEfficient        = "efficient"
	StatusNeedsImprovement = "needs_improvement"
)

type IntentScores struct {
	TopIntent string             `json:"top_intent"`
	Intents   map[string]float64 `json:"intents"`
}

type EfficiencyMetrics struct {
	OverallScore float64 `json:"overall_score"`
	IntentScore  float64 `json:"intent_score"`
	ClarityScore float64 `json:"clarity_score"`
	UrgencyScore float64 `json:"urgency_score"`
	Status       string  `json:"status"`
	WordCount    int     `json:"word_count"`
	CharCount    int     `json:"char_count"`
}

// TranscriptionResponse is the pipeline result returned to callers.
type TranscriptionResponse struct {
	Transcript     string            `json:"transcript"`
	Intents        IntentScores      `json:"intents"`
	Efficiency     EfficiencyMetrics `json:"efficiency"`
	ProcessingTime float64           `json:"processing_time"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
