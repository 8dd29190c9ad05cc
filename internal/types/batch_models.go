package types

// TransmissionRecord is one row of a batch evaluation dataset. Either
// Transcript or AudioPath is set; ExpectedIntent is an optional reference label.
type TransmissionRecord struct {
	ID             string `json:"id"`
	Transcript     string `json:"transcript,omitempty"`
	AudioPath      string `json:"audio_path,omitempty"`
	ExpectedIntent string `json:"expected_intent,omitempty"`
}

// BatchItem pairs a dataset record with its pipeline outcome.
type BatchItem struct {
	Record     TransmissionRecord     `json:"record"`
	Result     *TranscriptionResponse `json:"result,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
	Error      string                 `json:"error,omitempty"`
}
