package pipeline

// Stage is a step of one pipeline run.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageValidating   Stage = "validating"
	StageTranscribing Stage = "transcribing"
	StageClassifying  Stage = "classifying"
	StageScoring      Stage = "scoring"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Observer is told about every stage a run enters, including the terminal
// Done or Failed. It is called synchronously on the request goroutine.
type Observer func(runID string, stage Stage)
